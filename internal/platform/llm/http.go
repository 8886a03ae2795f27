package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPGenerator calls a completion endpoint that accepts
// {"prompt": "..."} and answers {"text": "..."}. Failures are logged
// at debug level and reported as ok=false; the generator is strictly
// best-effort.
type HTTPGenerator struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

// HTTPOption configures an HTTPGenerator.
type HTTPOption func(*HTTPGenerator)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(g *HTTPGenerator) { g.client = c }
}

// WithTimeout sets the per-call timeout on the default client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(g *HTTPGenerator) { g.client.Timeout = d }
}

// NewHTTPGenerator creates a Generator backed by an HTTP completion
// endpoint.
func NewHTTPGenerator(endpoint string, logger zerolog.Logger, opts ...HTTPOption) *HTTPGenerator {
	g := &HTTPGenerator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (string, bool) {
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Debug().Err(err).Msg("generator call failed")
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.Debug().Int("status", resp.StatusCode).Msg("generator returned non-200")
		return "", false
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		g.logger.Debug().Err(err).Msg("generator response decode failed")
		return "", false
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", false
	}
	return text, true
}
