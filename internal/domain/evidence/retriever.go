// Package evidence ranks a small offline corpus of public health
// guidance against a structured intake. Retrieval is keyword overlap
// with fixed publisher and category bonuses, so the same intake always
// yields the same ordered ids.
package evidence

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pharmassist/pharmassist/internal/domain/recommend"
	"github.com/pharmassist/pharmassist/pkg/contracts"
)

// DefaultK is the number of snippets retrieved per run.
const DefaultK = 5

// AttachLimit is how many evidence ids get attached to each ranked
// product.
const AttachLimit = 2

//go:embed corpus.json
var corpusRaw []byte

var (
	corpusOnce sync.Once
	corpus     []contracts.EvidenceSnippet
	corpusErr  error
)

// Corpus returns the embedded snippets in file order.
func Corpus() ([]contracts.EvidenceSnippet, error) {
	corpusOnce.Do(func() {
		if err := json.Unmarshal(corpusRaw, &corpus); err != nil {
			corpusErr = fmt.Errorf("decode evidence corpus: %w", err)
			return
		}
		for i, item := range corpus {
			if item.ID == "" || item.Title == "" {
				corpusErr = fmt.Errorf("evidence corpus item %d missing id or title", i)
				return
			}
		}
	})
	return corpus, corpusErr
}

var tokenRe = regexp.MustCompile(`[a-z0-9]{3,}`)

func tokens(text string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		out[t] = true
	}
	return out
}

const maxQueryLen = 500

func buildQuery(in contracts.Intake) string {
	parts := []string{in.PresentingProblem}
	for _, s := range in.Symptoms {
		parts = append(parts, s.Label)
	}
	parts = append(parts, in.Conditions...)
	q := strings.Join(parts, " ")
	if len(q) > maxQueryLen {
		q = q[:maxQueryLen]
	}
	return q
}

func publisherBonus(publisher string) int {
	up := strings.ToUpper(publisher)
	bonus := 0
	if strings.Contains(up, "HAS") {
		bonus += 3
	}
	if strings.Contains(up, "NHS") {
		bonus += 2
	}
	if strings.Contains(up, "CDC") {
		bonus += 2
	}
	if strings.Contains(up, "WHO") {
		bonus += 1
	}
	return bonus
}

// Retrieve scores every corpus snippet against the intake and returns
// the top k, ties broken by corpus order.
func Retrieve(in contracts.Intake, k int) ([]contracts.EvidenceSnippet, error) {
	items, err := Corpus()
	if err != nil {
		return nil, err
	}
	if k < 1 {
		k = 1
	}

	qTokens := tokens(buildQuery(in))
	target := recommend.TargetCategory(in)

	type scored struct {
		idx   int
		score int
	}
	all := make([]scored, 0, len(items))
	for i, item := range items {
		overlap := 0
		for t := range tokens(item.Title + " " + item.Summary) {
			if qTokens[t] {
				overlap++
			}
		}
		score := overlap + publisherBonus(item.Publisher)
		if target != recommend.CategoryGeneral && strings.HasPrefix(item.ID, "ev_"+target) {
			score += 3
		}
		all = append(all, scored{idx: i, score: score})
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > k {
		all = all[:k]
	}

	out := make([]contracts.EvidenceSnippet, 0, len(all))
	for _, s := range all {
		out = append(out, items[s.idx])
	}
	return out, nil
}

// AllowedIDs builds the citation allowlist handed to the policy gate.
func AllowedIDs(snippets []contracts.EvidenceSnippet) map[string]bool {
	out := make(map[string]bool, len(snippets))
	for _, s := range snippets {
		out[s.ID] = true
	}
	return out
}

// AttachRefs copies the top evidence ids onto each ranked product.
func AttachRefs(ranked []contracts.RankedProduct, snippets []contracts.EvidenceSnippet) []contracts.RankedProduct {
	n := AttachLimit
	if len(snippets) < n {
		n = len(snippets)
	}
	refs := make([]string, 0, n)
	for _, s := range snippets[:n] {
		refs = append(refs, s.ID)
	}
	out := make([]contracts.RankedProduct, len(ranked))
	copy(out, ranked)
	for i := range out {
		out[i].EvidenceRefs = append([]string(nil), refs...)
	}
	return out
}
