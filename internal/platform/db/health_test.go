package db

import (
	"errors"
	"net/http"
	"testing"
)

func TestHealthResponse_Healthy(t *testing.T) {
	stats := &PoolStats{TotalConns: 5, IdleConns: 3, MaxConns: 20, Healthy: true}

	code, body := healthResponse(nil, stats)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected status healthy, got %v", body["status"])
	}
	if _, ok := body["error"]; ok {
		t.Error("healthy response should not carry an error field")
	}
	if !stats.Healthy {
		t.Error("stats should stay healthy when ping succeeds")
	}
}

func TestHealthResponse_PingFailure(t *testing.T) {
	stats := &PoolStats{TotalConns: 5, Healthy: true}

	code, body := healthResponse(errors.New("connection refused"), stats)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("expected status unhealthy, got %v", body["status"])
	}
	if body["error"] != "connection refused" {
		t.Errorf("expected ping error in body, got %v", body["error"])
	}
	if stats.Healthy {
		t.Error("a failed ping must mark the snapshot unhealthy")
	}
}
