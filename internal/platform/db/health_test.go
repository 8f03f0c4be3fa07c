package db

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPoolStats_JSONShape(t *testing.T) {
	stats := &PoolStats{
		TotalConns:      10,
		IdleConns:       5,
		AcquiredConns:   5,
		MaxConns:        20,
		AcquireCount:    100,
		AcquireDuration: "1.5s",
		Healthy:         true,
	}

	raw, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for _, key := range []string{
		"total_conns", "idle_conns", "acquired_conns", "max_conns",
		"acquire_count", "acquire_duration", "healthy",
	} {
		if !strings.Contains(string(raw), `"`+key+`"`) {
			t.Errorf("expected JSON key %q in %s", key, raw)
		}
	}

	var decoded PoolStats
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.TotalConns != 10 || decoded.AcquireCount != 100 || !decoded.Healthy {
		t.Errorf("round-trip mismatch: %+v", decoded)
	}
}

func TestPoolStats_UnhealthyWithNoConns(t *testing.T) {
	stats := &PoolStats{MaxConns: 20, AcquireDuration: "0s"}
	if stats.Healthy {
		t.Error("expected zero-value Healthy to be false")
	}
}
