package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeDomain(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeDomain(tc.input); got != tc.expected {
				t.Errorf("SanitizeDomain(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if frontierClaimedTotal == nil || frontierOutcomesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveOutcome("done")
	if val := testutil.ToFloat64(frontierOutcomesTotal.WithLabelValues("done")); val != 1 {
		t.Errorf("Expected frontierOutcomesTotal{done} to be 1, got %f", val)
	}

	ObserveClaimed("https://example.com/page", 3)
	if val := testutil.ToFloat64(frontierClaimedTotal.WithLabelValues("example.com")); val != 3 {
		t.Errorf("Expected frontierClaimedTotal{example.com} to be 3, got %f", val)
	}

	ObserveSearch("ok", 4)
	if val := testutil.ToFloat64(searchRequestsTotal.WithLabelValues("ok")); val != 1 {
		t.Errorf("Expected searchRequestsTotal{ok} to be 1, got %f", val)
	}
}

// Fuzz test for SanitizeDomain.
func FuzzSanitizeDomain(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeDomain(orig)
		if sanitized == "" {
			t.Errorf("SanitizeDomain(%q) returned an empty string", orig)
		}
	})
}
