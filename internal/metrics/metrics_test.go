package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type staticCounter map[string]int

func (s staticCounter) CountRequestsByStatus(ctx context.Context) (map[string]int, error) {
	return s, nil
}

func TestUpdateRequestsByStatus(t *testing.T) {
	if err := UpdateRequestsByStatus(context.Background(), staticCounter{"draft": 3, "approved": 1}); err != nil {
		t.Fatalf("refresh gauge: %v", err)
	}
	if got := testutil.ToFloat64(requestsByStatus.WithLabelValues("draft")); got != 3 {
		t.Fatalf("draft gauge %v", got)
	}
	if got := testutil.ToFloat64(requestsByStatus.WithLabelValues("approved")); got != 1 {
		t.Fatalf("approved gauge %v", got)
	}

	// a status that disappears from the store no longer reports
	if err := UpdateRequestsByStatus(context.Background(), staticCounter{"approved": 2}); err != nil {
		t.Fatalf("refresh gauge: %v", err)
	}
	if got := testutil.ToFloat64(requestsByStatus.WithLabelValues("draft")); got != 0 {
		t.Fatalf("stale draft gauge %v", got)
	}
}
