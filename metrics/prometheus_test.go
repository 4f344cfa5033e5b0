package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-marketsync/core"
	"github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder_ObserverSeries(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewPrometheusRecorder(registry)
	observer := core.NewObserver(nil, recorder)

	ctx := context.Background()
	startedAt := time.Now()
	observer.Observe(ctx, startedAt, "fetch", nil, map[string]any{"shop_id": int64(55), "kind": "orders"})
	observer.Observe(ctx, startedAt, "fetch", nil, map[string]any{"shop_id": int64(55), "kind": "orders"})
	observer.Observe(ctx, startedAt, "fetch", errors.New("boom"), map[string]any{"shop_id": int64(55), "kind": "orders"})

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var success, failure float64
	var histogramSamples uint64
	for _, family := range families {
		switch family.GetName() {
		case "marketsync_fetch_total":
			for _, metric := range family.GetMetric() {
				labels := map[string]string{}
				for _, pair := range metric.GetLabel() {
					labels[pair.GetName()] = pair.GetValue()
				}
				if labels["shop_id"] != "55" || labels["kind"] != "orders" {
					t.Fatalf("unexpected labels %v", labels)
				}
				switch labels["status"] {
				case "success":
					success = metric.GetCounter().GetValue()
				case "failure":
					failure = metric.GetCounter().GetValue()
				}
			}
		case "marketsync_fetch_duration_ms":
			for _, metric := range family.GetMetric() {
				histogramSamples += metric.GetHistogram().GetSampleCount()
			}
		}
	}
	if success != 2 || failure != 1 {
		t.Fatalf("expected 2 successes and 1 failure, got %v and %v", success, failure)
	}
	if histogramSamples != 3 {
		t.Fatalf("expected 3 duration samples, got %d", histogramSamples)
	}
}

func TestPrometheusRecorder_HandlerExposesSeries(t *testing.T) {
	recorder := NewPrometheusRecorder(nil, WithLabels("operation", "status"))
	recorder.IncCounter(context.Background(), "marketsync.queue_item.total", 4, map[string]string{
		"operation": "queue_item",
		"status":    "success",
		"shop_id":   "55",
	})
	recorder.IncCounter(context.Background(), "marketsync.queue_item.total", -1, nil)

	server := httptest.NewServer(recorder.Handler())
	defer server.Close()
	res, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read scrape: %v", err)
	}
	want := `marketsync_queue_item_total{operation="queue_item",status="success"} 4`
	if !strings.Contains(string(body), want) {
		t.Fatalf("expected %q in scrape output:\n%s", want, body)
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"marketsync.fetch.total": "marketsync_fetch_total",
		" refresh-token ":        "refresh_token",
		"9lives":                 "_9lives",
		"":                       "",
	}
	for in, want := range cases {
		if got := sanitize(in); got != want {
			t.Fatalf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
