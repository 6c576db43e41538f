package otel

import (
	"context"
	"strings"
	"testing"
)

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "poold"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = secret ,broken, =empty,tenant=pool ")
	if len(headers) != 2 || headers["api-key"] != "secret" || headers["tenant"] != "pool" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestSamplerDescription(t *testing.T) {
	if got := Sampler(0).Description(); !strings.Contains(got, "AlwaysOnSampler") {
		t.Fatalf("unexpected default sampler %q", got)
	}
	if got := Sampler(0.25).Description(); !strings.Contains(got, "TraceIDRatioBased{0.25}") {
		t.Fatalf("unexpected ratio sampler %q", got)
	}
}

func TestResourceAttributesSortedAndFiltered(t *testing.T) {
	attrs := resourceAttributes(Config{
		ServiceName: "poold",
		Environment: "prod",
		Attributes: map[string]string{
			"pool.underlying": "0xabc",
			"pool.keeper":     "gauge",
			"":                "ignored",
			"pool.empty":      " ",
		},
	})
	var keys []string
	for _, attr := range attrs {
		keys = append(keys, string(attr.Key))
	}
	want := "service.name,deployment.environment,pool.keeper,pool.underlying"
	if got := strings.Join(keys, ","); got != want {
		t.Fatalf("attributes %s, want %s", got, want)
	}
}
