package otel

import (
	"context"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		raw  string
		want map[string]string
	}{
		{"", map[string]string{}},
		{"Authorization=Basic abc", map[string]string{"Authorization": "Basic abc"}},
		{" a = 1 , b=2,=skip,novalue", map[string]string{"a": "1", "b": "2"}},
		{"x=a=b", map[string]string{"x": "a=b"}},
	}

	for _, tt := range tests {
		got := parseHeaders(tt.raw)
		if len(got) != len(tt.want) {
			t.Errorf("parseHeaders(%q): got %v, want %v", tt.raw, got, tt.want)
			continue
		}
		for k, v := range tt.want {
			if got[k] != v {
				t.Errorf("parseHeaders(%q)[%q]: got %q, want %q", tt.raw, k, got[k], v)
			}
		}
	}
}

func TestInit_NoEndpointIsNoop(t *testing.T) {
	ctx := context.Background()
	tel, err := Init(ctx, OTELConfig{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer tel.Shutdown(ctx)

	if tel.Tracer == nil || tel.Metrics == nil {
		t.Fatal("expected tracer and metrics to be set")
	}
	_, span := tel.Tracer.Start(ctx, "jump.session")
	span.End()
	tel.Metrics.RecordSession(ctx, "system", "ok")
	tel.Metrics.RecordBytes(ctx, 42)
	tel.Metrics.RecordExpectWait(ctx, "login", 12.5, true)
}

func TestInit_InvalidEndpoint(t *testing.T) {
	if _, err := Init(context.Background(), OTELConfig{Endpoint: "http://[::1"}); err == nil {
		t.Error("expected error for malformed endpoint")
	}
}

func TestParseCollector(t *testing.T) {
	c, err := parseCollector("http://collector:4318/otlp/", "Authorization=Basic abc")
	if err != nil {
		t.Fatalf("parseCollector: %v", err)
	}
	if c.host != "collector:4318" || c.basePath != "/otlp" || !c.insecure {
		t.Errorf("unexpected collector: %+v", c)
	}
	if c.headers["Authorization"] != "Basic abc" {
		t.Errorf("headers: %v", c.headers)
	}

	c, err = parseCollector("https://otlp.example.com", "")
	if err != nil {
		t.Fatalf("parseCollector: %v", err)
	}
	if c.insecure || c.basePath != "" {
		t.Errorf("https endpoint: %+v", c)
	}

	for _, bad := range []string{"collector:4318", "ftp://collector", "http://"} {
		if _, err := parseCollector(bad, ""); err == nil {
			t.Errorf("parseCollector(%q): expected error", bad)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordSession(ctx, "native", "NotFound")
	m.RecordBytes(ctx, 1)
	m.RecordExpectWait(ctx, "navigate", 1, false)

	var tel *Telemetry
	tel.Shutdown(ctx)

	if Noop().Tracer == nil {
		t.Error("Noop tracer is nil")
	}
}
