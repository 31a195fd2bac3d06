package statusbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/config"
	"github.com/kingrea/chainforge/internal/telemetry"
	"github.com/kingrea/chainforge/internal/work"
)

type stubBackend struct {
	statuses  []work.ChainStatus
	segments  map[string][]chain.Segment
	overrides []work.OverrideRequest
}

func (b *stubBackend) Status(context.Context) ([]work.ChainStatus, error) {
	return b.statuses, nil
}

func (b *stubBackend) Segments(_ context.Context, id string) ([]chain.Segment, error) {
	segs, ok := b.segments[id]
	if !ok {
		return nil, fmt.Errorf("load: %w", chain.ErrChainNotFound)
	}
	return segs, nil
}

func (b *stubBackend) Override(_ context.Context, id string, req work.OverrideRequest) error {
	if id == "stopped" {
		return work.ErrChainNotFabricating
	}
	if _, ok := b.segments[id]; !ok {
		return fmt.Errorf("load: %w", chain.ErrChainNotFound)
	}
	b.overrides = append(b.overrides, req)
	return nil
}

func newStub() *stubBackend {
	return &stubBackend{
		statuses: []work.ChainStatus{{
			Chain:              chain.Chain{ID: "c1", Name: "demo", State: chain.StateFabricate, TemplateKey: "demo"},
			Segments:           map[chain.SegmentState]int{chain.SegmentCrafted: 3},
			FabricatedToMicros: 12_000_000,
		}},
		segments: map[string][]chain.Segment{
			"c1": {{ID: 0, Type: chain.SegmentInitial, State: chain.SegmentDubbed, DurationMicros: 4_000_000, Tempo: 120,
				Output: &chain.DubOutput{Path: "/tmp/c1/0.json"}}},
			"stopped": {},
		},
	}
}

func TestSettingsFromConfigReadsStatusSection(t *testing.T) {
	dir := t.TempDir()
	body := "status:\n  port: 9001\n  host: 0.0.0.0\n  enabled: false\n  max_body_bytes: 512\n  read_timeout: 2s\n"
	if err := os.MkdirAll(filepath.Join(dir, config.Dir), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, config.Dir, "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	settings := SettingsFromConfig(cfg)
	if settings.Address() != "0.0.0.0:9001" || settings.Enabled || settings.MaxBodyBytes != 512 {
		t.Fatalf("settings = %+v", settings)
	}
	if settings.ReadTimeout != 2*time.Second || settings.WriteTimeout != 15*time.Second {
		t.Fatalf("timeouts = %+v", settings)
	}
}

func TestSettingsFromConfigDefaults(t *testing.T) {
	for _, cfg := range []*config.Config{nil, {}} {
		settings := SettingsFromConfig(cfg)
		if settings.Address() != "127.0.0.1:7420" || !settings.Enabled || settings.MaxBodyBytes != config.DefaultStatusMaxBodyBytes {
			t.Fatalf("settings = %+v", settings)
		}
	}
}

func TestChainsAndSegments(t *testing.T) {
	srv := NewServer(Settings{MaxBodyBytes: 1024}, newStub())
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chains", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("chains status = %d", rec.Code)
	}
	var chains []chainResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &chains); err != nil {
		t.Fatalf("decode chains: %v", err)
	}
	if len(chains) != 1 || chains[0].Segments["Crafted"] != 3 || chains[0].FabricatedToSeconds != 12 {
		t.Fatalf("chains = %+v", chains)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chains/c1/segments", nil))
	var segs []segmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &segs); err != nil {
		t.Fatalf("decode segments: %v", err)
	}
	if len(segs) != 1 || segs[0].LengthSeconds != 4 || segs[0].OutputPath != "/tmp/c1/0.json" {
		t.Fatalf("segments = %+v", segs)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chains/nope/segments", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown chain status = %d", rec.Code)
	}
}

func TestOverride(t *testing.T) {
	stub := newStub()
	h := NewServer(Settings{MaxBodyBytes: 64}, stub).Handler()

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"accepted", "/chains/c1/override", `{"macroProgramId":"macro"}`, http.StatusAccepted},
		{"bad json", "/chains/c1/override", `{`, http.StatusBadRequest},
		{"unknown chain", "/chains/nope/override", `{"memes":["x"]}`, http.StatusNotFound},
		{"not fabricating", "/chains/stopped/override", `{"memes":["x"]}`, http.StatusConflict},
		{"too large", "/chains/c1/override", `{"memes":["` + strings.Repeat("x", 100) + `"]}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.path, bytes.NewBufferString(tt.body)))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
	if len(stub.overrides) != 1 || stub.overrides[0].MacroProgramID != "macro" {
		t.Fatalf("overrides = %+v", stub.overrides)
	}
}

func TestServerLifecycleAndMetrics(t *testing.T) {
	fixed := time.Unix(1730000000, 0).UTC()
	metrics := telemetry.New(false)
	metrics.Failed("c1")
	settings := Settings{Enabled: true, Host: "127.0.0.1", Port: 0, MaxBodyBytes: 1024, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second}
	srv := NewServer(settings, newStub(), WithClock(func() time.Time { return fixed }), WithMetrics(metrics.Handler()))
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	if srv.Status() != StatusReady {
		t.Fatalf("status = %s", srv.Status())
	}
	resp, err := http.Get(srv.BaseURL() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	resp.Body.Close()
	if health.Status != string(StatusReady) {
		t.Fatalf("health = %+v", health)
	}
	resp, err = http.Get(srv.BaseURL() + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	resp.Body.Close()
	if !strings.Contains(buf.String(), "chainforge_segments_failed_total") {
		t.Fatalf("metrics body missing counter")
	}
}

func TestStartDisabled(t *testing.T) {
	if err := NewServer(Settings{}, newStub()).Start(context.Background()); err != ErrServerDisabled {
		t.Fatalf("err = %v", err)
	}
}
