package dashboard

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Mavwarf/driftsynth/internal/config"
	"github.com/Mavwarf/driftsynth/internal/eventlog"
	"github.com/Mavwarf/driftsynth/internal/mapper"
	"github.com/Mavwarf/driftsynth/internal/synth"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.Username = "drifter"
	cfg.MQTT.Password = "hunter2-secret"
	return cfg
}

func testStore(t *testing.T) *eventlog.SQLiteStore {
	t.Helper()
	store, err := eventlog.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testReport(f0 float64) synth.Report {
	var r synth.Report
	r.Mode = mapper.Drone
	r.Scale = mapper.Harmonic
	r.State = mapper.Defaults()
	r.Targets.Fundamental = f0
	r.Targets.Lowpass = 4000
	r.Targets.Highpass = 40
	r.Targets.Wet = 0.3
	for i := range r.Frequencies {
		r.Frequencies[i] = f0 * float64(i+1)
	}
	return r
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleIndex(t *testing.T) {
	w := get(t, New(testConfig(), nil, nil).Handler(), "/")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("expected text/html content type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "driftsynth dashboard") {
		t.Fatal("expected HTML to contain 'driftsynth dashboard'")
	}
}

func TestHandleIndex404(t *testing.T) {
	w := get(t, New(testConfig(), nil, nil).Handler(), "/nonexistent")
	if w.Code != 404 {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleConfigRedacted(t *testing.T) {
	w := get(t, New(testConfig(), nil, nil).Handler(), "/api/config")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if strings.Contains(body, "secret") || strings.Contains(body, "drifter") {
		t.Fatal("response contains unredacted credentials")
	}
	if !strings.Contains(body, `"***"`) {
		t.Fatal("expected redacted '***' in response")
	}
	if !strings.Contains(body, "tcp://localhost:1883") {
		t.Error("broker should not be redacted")
	}
}

func TestRedactConfigLeavesOriginal(t *testing.T) {
	cfg := testConfig()
	redactConfig(cfg)
	if cfg.MQTT.Password != "hunter2-secret" {
		t.Error("redactConfig modified its input")
	}
	empty := redactConfig(config.Default())
	if empty.MQTT.Password != "" || empty.MQTT.Username != "" {
		t.Error("empty credentials should stay empty")
	}
}

func TestSessionsWithoutStore(t *testing.T) {
	h := New(testConfig(), nil, nil).Handler()
	if w := get(t, h, "/api/sessions"); w.Code != 404 {
		t.Errorf("sessions: expected 404, got %d", w.Code)
	}
	if w := get(t, h, "/api/sessions/abc"); w.Code != 404 {
		t.Errorf("session: expected 404, got %d", w.Code)
	}
}

func TestSessions(t *testing.T) {
	store := testStore(t)
	first, _ := store.BeginSession("drone", "sine", "harmonic")
	second, _ := store.BeginSession("pulse", "triangle", "slendro")
	store.EndSession(first)
	tg := mapper.Targets{Fundamental: 110, Lowpass: 3000}
	store.LogSnapshot(second, eventlog.NewSnapshot(time.Now(), mapper.Defaults(), tg))

	w := get(t, New(testConfig(), store, nil).Handler(), "/api/sessions")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out []jsonSession
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(out))
	}
	byID := map[string]jsonSession{out[0].ID: out[0], out[1].ID: out[1]}
	if byID[first].Ended == "" {
		t.Error("ended session has no end time")
	}
	if byID[second].Ended != "" || byID[second].Snapshots != 1 || byID[second].Mode != "pulse" {
		t.Errorf("open session = %+v", byID[second])
	}
}

func TestSessionDetail(t *testing.T) {
	store := testStore(t)
	id, _ := store.BeginSession("drone", "sine", "harmonic")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range 3 {
		tg := mapper.Targets{Fundamental: 100 + float64(i)}
		store.LogSnapshot(id, eventlog.NewSnapshot(base.Add(time.Duration(i)*time.Second), mapper.Defaults(), tg))
	}
	h := New(testConfig(), store, nil).Handler()

	w := get(t, h, "/api/sessions/"+id[:8]+"?limit=2")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		Session   jsonSession    `json:"session"`
		Snapshots []jsonSnapshot `json:"snapshots"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if out.Session.ID != id {
		t.Errorf("session id = %q, want %q", out.Session.ID, id)
	}
	if len(out.Snapshots) != 2 || out.Snapshots[1].Fundamental != 102 {
		t.Errorf("snapshots = %+v", out.Snapshots)
	}

	if w := get(t, h, "/api/sessions/ffffffff"); w.Code != 404 {
		t.Errorf("unknown session: expected 404, got %d", w.Code)
	}
}

func TestLive(t *testing.T) {
	if w := get(t, New(testConfig(), nil, nil).Handler(), "/api/live"); w.Code != 404 {
		t.Errorf("without live: expected 404, got %d", w.Code)
	}

	live := &Live{}
	h := New(testConfig(), nil, live).Handler()
	if w := get(t, h, "/api/live"); w.Code != 204 {
		t.Errorf("before first report: expected 204, got %d", w.Code)
	}

	live.Update(testReport(110))
	live.Update(testReport(220))
	w := get(t, h, "/api/live")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out jsonLive
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if out.Seq != 2 || out.Fundamental != 220 || out.Frequencies[1] != 440 {
		t.Errorf("live = %+v", out)
	}
	if out.Mode != "drone" || out.Scale != "harmonic" {
		t.Errorf("names = %s/%s", out.Mode, out.Scale)
	}
}

func TestLiveDropsStaleReport(t *testing.T) {
	live := &Live{}
	newer := testReport(220)
	newer.Seq = 5
	older := testReport(110)
	older.Seq = 4
	live.Update(newer)
	live.Update(older)

	cur, seq := live.snapshot()
	if seq != 1 || cur.Fundamental != 220 {
		t.Errorf("after stale report: seq=%d fundamental=%v, want 1/220", seq, cur.Fundamental)
	}

	latest := testReport(330)
	latest.Seq = 6
	live.Update(latest)
	if cur, seq := live.snapshot(); seq != 2 || cur.Fundamental != 330 {
		t.Errorf("after newer report: seq=%d fundamental=%v, want 2/330", seq, cur.Fundamental)
	}
}

func TestEventsStream(t *testing.T) {
	old := eventInterval
	eventInterval = 10 * time.Millisecond
	defer func() { eventInterval = old }()

	live := &Live{}
	live.Update(testReport(110))
	srv := httptest.NewServer(New(testConfig(), nil, live).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	var got []float64
	for len(got) < 2 && sc.Scan() {
		line, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev jsonLive
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("invalid event: %v", err)
		}
		got = append(got, ev.Fundamental)
		if len(got) == 1 {
			live.Update(testReport(330))
		}
	}
	if len(got) != 2 || got[0] != 110 || got[1] != 330 {
		t.Errorf("events = %v, want [110 330]", got)
	}
}

func TestQueryLimit(t *testing.T) {
	tests := []struct {
		url  string
		want int
	}{
		{"/x", 50},
		{"/x?limit=5", 5},
		{"/x?limit=0", 0},
		{"/x?limit=-3", 50},
		{"/x?limit=abc", 50},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", tt.url, nil)
		if got := queryLimit(r, 50); got != tt.want {
			t.Errorf("queryLimit(%s) = %d, want %d", tt.url, got, tt.want)
		}
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- New(testConfig(), nil, nil).Serve(ctx, 38421, false) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
