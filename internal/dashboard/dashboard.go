package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/Mavwarf/driftsynth/internal/config"
	"github.com/Mavwarf/driftsynth/internal/eventlog"
	"github.com/Mavwarf/driftsynth/internal/mapper"
	"github.com/Mavwarf/driftsynth/internal/synth"
)

//go:embed static/index.html
var staticFS embed.FS

// eventInterval is how often the event stream checks for a new report.
var eventInterval = time.Second

// JSON response types used by API handlers.

type jsonSession struct {
	ID        string `json:"id"`
	Started   string `json:"started"`
	Ended     string `json:"ended,omitempty"`
	Mode      string `json:"mode"`
	Waveform  string `json:"waveform"`
	Scale     string `json:"scale"`
	Snapshots int    `json:"snapshots"`
}

func sessionToJSON(s eventlog.Session) jsonSession {
	out := jsonSession{
		ID:        s.ID,
		Started:   s.Started.Format(time.RFC3339),
		Mode:      s.Mode,
		Waveform:  s.Waveform,
		Scale:     s.Scale,
		Snapshots: s.Count,
	}
	if !s.Open() {
		out.Ended = s.Ended.Format(time.RFC3339)
	}
	return out
}

type jsonSnapshot struct {
	Time        string                 `json:"time"`
	State       mapper.State           `json:"state"`
	Fundamental float64                `json:"fundamental"`
	Frequencies [mapper.Voices]float64 `json:"frequencies"`
	Lowpass     float64                `json:"lowpass"`
	Highpass    float64                `json:"highpass"`
	Wet         float64                `json:"wet"`
}

func snapshotToJSON(s eventlog.Snapshot) jsonSnapshot {
	return jsonSnapshot{
		Time:        s.Time.Format(time.RFC3339),
		State:       s.State,
		Fundamental: s.Fundamental,
		Frequencies: s.Frequencies,
		Lowpass:     s.Lowpass,
		Highpass:    s.Highpass,
		Wet:         s.Wet,
	}
}

type jsonLive struct {
	Seq         uint64                 `json:"seq"`
	Time        string                 `json:"time"`
	Mode        string                 `json:"mode"`
	Waveform    string                 `json:"waveform"`
	Scale       string                 `json:"scale"`
	Fundamental float64                `json:"fundamental"`
	Frequencies [mapper.Voices]float64 `json:"frequencies"`
	Pans        [mapper.Voices]float64 `json:"pans"`
	Lowpass     float64                `json:"lowpass"`
	Highpass    float64                `json:"highpass"`
	Wet         float64                `json:"wet"`
	State       mapper.State           `json:"state"`
}

// Live holds the most recent engine report for the live endpoints. The
// zero value is ready to use.
type Live struct {
	mu   sync.Mutex
	seq  uint64
	at   time.Time
	last synth.Report
}

// Update records r as the current report. It is meant to be registered
// as an engine observer. A report older than the current one is dropped.
func (l *Live) Update(r synth.Report) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r.Seq != 0 && r.Seq < l.last.Seq {
		return
	}
	l.seq++
	l.at = time.Now()
	l.last = r
}

// snapshot returns the current report and its sequence number; seq 0
// means nothing has been reported yet.
func (l *Live) snapshot() (jsonLive, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seq == 0 {
		return jsonLive{}, 0
	}
	r := l.last
	return jsonLive{
		Seq:         l.seq,
		Time:        l.at.Format(time.RFC3339),
		Mode:        r.Mode.String(),
		Waveform:    r.Waveform.String(),
		Scale:       r.Scale.String(),
		Fundamental: r.Targets.Fundamental,
		Frequencies: r.Frequencies,
		Pans:        r.Targets.Pans,
		Lowpass:     r.Targets.Lowpass,
		Highpass:    r.Targets.Highpass,
		Wet:         r.Targets.Wet,
		State:       r.State,
	}, l.seq
}

// Server serves the dashboard page and its JSON API. Store and Live are
// both optional; their endpoints answer 404 when absent.
type Server struct {
	cfg   config.Config
	store eventlog.Store
	live  *Live
}

// New creates a dashboard over cfg, an optional session store and an
// optional live report holder.
func New(cfg config.Config, store eventlog.Store, live *Live) *Server {
	return &Server{cfg: cfg, store: store, live: live}
}

// Handler returns the dashboard routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", handleIndex)
	mux.HandleFunc("GET /api/config", handleConfig(s.cfg))
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
	mux.HandleFunc("GET /api/live", s.handleLive)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	return mux
}

// Serve listens on 127.0.0.1:port until ctx is done. If open is true, a
// browser window is launched in app mode (chromeless) pointing at the
// dashboard URL.
func (s *Server) Serve(ctx context.Context, port int, open bool) error {
	if port <= 0 {
		port = config.DefaultDashboardPort
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	url := fmt.Sprintf("http://%s", addr)
	fmt.Printf("Dashboard: %s\n", url)

	if open {
		go openBrowser(url)
	}

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// openBrowser tries to open the URL in a chromeless browser window (app mode).
// It tries Edge, then Chrome, then falls back to the OS default browser.
func openBrowser(url string) {
	appBrowsers := [][]string{
		{"msedge", "--app=" + url},
		{"chrome", "--app=" + url},
		{"google-chrome", "--app=" + url},
		{"chromium", "--app=" + url},
		{"chromium-browser", "--app=" + url},
	}

	for _, b := range appBrowsers {
		if path, err := exec.LookPath(b[0]); err == nil {
			cmd := exec.Command(path, b[1:]...)
			if cmd.Start() == nil {
				return
			}
		}
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	cmd.Start()
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func handleConfig(cfg config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, redactConfig(cfg))
	}
}

// redactConfig returns a copy of cfg with broker credentials replaced by
// "***".
func redactConfig(cfg config.Config) config.Config {
	out := cfg
	if out.MQTT.Username != "" {
		out.MQTT.Username = "***"
	}
	if out.MQTT.Password != "" {
		out.MQTT.Password = "***"
	}
	return out
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "session log disabled", http.StatusNotFound)
		return
	}
	sessions, err := s.store.Sessions(queryLimit(r, 50))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]jsonSession, len(sessions))
	for i, sess := range sessions {
		out[i] = sessionToJSON(sess)
	}
	writeJSON(w, out)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "session log disabled", http.StatusNotFound)
		return
	}
	sess, err := s.store.FindSession(r.PathValue("id"))
	if errors.Is(err, eventlog.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	snaps, err := s.store.Snapshots(sess.ID, queryLimit(r, 500))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := struct {
		Session   jsonSession    `json:"session"`
		Snapshots []jsonSnapshot `json:"snapshots"`
	}{
		Session:   sessionToJSON(sess),
		Snapshots: make([]jsonSnapshot, len(snaps)),
	}
	for i, sn := range snaps {
		out.Snapshots[i] = snapshotToJSON(sn)
	}
	writeJSON(w, out)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		http.Error(w, "not playing", http.StatusNotFound)
		return
	}
	cur, seq := s.live.snapshot()
	if seq == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, cur)
}

// handleEvents streams each new live report as a server-sent event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		http.Error(w, "not playing", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Flush headers immediately so the browser fires onopen.
	flusher.Flush()

	ticker := time.NewTicker(eventInterval)
	defer ticker.Stop()

	var seen uint64
	send := func() {
		cur, seq := s.live.snapshot()
		if seq == 0 || seq == seen {
			return
		}
		seen = seq
		data, err := json.Marshal(cur)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	send()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			send()
		}
	}
}

// queryLimit reads ?limit=N, falling back to def for missing or invalid
// values. 0 means all.
func queryLimit(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
