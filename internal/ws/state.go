package ws

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/smartled/internal/config"
	diag "github.com/coreman2200/smartled/internal/diagnostics"
	"github.com/coreman2200/smartled/internal/led"
	"github.com/coreman2200/smartled/internal/pattern"
)

type State struct {
	mu         sync.RWMutex
	Count      int
	FPS        int
	Brightness float64

	// ConfigPath, when set, gets the fps and brightness keys rewritten
	// whenever a control message changes them.
	ConfigPath    string
	Driver        led.Driver
	CurrentDriver string

	saveMu sync.Mutex // serializes config file writes

	rgb       []byte
	frameID   uint64
	errCount  uint64
	lastErr   string
	lastCode  string
	startTime time.Time

	wmu         sync.Mutex // serializes writes to client conns
	clients     map[*websocket.Conn]bool
	diagClients map[*websocket.Conn]bool

	runner *pattern.Runner
}

// Control is a JSON message on the control socket. Absent fields are left
// unchanged.
type Control struct {
	FPS         *int     `json:"fps,omitempty"`
	Brightness  *float64 `json:"brightness,omitempty"`
	RunPattern  string   `json:"runPattern,omitempty"`
	Color       *[3]byte `json:"color,omitempty"`
	Loops       int      `json:"loops,omitempty"`
	StopPattern bool     `json:"stopPattern,omitempty"`
}

// Status is sent back after each control message.
type Status struct {
	Count      int     `json:"count"`
	FPS        int     `json:"fps"`
	Brightness float64 `json:"brightness"`
	Driver     string  `json:"driver"`
	Pattern    string  `json:"pattern,omitempty"`
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func NewState(count, fps int, brightness float64) *State {
	return &State{
		Count:       count,
		FPS:         fps,
		Brightness:  brightness,
		rgb:         make([]byte, count*3),
		startTime:   time.Now(),
		clients:     map[*websocket.Conn]bool{},
		diagClients: map[*websocket.Conn]bool{},
	}
}

// Routes returns the HTTP surface of the frame server.
func (s *State) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withCORS)
	r.Get("/ws", s.HandleFramesWS)
	r.Get("/diag", s.HandleDiagWS)
	r.Get("/control", s.HandleControlWS)
	r.Get("/health", s.HandleHealth)
	r.Post("/frame", s.HandleFrame)
	return r
}

// RunRenderLoop sends a frame every 1/FPS until ctx ends.
func (s *State) RunRenderLoop(ctx context.Context) {
	fps := s.fps()
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.Tick()
		if f := s.fps(); f != fps {
			fps = f
			ticker.Reset(time.Second / time.Duration(fps))
		}
	}
}

func (s *State) fps() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return max(1, s.FPS)
}

// Tick advances the running pattern, writes one frame to the driver and
// broadcasts it to preview clients.
func (s *State) Tick() {
	var diags []diag.Diagnostic
	s.mu.Lock()
	if s.runner != nil && !s.runner.Step(s.rgb) {
		diags = append(diags, diag.Diagnostic{Severity: diag.Info, Code: "PATTERN.DONE", Summary: "Pattern complete", Detail: string(s.runner.Kind())})
		s.runner = nil
	}
	s.frameID++
	id := s.frameID
	buf := scale(s.rgb, s.Brightness)
	drv := s.Driver
	s.mu.Unlock()

	if drv != nil {
		err := drv.Write(buf)
		d := diag.FromError(err)
		s.mu.Lock()
		if err != nil {
			s.errCount++
			s.lastErr = err.Error()
		}
		// Report transitions only, not every failed frame.
		if d.Code != s.lastCode && (err != nil || s.lastCode != "") {
			diags = append(diags, d)
		}
		s.lastCode = d.Code
		s.mu.Unlock()
		if err != nil {
			log.Debug().Err(err).Uint64("frame", id).Msg("driver write")
		}
	}
	s.broadcastFrame(id, buf)
	for _, d := range diags {
		s.pushDiag(d)
	}
}

// Frame returns a copy of the current source frame, before brightness.
func (s *State) Frame() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.rgb...)
}

// SetFrame replaces the source frame and stops any running pattern.
func (s *State) SetFrame(rgb []byte) bool {
	s.mu.Lock()
	if len(rgb) != len(s.rgb) {
		want := len(s.rgb)
		s.mu.Unlock()
		s.pushDiag(diag.Diagnostic{
			Severity: diag.Warn, Code: "FRAME.LENGTH", Summary: "Frame length does not match LED count",
			Evidence: map[string]any{"got": len(rgb), "want": want},
		})
		return false
	}
	copy(s.rgb, rgb)
	s.runner = nil
	s.mu.Unlock()
	return true
}

// Clients returns the number of preview and diagnostics subscribers.
func (s *State) Clients() (frames, diags int) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return len(s.clients), len(s.diagClients)
}

func (s *State) subscribe(w http.ResponseWriter, r *http.Request, set map[*websocket.Conn]bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.wmu.Lock()
	set[conn] = true
	s.wmu.Unlock()

	go func() {
		defer func() {
			s.wmu.Lock()
			delete(set, conn)
			s.wmu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *State) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	s.subscribe(w, r, s.clients)
}

func (s *State) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	s.subscribe(w, r, s.diagClients)
}

// HandleControlWS takes JSON Control messages and binary RGB frames.
func (s *State) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if typ == websocket.BinaryMessage {
			s.SetFrame(data)
			continue
		}
		var msg Control
		if err := json.Unmarshal(data, &msg); err != nil {
			s.pushDiag(diag.Diagnostic{Severity: diag.Warn, Code: "CONTROL.INVALID", Summary: "Unreadable control message", Detail: err.Error()})
			continue
		}
		s.applyControl(msg)
		b, _ := json.Marshal(s.status())
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

// HandleFrame takes one raw RGB frame as the request body.
func (s *State) HandleFrame(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	n := len(s.rgb)
	s.mu.RUnlock()
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(n)+1))
	if err != nil || !s.SetFrame(b) {
		http.Error(w, "frame must be 3 bytes per LED", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *State) HandleHealth(w http.ResponseWriter, r *http.Request) {
	frames, diags := s.Clients()
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp := map[string]any{
		"frame_id":     s.frameID,
		"uptime_s":     time.Since(s.startTime).Seconds(),
		"count":        s.Count,
		"fps":          s.FPS,
		"brightness":   s.Brightness,
		"driver":       s.CurrentDriver,
		"errors":       s.errCount,
		"last_error":   s.lastErr,
		"clients":      frames,
		"diag_clients": diags,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *State) applyControl(msg Control) {
	var diags []diag.Diagnostic
	s.mu.Lock()
	fps, brightness := s.FPS, s.Brightness
	if msg.FPS != nil && *msg.FPS > 0 {
		s.FPS = *msg.FPS
	}
	if msg.Brightness != nil {
		s.Brightness = clamp(*msg.Brightness, 0, 1)
	}
	if msg.StopPattern {
		s.runner = nil
	}
	if msg.RunPattern != "" {
		k, err := pattern.ParseKind(msg.RunPattern)
		if err != nil {
			diags = append(diags, diag.Diagnostic{
				Severity: diag.Warn, Code: "PATTERN.UNKNOWN", Summary: "Unknown pattern name",
				Evidence: map[string]any{"name": msg.RunPattern},
			})
		} else {
			plan := pattern.Plan{Kind: k, Loops: msg.Loops}
			if msg.Color != nil {
				plan.Color = *msg.Color
			}
			s.runner = pattern.NewRunner(plan)
			diags = append(diags, diag.Diagnostic{Severity: diag.Info, Code: "PATTERN.RUNNING", Summary: "Running pattern", Detail: string(k)})
		}
	}
	changed := map[string]any{}
	if s.FPS != fps {
		changed["fps"] = s.FPS
	}
	if s.Brightness != brightness {
		changed["brightness"] = s.Brightness
	}
	s.mu.Unlock()
	s.saveConfig(changed)
	for _, d := range diags {
		s.pushDiag(d)
	}
}

// saveConfig writes the changed control settings. Must not be called with
// s.mu held.
func (s *State) saveConfig(changed map[string]any) {
	if s.ConfigPath == "" || len(changed) == 0 {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := config.Patch(s.ConfigPath, changed); err != nil {
		log.Warn().Err(err).Str("path", s.ConfigPath).Msg("config save failed")
	}
}

func (s *State) status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{Count: s.Count, FPS: s.FPS, Brightness: s.Brightness, Driver: s.CurrentDriver}
	if s.runner != nil {
		st.Pattern = string(s.runner.Kind())
	}
	return st
}

type frame struct {
	T       int64  `json:"t"`
	FrameID uint64 `json:"frame_id"`
	RGB     []byte `json:"rgb"`
}

func (s *State) broadcastFrame(id uint64, rgb []byte) {
	b, _ := json.Marshal(frame{T: time.Now().UnixNano(), FrameID: id, RGB: rgb})
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for c := range s.clients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("write frame")
		}
	}
}

func (s *State) pushDiag(d diag.Diagnostic) {
	b, _ := json.Marshal(d)
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for c := range s.diagClients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		_ = c.WriteMessage(websocket.TextMessage, b)
	}
}

func scale(rgb []byte, brightness float64) []byte {
	out := make([]byte, len(rgb))
	if brightness >= 1 {
		copy(out, rgb)
		return out
	}
	for i, v := range rgb {
		out[i] = byte(float64(v)*brightness + 0.5)
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}
