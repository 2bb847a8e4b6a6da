package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/smartled/internal/config"
	diag "github.com/coreman2200/smartled/internal/diagnostics"
	"github.com/coreman2200/smartled/internal/led"
	"github.com/coreman2200/smartled/rmt"
)

type failing struct{ err error }

func (f *failing) Write([]byte) error { return f.err }
func (f *failing) Close() error       { return nil }

func newServer(t *testing.T, drv led.Driver) (*State, *httptest.Server) {
	t.Helper()
	s := NewState(2, 30, 1)
	s.Driver = drv
	s.CurrentDriver = "sim"
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return s, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func readJSON(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := c.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, v))
}

func TestHealth(t *testing.T) {
	_, srv := newServer(t, led.NewSim(2))
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	var h map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, float64(2), h["count"])
	assert.Equal(t, "sim", h["driver"])
}

func TestPostFrame(t *testing.T) {
	sim := led.NewSim(2)
	s, srv := newServer(t, sim)

	resp, err := http.Post(srv.URL+"/frame", "application/octet-stream", bytes.NewReader([]byte{1, 2, 3, 4, 5, 6}))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	s.Tick()
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, sim.Last())

	resp, err = http.Post(srv.URL+"/frame", "application/octet-stream", bytes.NewReader([]byte{1, 2, 3}))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, s.Frame())
}

func TestPreviewBroadcast(t *testing.T) {
	s, srv := newServer(t, led.NewSim(2))
	c := dial(t, srv, "/ws")
	require.Eventually(t, func() bool { n, _ := s.Clients(); return n == 1 }, time.Second, time.Millisecond)

	require.True(t, s.SetFrame([]byte{9, 8, 7, 6, 5, 4}))
	s.Tick()
	var f frame
	readJSON(t, c, &f)
	assert.Equal(t, uint64(1), f.FrameID)
	assert.Equal(t, []byte{9, 8, 7, 6, 5, 4}, f.RGB)
}

func TestControl(t *testing.T) {
	sim := led.NewSim(2)
	s, srv := newServer(t, sim)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("driver: strip\nvariant: SK6812\ncount: 2\n"), 0644))
	s.ConfigPath = path
	c := dial(t, srv, "/control")

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"brightness":0.5,"fps":10}`)))
	var st Status
	readJSON(t, c, &st)
	assert.Equal(t, Status{Count: 2, FPS: 10, Brightness: 0.5, Driver: "sim"}, st)

	saved, err := config.Load(path, &config.Config{})
	require.NoError(t, err)
	assert.Equal(t, &config.Config{Driver: "strip", Variant: "SK6812", Count: 2, FPS: 10, Brightness: 0.5}, saved)

	require.NoError(t, c.WriteMessage(websocket.BinaryMessage, []byte{255, 0, 0, 0, 0, 254}))
	require.Eventually(t, func() bool { return bytes.Equal(s.Frame(), []byte{255, 0, 0, 0, 0, 254}) }, time.Second, time.Millisecond)
	s.Tick()
	assert.Equal(t, []byte{128, 0, 0, 0, 0, 127}, sim.Last())
}

func TestControlSavesOnlyChanges(t *testing.T) {
	s, srv := newServer(t, led.NewSim(2))
	path := filepath.Join(t.TempDir(), "config.yaml")
	s.ConfigPath = path
	c := dial(t, srv, "/control")

	var st Status
	for _, msg := range []string{`{"fps":30,"brightness":1}`, `{"stopPattern":true}`, `{"fps":0}`} {
		require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(msg)))
		readJSON(t, c, &st)
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), msg)
	}

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"fps":12,"brightness":1}`)))
	readJSON(t, c, &st)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fps: 12\n", string(b))
}

func TestControlPattern(t *testing.T) {
	sim := led.NewSim(2)
	s, srv := newServer(t, sim)
	d := dial(t, srv, "/diag")
	c := dial(t, srv, "/control")
	require.Eventually(t, func() bool { _, n := s.Clients(); return n == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"runPattern":"solid","color":[1,2,3]}`)))
	var st Status
	readJSON(t, c, &st)
	assert.Equal(t, "solid", st.Pattern)
	var got diag.Diagnostic
	readJSON(t, d, &got)
	assert.Equal(t, "PATTERN.RUNNING", got.Code)

	s.Tick()
	assert.Equal(t, []byte{1, 2, 3, 1, 2, 3}, sim.Last())
	s.Tick()
	readJSON(t, d, &got)
	assert.Equal(t, "PATTERN.DONE", got.Code)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"runPattern":"plasma"}`)))
	readJSON(t, c, &st)
	readJSON(t, d, &got)
	assert.Equal(t, "PATTERN.UNKNOWN", got.Code)
}

func TestDriverErrorDiagnostics(t *testing.T) {
	drv := &failing{err: fmt.Errorf("%w: %w", rmt.ErrTimeout, fmt.Errorf("deadline"))}
	s, srv := newServer(t, drv)
	d := dial(t, srv, "/diag")
	require.Eventually(t, func() bool { _, n := s.Clients(); return n == 1 }, time.Second, time.Millisecond)

	s.Tick()
	s.Tick()
	var got diag.Diagnostic
	readJSON(t, d, &got)
	assert.Equal(t, "RMT.TIMEOUT", got.Code)
	assert.Equal(t, diag.Err, got.Severity)

	drv.err = nil
	s.Tick()
	readJSON(t, d, &got)
	assert.Equal(t, "DRIVER.OK", got.Code)
}

func TestScale(t *testing.T) {
	assert.Equal(t, []byte{0, 128, 255}, scale([]byte{0, 128, 255}, 1))
	assert.Equal(t, []byte{0, 0, 0}, scale([]byte{10, 128, 255}, 0))
	assert.Equal(t, []byte{5, 64}, scale([]byte{10, 128}, 0.5))
}
