package server

import (
	"compress/gzip"
	"encoding/json"
	"io"
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
	"golang.org/x/time/rate"

	"github.com/livetemplate/mathwalk/internal/config"
	"github.com/livetemplate/mathwalk/internal/tutor"
)

const testLesson = "---\n" +
	"title: Vectors\n" +
	"runtime: starlark\n" +
	"packages: [numpy]\n" +
	"---\n" +
	"\n" +
	"## Adding Numbers\n" +
	"\n" +
	"Python is a <strong>calculator</strong>.\n" +
	"\n" +
	"```python step\n" +
	"print(2 + 2)\n" +
	"```\n" +
	"\n" +
	"## Doubling\n" +
	"\n" +
	"Loaded from a script.\n" +
	"\n" +
	"```python step script=scripts/double.star\n" +
	"```\n" +
	"\n" +
	"## Dot Product\n" +
	"\n" +
	"Multiply and sum.\n" +
	"\n" +
	"```python step\n" +
	"import numpy as np\n" +
	"print(np.dot([1, 2], [3, 4]))\n" +
	"```\n"

const testScript = "x = [1, 2, 3]\nprint([v * 2 for v in x])\n"

func writeLessons(t *testing.T, dir, lesson string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scripts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scripts", "double.star"), []byte(testScript), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lessons.md"), []byte(lesson), 0o644))
}

// newTestServer serves testLesson from a temp directory.
func newTestServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	writeLessons(t, dir, testLesson)

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	srv, err := New(cfg, dir, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts, dir
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads envelopes until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(Envelope) bool) Envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var env Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if match(env) {
			return env
		}
	}
}

func action(name string) func(Envelope) bool {
	return func(env Envelope) bool { return env.Action == name }
}

func outputOf(t *testing.T, env Envelope) tutor.Output {
	t.Helper()
	var o tutor.Output
	require.NoError(t, json.Unmarshal(env.Data, &o))
	return o
}

func outputKind(t *testing.T, kind tutor.OutputKind) func(Envelope) bool {
	return func(env Envelope) bool {
		return env.Action == ActionOutput && outputOf(t, env).Kind == kind
	}
}

func waitReady(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	readUntil(t, conn, func(env Envelope) bool {
		if env.Action != ActionReady {
			return false
		}
		var d readyData
		require.NoError(t, json.Unmarshal(env.Data, &d))
		return d.Ready
	})
}

func send(t *testing.T, conn *websocket.Conn, act string, data any) {
	t.Helper()
	env := Envelope{Action: act}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		env.Data = raw
	}
	require.NoError(t, conn.WriteJSON(env))
}

func TestIndexRendersFirstStep(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	html := string(body)
	assert.Contains(t, html, "<title>Vectors</title>")
	assert.Contains(t, html, "Adding Numbers")
	assert.Contains(t, html, "Step 1 of 3")
	assert.Contains(t, html, "<strong>calculator</strong>")
	assert.Contains(t, html, "print(2 &#43; 2)")
	assert.Contains(t, html, `data-min-height="60"`)
	assert.Contains(t, html, `data-max-height="600"`)
	assert.Contains(t, html, "Loading Python environment")
}

func TestSecurityHeaders(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "connect-src 'self'")
}

func TestIndexCompressed(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Adding Numbers")
}

func TestServeAssets(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	tests := []struct {
		path        string
		status      int
		contentType string
	}{
		{"/assets/mathwalk.js", http.StatusOK, "application/javascript"},
		{"/assets/mathwalk.css", http.StatusOK, "text/css"},
		{"/assets/missing.js", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["steps"])
	assert.Equal(t, float64(0), body["sessions"])
}

func TestUnknownPathRedirects(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(ts.URL + "/lesson/2")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestNewRejectsBadLessons(t *testing.T) {
	_, err := New(config.DefaultConfig(), filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)

	dir := t.TempDir()
	writeLessons(t, dir, "---\nruntime: lua\n---\n\n## One\n\n```python step\nprint(1)\n```\n")
	_, err = New(config.DefaultConfig(), dir, nil)
	assert.ErrorContains(t, err, `unknown runtime backend "lua"`)
}

func TestSessionRendersFirstStepOnConnect(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)
	conn := dial(t, ts)

	env := readUntil(t, conn, action(ActionStep))
	var step tutor.StepView
	require.NoError(t, json.Unmarshal(env.Data, &step))
	assert.Equal(t, 0, step.Index)
	assert.Equal(t, 3, step.Count)
	assert.Equal(t, "Adding Numbers", step.Title)
	assert.False(t, step.PrevEnabled)
	assert.True(t, step.NextEnabled)
	require.Len(t, step.Items, 3)
	assert.True(t, step.Items[0].Active)

	env = readUntil(t, conn, action(ActionCode))
	var code tutor.CodeView
	require.NoError(t, json.Unmarshal(env.Data, &code))
	assert.Equal(t, "print(2 + 2)\n", code.Code)
	assert.False(t, code.Loading)

	waitReady(t, conn)
}

func TestSessionRunsCode(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)
	conn := dial(t, ts)
	waitReady(t, conn)

	send(t, conn, ActionRun, runData{Code: "print(2 + 2)"})
	env := readUntil(t, conn, outputKind(t, tutor.KindResult))
	assert.Equal(t, "4", strings.TrimSpace(outputOf(t, env).Text))

	// Globals persist between runs of one session.
	send(t, conn, ActionRun, runData{Code: "import numpy as np\nv = np.array([1, 2])"})
	readUntil(t, conn, outputKind(t, tutor.KindResult))
	send(t, conn, ActionRun, runData{Code: "print(np.dot(v, v))"})
	env = readUntil(t, conn, outputKind(t, tutor.KindResult))
	assert.Equal(t, "5", strings.TrimSpace(outputOf(t, env).Text))
}

func TestSessionRunError(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)
	conn := dial(t, ts)
	waitReady(t, conn)

	send(t, conn, ActionRun, runData{Code: "print(1 / 0)"})
	env := readUntil(t, conn, outputKind(t, tutor.KindError))
	out := outputOf(t, env)
	assert.True(t, out.Highlight)
	assert.Contains(t, out.Text, "division by zero")
}

func TestSessionNavigationFetchesScript(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)
	conn := dial(t, ts)
	readUntil(t, conn, action(ActionStep))

	send(t, conn, ActionNext, nil)
	env := readUntil(t, conn, action(ActionStep))
	var step tutor.StepView
	require.NoError(t, json.Unmarshal(env.Data, &step))
	assert.Equal(t, 1, step.Index)
	assert.Equal(t, "Doubling", step.Title)

	env = readUntil(t, conn, func(env Envelope) bool {
		if env.Action != ActionCode {
			return false
		}
		var code tutor.CodeView
		require.NoError(t, json.Unmarshal(env.Data, &code))
		return code.Index == 1 && !code.Loading
	})
	var code tutor.CodeView
	require.NoError(t, json.Unmarshal(env.Data, &code))
	assert.Equal(t, testScript, code.Code)

	send(t, conn, ActionGoTo, gotoData{Index: 2})
	env = readUntil(t, conn, action(ActionStep))
	require.NoError(t, json.Unmarshal(env.Data, &step))
	assert.Equal(t, 2, step.Index)
	assert.False(t, step.NextEnabled)

	// Out of range is ignored; prev still works afterwards.
	send(t, conn, ActionGoTo, gotoData{Index: 7})
	send(t, conn, ActionPrev, nil)
	env = readUntil(t, conn, action(ActionStep))
	require.NoError(t, json.Unmarshal(env.Data, &step))
	assert.Equal(t, 1, step.Index)
}

func TestReconnectRestoresStep(t *testing.T) {
	srv, ts, _ := newTestServer(t, nil)
	conn := dial(t, ts)
	readUntil(t, conn, action(ActionStep))
	send(t, conn, ActionGoTo, gotoData{Index: 2})
	readUntil(t, conn, func(env Envelope) bool {
		if env.Action != ActionStep {
			return false
		}
		var step tutor.StepView
		require.NoError(t, json.Unmarshal(env.Data, &step))
		return step.Index == 2
	})
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return srv.SessionCount() == 0 }, 5*time.Second, 10*time.Millisecond)

	// The client asks for its last step as soon as the new socket opens,
	// before the fresh session has finished showing the first one.
	conn = dial(t, ts)
	send(t, conn, ActionGoTo, gotoData{Index: 2})

	// Bootstrap and navigation race, so wait for both in any order.
	var step tutor.StepView
	var code tutor.CodeView
	ready := false
	readUntil(t, conn, func(env Envelope) bool {
		switch env.Action {
		case ActionStep:
			require.NoError(t, json.Unmarshal(env.Data, &step))
		case ActionCode:
			require.NoError(t, json.Unmarshal(env.Data, &code))
		case ActionReady:
			var d readyData
			require.NoError(t, json.Unmarshal(env.Data, &d))
			ready = d.Ready
		}
		return ready && step.Index == 2 && code.Index == 2
	})
	assert.Equal(t, "Dot Product", step.Title)
	assert.Contains(t, code.Code, "np.dot")

	send(t, conn, ActionRun, runData{Code: code.Code})
	env := readUntil(t, conn, outputKind(t, tutor.KindResult))
	assert.Equal(t, "11", strings.TrimSpace(outputOf(t, env).Text))
}

func TestSessionIgnoresMalformedMessages(t *testing.T) {
	_, ts, _ := newTestServer(t, nil)
	conn := dial(t, ts)
	readUntil(t, conn, action(ActionStep))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, conn, "dance", nil)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"goto","data":"two"}`)))

	send(t, conn, ActionNext, nil)
	env := readUntil(t, conn, action(ActionStep))
	var step tutor.StepView
	require.NoError(t, json.Unmarshal(env.Data, &step))
	assert.Equal(t, 1, step.Index)
}

func TestReloadBroadcasts(t *testing.T) {
	srv, ts, dir := newTestServer(t, nil)
	conn := dial(t, ts)
	readUntil(t, conn, action(ActionStep))
	require.Eventually(t, func() bool { return srv.SessionCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	writeLessons(t, dir, strings.Replace(testLesson, "title: Vectors", "title: Matrices", 1))
	require.NoError(t, srv.Reload("lessons.md"))

	env := readUntil(t, conn, action(ActionReload))
	var data reloadData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "lessons.md", data.File)
	assert.Equal(t, "Matrices", srv.Tutorial().Title)
}

func TestReloadKeepsLessonsOnError(t *testing.T) {
	srv, _, dir := newTestServer(t, nil)

	writeLessons(t, dir, "---\ntitle: Broken\n---\n\nNo steps here.\n")
	assert.Error(t, srv.Reload("lessons.md"))
	assert.Equal(t, "Vectors", srv.Tutorial().Title)
}

func TestWatchReloadsOnChange(t *testing.T) {
	srv, ts, dir := newTestServer(t, nil)
	require.NoError(t, srv.EnableWatch())
	conn := dial(t, ts)
	readUntil(t, conn, action(ActionStep))
	require.Eventually(t, func() bool { return srv.SessionCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "scripts", "double.star"), []byte("print(4)\n"), 0o644))

	env := readUntil(t, conn, action(ActionReload))
	var data reloadData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, filepath.Join("scripts", "double.star"), data.File)
}

func TestCloseEndsSessions(t *testing.T) {
	srv, ts, _ := newTestServer(t, nil)
	conn := dial(t, ts)
	waitReady(t, conn)
	require.Eventually(t, func() bool { return srv.SessionCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Close())
	assert.Equal(t, 0, srv.SessionCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.NoError(t, srv.Close())
}

func TestRunLimiter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimit = config.RateLimitConfig{}
	srv := &Server{config: cfg}
	assert.Equal(t, rate.Inf, srv.runLimiter().Limit())

	cfg.RateLimit = config.RateLimitConfig{RunsPerSecond: 0.001}
	lim := srv.runLimiter()
	assert.Equal(t, 1, lim.Burst())
	assert.True(t, lim.Allow())
	assert.False(t, lim.Allow())

	cfg.RateLimit = config.RateLimitConfig{RunsPerSecond: 2, Burst: 4}
	assert.Equal(t, 4, srv.runLimiter().Burst())
}
