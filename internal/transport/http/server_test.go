package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backcast/internal/market"
	"backcast/internal/runtime"
)

type stubLauncher struct {
	launched []LaunchRequest
	active   map[string]runtime.Run
	err      error
}

func (s *stubLauncher) Launch(_ context.Context, req LaunchRequest) (runtime.Run, error) {
	if s.err != nil {
		return runtime.Run{}, s.err
	}
	s.launched = append(s.launched, req)
	return runtime.Run{ID: "run-new", Status: runtime.RunStatusPending}, nil
}

func (s *stubLauncher) Progress(id string) (runtime.Run, bool) {
	run, ok := s.active[id]
	return run, ok
}

type stubStore struct {
	runs  map[string]runtime.Run
	fills map[string][]runtime.Fill
}

func (s *stubStore) GetRun(_ context.Context, id string) (runtime.Run, bool, error) {
	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *stubStore) ListRuns(context.Context, int) ([]runtime.Run, error) {
	out := make([]runtime.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	return out, nil
}

func (s *stubStore) ListFills(_ context.Context, runID string) ([]runtime.Fill, error) {
	return s.fills[runID], nil
}

type stubCandles struct{}

func (stubCandles) QueryCandles(_ context.Context, symbolKey, interval string, _, _ int64, _ int) ([]market.Candle, error) {
	return []market.Candle{{TS: 1000, Close: 100, Instrument: market.InstrumentRef{Symbol: symbolKey}, Interval: interval}}, nil
}

func newTestServer(t *testing.T, launcher *stubLauncher, store *stubStore) *Server {
	t.Helper()
	srv, err := NewServer(Config{Launcher: launcher, Store: store, Candles: stubCandles{}})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	out := map[string]json.RawMessage{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestRunStart(t *testing.T) {
	launcher := &stubLauncher{}
	srv := newTestServer(t, launcher, &stubStore{})

	rec, body := doJSON(t, srv, http.MethodPost, "/api/backcast/runs",
		`{"symbols":["BTC-USDT"],"start_ts":1000,"end_ts":2000,"interval":"1m"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, string(body["run"]), "run-new")
	require.Len(t, launcher.launched, 1)
	assert.Equal(t, []string{"BTC-USDT"}, launcher.launched[0].Symbols)
}

func TestRunStartValidation(t *testing.T) {
	srv := newTestServer(t, &stubLauncher{}, &stubStore{})

	rec, _ := doJSON(t, srv, http.MethodPost, "/api/backcast/runs", `{"symbols":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunStartLauncherError(t *testing.T) {
	srv := newTestServer(t, &stubLauncher{err: errors.New("回测起点必须早于终点")}, &stubStore{})

	rec, _ := doJSON(t, srv, http.MethodPost, "/api/backcast/runs",
		`{"symbols":["BTC-USDT"],"start_ts":2000,"end_ts":1000}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunDetailPrefersActive(t *testing.T) {
	launcher := &stubLauncher{active: map[string]runtime.Run{
		"run-1": {ID: "run-1", Status: runtime.RunStatusRunning, ProgressPct: 42},
	}}
	store := &stubStore{runs: map[string]runtime.Run{
		"run-1": {ID: "run-1", Status: runtime.RunStatusDone},
		"run-2": {ID: "run-2", Status: runtime.RunStatusDone},
	}}
	srv := newTestServer(t, launcher, store)

	rec, body := doJSON(t, srv, http.MethodGet, "/api/backcast/runs/run-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body["run"]), `"running"`)

	rec, body = doJSON(t, srv, http.MethodGet, "/api/backcast/runs/run-2", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body["run"]), `"done"`)

	rec, _ = doJSON(t, srv, http.MethodGet, "/api/backcast/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunProgress(t *testing.T) {
	launcher := &stubLauncher{active: map[string]runtime.Run{
		"run-1": {ID: "run-1", Status: runtime.RunStatusRunning, ProgressPct: 30},
	}}
	store := &stubStore{runs: map[string]runtime.Run{
		"run-2": {ID: "run-2", Status: runtime.RunStatusDone},
	}}
	srv := newTestServer(t, launcher, store)

	rec, body := doJSON(t, srv, http.MethodGet, "/api/backcast/runs/run-1/progress", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "30", string(body["progress_pct"]))

	rec, body = doJSON(t, srv, http.MethodGet, "/api/backcast/runs/run-2/progress", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", string(body["progress_pct"]))
}

func TestRunFills(t *testing.T) {
	store := &stubStore{fills: map[string][]runtime.Fill{
		"run-1": {{ID: 1, RunID: "run-1"}},
	}}
	srv := newTestServer(t, &stubLauncher{}, store)

	rec, body := doJSON(t, srv, http.MethodGet, "/api/backcast/runs/run-1/fills", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body["fills"]), `"run-1"`)
}

func TestCandlesEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubLauncher{}, &stubStore{})

	rec, body := doJSON(t, srv, http.MethodGet, "/api/backcast/candles?symbol=BTC-USDT&interval=1m", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body["candles"]), "BTC-USDT")

	rec, _ = doJSON(t, srv, http.MethodGet, "/api/backcast/candles", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &stubLauncher{}, &stubStore{})
	rec, _ := doJSON(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
