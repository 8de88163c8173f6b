package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-engine/internal/config"
	"github.com/sells-group/signal-engine/internal/detector"
	"github.com/sells-group/signal-engine/internal/engine"
	"github.com/sells-group/signal-engine/internal/model"
	"github.com/sells-group/signal-engine/internal/store"
)

func newTestServer(t *testing.T, st store.Store) *Server {
	t.Helper()

	manager := engine.NewManager(func(key string) (*engine.Session, error) {
		settings := engine.DefaultSettings()
		settings.MinWindowSize = 100 // keep the arbiter quiet unless a test wants signals
		return engine.NewSession(key, settings, detector.DoubleSpace(),
			detector.NewRegistry(detector.NewStreak(detector.DefaultStreakParams(), detector.DoubleSpace(), detector.ModeReversion)))
	})

	return New(manager, st, nil, config.ServerConfig{Port: 0})
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_SubmitOutcome(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPost, "/outcomes", map[string]any{
		"session":  "table-1",
		"category": "black",
		"value":    9,
	})

	assert.Equal(t, http.StatusOK, rr.Code)

	var res engine.SubmitResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, int64(1), res.Event.Sequence)
	assert.Equal(t, model.CategoryBlack, res.Event.Category)
	assert.Equal(t, "api", res.Event.Source)
}

func TestServer_SubmitOutcome_InvalidCategory(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPost, "/outcomes", map[string]any{
		"session":  "table-1",
		"category": "green",
		"value":    5,
	})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_SubmitOutcome_MissingSession(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPost, "/outcomes", map[string]any{
		"category": "red",
		"value":    1,
	})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "session is required")
}

func TestServer_SubmitOutcome_InvalidJSON(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/outcomes", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestServer_ListSessions(t *testing.T) {
	srv := newTestServer(t, nil)

	doJSON(t, srv, http.MethodPost, "/outcomes", map[string]any{
		"session": "b-table", "category": "red", "value": 1,
	})
	doJSON(t, srv, http.MethodPost, "/outcomes", map[string]any{
		"session": "a-table", "category": "black", "value": 9,
	})

	rr := doJSON(t, srv, http.MethodGet, "/sessions", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Sessions []string `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, []string{"a-table", "b-table"}, body.Sessions)
}

func TestServer_SessionEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	for i := 0; i < 3; i++ {
		rr := doJSON(t, srv, http.MethodPost, "/outcomes", map[string]any{
			"session": "table-1", "category": "black", "value": 9,
		})
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := doJSON(t, srv, http.MethodGet, "/sessions/table-1/pending", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var pending struct {
		State   string           `json:"state"`
		Pending *json.RawMessage `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pending))
	assert.Equal(t, "idle", pending.State)
	assert.Nil(t, pending.Pending)

	rr = doJSON(t, srv, http.MethodGet, "/sessions/table-1/performance", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var perf map[string]model.PatternPerformance
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &perf))
	require.Contains(t, perf, "streak")
	assert.Equal(t, 0, perf["streak"].Total)

	rr = doJSON(t, srv, http.MethodGet, "/sessions/table-1/history?limit=2", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var history struct {
		Events []model.OutcomeEvent `json:"events"`
		Total  int                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	assert.Len(t, history.Events, 2)
	assert.Equal(t, 3, history.Total)
	assert.Equal(t, int64(2), history.Events[0].Sequence)
}

func TestServer_SessionNotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{
		"/sessions/ghost/pending",
		"/sessions/ghost/performance",
		"/sessions/ghost/history",
	} {
		rr := doJSON(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}

func TestServer_HistoryRejectsBadLimit(t *testing.T) {
	srv := newTestServer(t, nil)

	doJSON(t, srv, http.MethodPost, "/outcomes", map[string]any{
		"session": "table-1", "category": "red", "value": 1,
	})

	rr := doJSON(t, srv, http.MethodGet, "/sessions/table-1/history?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_PredictionsWithoutStore(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodGet, "/predictions", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = doJSON(t, srv, http.MethodGet, "/patterns/summary", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestServer_PredictionsFromStore(t *testing.T) {
	st, err := store.NewSQLite(t.TempDir() + "/signals.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	pred := model.Prediction{
		ID:          "11111111-1111-1111-1111-111111111111",
		SessionKey:  "table-1",
		PatternID:   "streak",
		Recommended: model.CategoryRed,
		Confidence:  0.74,
		Status:      model.PredictionPending,
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.SavePrediction(context.Background(), pred))

	srv := newTestServer(t, st)

	rr := doJSON(t, srv, http.MethodGet, "/predictions?session=table-1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Predictions []model.Prediction `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Predictions, 1)
	assert.Equal(t, "streak", body.Predictions[0].PatternID)

	rr = doJSON(t, srv, http.MethodGet, "/predictions?session=other", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Empty(t, body.Predictions)

	rr = doJSON(t, srv, http.MethodGet, "/patterns/summary", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var summary struct {
		Patterns []store.PatternSummary `json:"patterns"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	require.Len(t, summary.Patterns, 1)
	assert.Equal(t, 1, summary.Patterns[0].Pending)
}

func TestServer_MetricsWithoutCollector(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
