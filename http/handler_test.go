package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aukilabs/raido/models"
	"github.com/aukilabs/raido/rtree"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func TestHandleHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	HandleHealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleReadyCheck(t *testing.T) {
	tests := []struct {
		name   string
		ready  bool
		status int
	}{
		{name: "ready", ready: true, status: http.StatusOK},
		{name: "not ready", ready: false, status: http.StatusServiceUnavailable},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleReadyCheck(func() bool { return test.ready })(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			require.Equal(t, test.status, w.Code)
		})
	}
}

func TestHandleVersion(t *testing.T) {
	w := httptest.NewRecorder()
	HandleVersion("v1.2.3")(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "v1.2.3", w.Body.String())
}

func TestHandleIndexList(t *testing.T) {
	indexes := &models.IndexStore{ServerID: "ted"}

	index := indexes.NewIndex()
	require.NoError(t, indexes.Add(context.Background(), index))

	require.NoError(t, index.AddParticipant(&models.Participant{ID: index.NewParticipantID()}))
	_, err := index.AddEntity(1, rtree.Point{X: 1, Y: 2}, false)
	require.NoError(t, err)
	_, err = index.AddEntity(1, rtree.Point{X: 3, Y: 4}, false)
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleIndexList(indexes)(w, httptest.NewRequest(http.MethodGet, "/indexes", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var infos []IndexInfo
		err := json.Unmarshal(w.Body.Bytes(), &infos)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		require.Equal(t, "tedx1", infos[0].ID)
		require.Equal(t, index.UUID, infos[0].UUID)
		require.Equal(t, 1, infos[0].Participants)
		require.Equal(t, 2, infos[0].Stats.Len)
		require.Equal(t, &rtree.Box{MinX: 1, MinY: 2, MaxX: 3, MaxY: 4}, infos[0].Stats.Bounds)
	})

	t.Run("method not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleIndexList(indexes)(w, httptest.NewRequest(http.MethodPost, "/indexes", nil))
		require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestHandleWithCORS(t *testing.T) {
	var called bool
	h := HandleWithCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("preflight", func(t *testing.T) {
		called = false
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/health", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
		require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		require.False(t, called)
	})

	t.Run("request", func(t *testing.T) {
		called = false
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		require.True(t, called)
	})
}
