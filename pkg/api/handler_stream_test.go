package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amtlich/amtlich/pkg/progress"
)

func getStream(s *Server, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestStreamHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("finished stream replays all events and ends", func(t *testing.T) {
		s := newTestServer(t)
		stream := s.svc.Broker().Open("tree-1")
		stream.Publish(ctx, progress.PlanStarted, "", nil)
		stream.Publish(ctx, progress.StepCompleted, "search", nil)
		stream.Publish(ctx, progress.PlanCompleted, "", nil)
		require.True(t, stream.Closed())

		rec := getStream(s, "/api/v1/stream/tree-1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

		body := rec.Body.String()
		assert.Contains(t, body, "event: plan_started")
		assert.Contains(t, body, "event: step_completed")
		assert.Contains(t, body, "event: plan_completed")
	})

	t.Run("after_seq skips replayed events", func(t *testing.T) {
		s := newTestServer(t)
		stream := s.svc.Broker().Open("tree-2")
		stream.Publish(ctx, progress.PlanStarted, "", nil)
		stream.Publish(ctx, progress.PlanCompleted, "", nil)

		body := getStream(s, "/api/v1/stream/tree-2?after_seq=1").Body.String()
		assert.NotContains(t, body, "event: plan_started")
		assert.Contains(t, body, "event: plan_completed")
	})

	t.Run("unknown tree id is not found", func(t *testing.T) {
		s := newTestServer(t)
		rec := getStream(s, "/api/v1/stream/unbekannt")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed after_seq is a bad request", func(t *testing.T) {
		s := newTestServer(t)
		s.svc.Broker().Open("tree-3").Publish(ctx, progress.PlanCompleted, "", nil)

		rec := getStream(s, "/api/v1/stream/tree-3?after_seq=-1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = getStream(s, "/api/v1/stream/tree-3?after_seq=abc")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
