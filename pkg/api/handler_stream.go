package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
)

// streamHandler handles GET /api/v1/stream/:tree_id as Server-Sent
// Events. Missed events are replayed from ?after_seq; the stream closes
// after the terminal event.
func (s *Server) streamHandler(c *echo.Context) error {
	treeID := c.Param("tree_id")
	stream := s.svc.Broker().Get(treeID)
	if stream == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown tree id")
	}

	afterSeq := int64(0)
	if v := c.QueryParam("after_seq"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "after_seq must be a non-negative integer")
		}
		afterSeq = parsed
	}

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	events, cancel := stream.Subscribe(afterSeq)
	defer cancel()

	ctx := c.Request().Context()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return nil
			}
			if err := rc.Flush(); err != nil {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}
