package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/remedyd/pkg/events"
	"github.com/fyrsmithlabs/remedyd/pkg/pipeline"
)

// heartbeatInterval is how often an SSE comment keeps idle connections
// alive through proxies.
const heartbeatInterval = 30 * time.Second

// handleCaseEvents streams the events of one case via Server-Sent Events.
//
// The handler subscribes to the case's NATS subjects and relays every
// event to the client. The connection stays open until a terminal event
// arrives or the client disconnects. A case that already finished gets
// its terminal event replayed from the registry.
//
// SSE event types mirror the published case events:
//   - started: the first stage transition was observed
//   - stage: one stage started, completed, or failed
//   - completed: the run finished with every stage completed
//   - failed: the run ended early
func (s *Server) handleCaseEvents(c echo.Context) error {
	if s.nc == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "event streaming is not configured",
		})
	}
	caseID := c.Param("case_id")
	if _, err := s.registry.Get(caseID); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "case not found",
		})
	}

	h := c.Response().Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering

	msgChan := make(chan *nats.Msg, 10)
	sub, err := s.nc.ChanSubscribe(events.AllSubjects(caseID), msgChan)
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	// A run that finished before the subscription never publishes again;
	// replay its terminal event so late subscribers are not left waiting.
	if rec, err := s.registry.Get(caseID); err == nil && rec.Status.Terminal() {
		return s.writeTerminalEvent(c, rec)
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-msgChan:
			parts := strings.Split(msg.Subject, ".")
			if len(parts) < 3 {
				continue
			}
			event := parts[len(parts)-1]
			if err := writeSSE(c, event, msg.Data); err != nil {
				return err
			}
			if event == events.EventCompleted || event == events.EventFailed {
				return nil
			}

		case <-ticker.C:
			fmt.Fprintf(c.Response(), ": heartbeat\n\n")
			c.Response().Flush()

		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// writeTerminalEvent emits the terminal event of an already finished
// case from its registry record.
func (s *Server) writeTerminalEvent(c echo.Context, rec events.CaseRecord) error {
	event := events.EventCompleted
	if rec.Status != pipeline.StatusComplete {
		event = events.EventFailed
	}
	payload := any(rec.Case)
	if rec.Case == nil {
		payload = rec
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writeSSE(c, event, data)
}

func writeSSE(c echo.Context, event string, data []byte) error {
	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}
