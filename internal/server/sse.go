package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lorenzotomasdiez/verdict/internal/events"
)

const pingInterval = 25 * time.Second

// handleStream tails a debate's live events as server-sent events. There is
// no replay: subscribers see only what happens after they connect. The
// connection closes when the client goes away.
func (s *Server) handleStream(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	debateID := c.Param("id")
	ch, unsubscribe := s.bus.Subscribe(debateID)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", events.TypePing)
			flusher.Flush()
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := writeEvent(c.Writer, ev); err != nil {
				s.logger.Warn("sse write failed", zap.String("debate_id", debateID), zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev events.Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshaling event payload: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
