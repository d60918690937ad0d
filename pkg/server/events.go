package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wakeguard/wakeguard/pkg/notify"
)

// streamedEventTypes lists the notification types bridged onto the SSE
// stream, in no particular order.
var streamedEventTypes = []notify.EventType{
	notify.EventEnabled,
	notify.EventDisabled,
	notify.EventError,
	notify.EventPerformance,
	notify.EventFallback,
	notify.EventBatteryChange,
	notify.EventVisibilityChange,
}

// clientBuffer bounds the per-connection event queue. Slow consumers drop
// events rather than block the hub.
const clientBuffer = 64

// handleEvents streams hub notifications as server-sent events. An
// optional types query parameter (comma separated) narrows the stream.
func (s *Server) handleEvents(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errStreamUnsupported.Error()})
		return
	}

	wanted := parseTypeFilter(c.Query("types"))

	events := make(chan notify.Event, clientBuffer)
	var subs []notify.Subscription
	for _, et := range streamedEventTypes {
		if wanted != nil && !wanted[et] {
			continue
		}
		subs = append(subs, s.hub.Subscribe(et, func(e notify.Event) {
			select {
			case events <- e:
			default:
				s.log.Warn("sse client too slow, dropping event", "type", e.Type)
			}
		}))
	}
	defer func() {
		for _, sub := range subs {
			_ = sub.Close()
		}
	}()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	if err := writeComment(c.Writer, "connected"); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			if err := writeComment(c.Writer, "heartbeat"); err != nil {
				return
			}
			flusher.Flush()
		case evt := <-events:
			if err := writeEvent(c.Writer, evt); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseTypeFilter(raw string) map[notify.EventType]bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	wanted := map[notify.EventType]bool{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			wanted[notify.EventType(part)] = true
		}
	}
	return wanted
}

func writeComment(w http.ResponseWriter, value string) error {
	_, err := w.Write([]byte(": " + value + "\n\n"))
	return err
}

func writeEvent(w http.ResponseWriter, evt notify.Event) error {
	data, err := json.Marshal(evt.Payload)
	if err != nil {
		data = []byte("{}")
	}

	var buffer bytes.Buffer
	buffer.WriteString("event: ")
	buffer.WriteString(string(evt.Type))
	buffer.WriteByte('\n')
	for _, line := range strings.Split(string(data), "\n") {
		buffer.WriteString("data: ")
		buffer.WriteString(line)
		buffer.WriteByte('\n')
	}
	buffer.WriteByte('\n')

	_, err = w.Write(buffer.Bytes())
	return err
}
