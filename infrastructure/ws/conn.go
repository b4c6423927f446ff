package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"live-hub/domain"
	"live-hub/domain/event"
)

var errSendBufferFull = fmt.Errorf("connection send buffer full")

// Conn wraps one websocket connection. It is the EventSink registered
// for the session: Consume enqueues into a buffered channel drained by
// a single writer goroutine, so a slow or stuck peer backpressures only
// its own queue and never a fan-out caller.
type Conn struct {
	id       domain.ConnID
	ws       *websocket.Conn
	outbound chan event.DomainEvent
	log      *slog.Logger

	writeTimeout time.Duration
}

func NewConn(id domain.ConnID, ws *websocket.Conn, bufferSize int,
	writeTimeout time.Duration, log *slog.Logger) *Conn {
	return &Conn{
		id:           id,
		ws:           ws,
		outbound:     make(chan event.DomainEvent, bufferSize),
		log:          log,
		writeTimeout: writeTimeout,
	}
}

func (c *Conn) ID() domain.ConnID { return c.id }

// Consume hands an event to the writer goroutine. It never blocks: a
// full buffer drops the event for this connection only.
func (c *Conn) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case c.outbound <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errSendBufferFull
	}
}

// WritePump serializes all socket writes. It returns when ctx is
// canceled or the socket write fails; the read loop notices the closed
// socket and tears the session down.
func (c *Conn) WritePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-c.outbound:
			frame, err := encode(evt)
			if err != nil {
				c.log.Error("Failed to encode event", "event", evt.EventName(), "error", err)
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Write failed, closing connection", "conn", c.id, "error", err)
				_ = c.ws.Close()
				return
			}
		}
	}
}

func encode(evt event.DomainEvent) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: evt.EventName(), Data: data})
}
