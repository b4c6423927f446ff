// Package ws is the real-time transport of the hub: one websocket per
// device, authenticated at upgrade time by the handshake token. The
// read loop is the per-connection goroutine of the concurrency model;
// all outbound traffic goes through the connection's single writer.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"live-hub/domain"
	"live-hub/domain/call"
	"live-hub/domain/event"
	"live-hub/errors"
	"live-hub/observability"
	"live-hub/services"
)

type Handler struct {
	log      *slog.Logger
	upgrader websocket.Upgrader
	presence services.IPresenceService
	chat     services.IChatService
	calls    services.ICallService
	metrics  *observability.Metrics
	validate *validator.Validate

	bufferSize       int
	writeTimeout     time.Duration
	maxContentLength int
}

func NewHandler(log *slog.Logger, presence services.IPresenceService,
	chat services.IChatService, calls services.ICallService,
	metrics *observability.Metrics, bufferSize int,
	writeTimeout time.Duration, maxContentLength int) *Handler {
	return &Handler{
		log:      log,
		presence: presence,
		chat:     chat,
		calls:    calls,
		metrics:  metrics,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy is enforced upstream; the hub accepts any.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		bufferSize:       bufferSize,
		writeTimeout:     writeTimeout,
		maxContentLength: maxContentLength,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := handshakeToken(r)

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	connID := domain.ConnID(uuid.NewString())
	conn := NewConn(connID, socket, h.bufferSize, h.writeTimeout, h.log)

	h.metrics.ActiveConnections.Add(1)
	defer h.metrics.ActiveConnections.Add(-1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.WritePump(ctx)

	// A failed token resolution keeps the connection open but binds no
	// session: every session-scoped event is then silently ignored.
	identity, err := h.presence.Connect(ctx, connID, token, conn)
	if err != nil {
		h.log.Warn("Unauthenticated connection", "conn", connID, "error", err)
	}

	// Disconnect is the clean teardown path, also on abrupt failures.
	defer h.presence.Disconnect(context.Background(), connID)
	defer socket.Close()

	for {
		_, frame, err := socket.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("Read failed", "conn", connID, "identity", identity, "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			h.log.Debug("Malformed frame", "conn", connID, "error", err)
			continue
		}
		h.dispatch(ctx, conn, identity, env)
	}
}

// dispatch routes one inbound envelope. All events are session-scoped:
// without a bound identity they are dropped without a reply.
func (h *Handler) dispatch(ctx context.Context, conn *Conn, identity domain.Identity, env Envelope) {
	if identity == "" {
		return
	}

	switch env.Event {
	case evHeartbeatAck:
		h.presence.HeartbeatAck(ctx, conn.ID())

	case evJoinConversation:
		var p joinConversationPayload
		if !h.decode(conn, env, &p) {
			return
		}
		h.chat.JoinRoom(conn.ID(), domain.ConversationID(p.ConversationID))

	case evLeaveConversation:
		var p joinConversationPayload
		if !h.decode(conn, env, &p) {
			return
		}
		h.chat.LeaveRoom(conn.ID(), domain.ConversationID(p.ConversationID))

	case evSendMessage:
		var p sendMessagePayload
		if !h.decode(conn, env, &p) {
			return
		}
		if len(p.Content) > h.maxContentLength {
			h.sendError(ctx, conn, fmt.Errorf("content exceeds %d bytes", h.maxContentLength))
			return
		}
		err := h.chat.Send(ctx, conn.ID(), identity, domain.ConversationID(p.ConversationID), p.Content, p.ReplyToMessageID)
		if err != nil {
			h.sendError(ctx, conn, err)
		}

	case evTyping:
		var p typingPayload
		if !h.decode(conn, env, &p) {
			return
		}
		h.chat.Typing(ctx, conn.ID(), identity, domain.ConversationID(p.ConversationID), p.IsTyping)

	case evMarkRead:
		var p markReadPayload
		if !h.decode(conn, env, &p) {
			return
		}
		err := h.chat.MarkRead(ctx, conn.ID(), identity, domain.ConversationID(p.ConversationID), p.UpToMessageID)
		if err != nil {
			h.sendError(ctx, conn, err)
		}

	case evInitiateCall:
		var p initiateCallPayload
		if !h.decode(conn, env, &p) {
			return
		}
		// The caller is the authenticated session, whatever the
		// payload claims.
		_, err := h.calls.Initiate(ctx, p.CallID, identity, domain.Identity(p.ReceiverID), call.Type(p.CallType))
		if err != nil {
			h.sendError(ctx, conn, err)
		}

	case evAcceptCall:
		if p, ok := h.callRef(conn, env); ok {
			h.calls.Accept(ctx, p.CallID, identity)
		}
	case evRejectCall:
		if p, ok := h.callRef(conn, env); ok {
			h.calls.Reject(ctx, p.CallID, identity)
		}
	case evEndCall:
		if p, ok := h.callRef(conn, env); ok {
			h.calls.End(ctx, p.CallID, identity)
		}
	case evUpgradeToVideo:
		if p, ok := h.callRef(conn, env); ok {
			h.calls.Upgrade(ctx, p.CallID, identity)
		}
	case evVideoUpgradeOK:
		if p, ok := h.callRef(conn, env); ok {
			h.calls.UpgradeAccepted(ctx, p.CallID, identity)
		}
	case evCallTimeout:
		if p, ok := h.callRef(conn, env); ok {
			h.calls.Timeout(ctx, p.CallID, identity)
		}

	default:
		h.log.Debug("Unknown event", "event", env.Event)
	}
}

func (h *Handler) callRef(conn *Conn, env Envelope) (callRefPayload, bool) {
	var p callRefPayload
	ok := h.decode(conn, env, &p)
	return p, ok
}

// decode unmarshals and validates an inbound payload. Malformed frames
// are dropped with a debug log, never an error event: the protocol
// reserves error events for domain failures.
func (h *Handler) decode(conn *Conn, env Envelope, payload any) bool {
	if err := json.Unmarshal(env.Data, payload); err != nil {
		h.log.Debug("Malformed payload", "event", env.Event, "conn", conn.ID(), "error", err)
		return false
	}
	if err := h.validate.Struct(payload); err != nil {
		h.log.Debug("Invalid payload", "event", env.Event, "conn", conn.ID(), "error", err)
		return false
	}
	return true
}

func (h *Handler) sendError(ctx context.Context, conn *Conn, err error) {
	evt := event.Error{Message: err.Error(), Code: errors.Code(err)}
	if consumeErr := conn.Consume(ctx, evt); consumeErr != nil {
		h.log.Debug("error event not delivered", "conn", conn.ID(), "error", consumeErr)
	}
}

// handshakeToken reads the token from the Authorization header or the
// token query parameter.
func handshakeToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
