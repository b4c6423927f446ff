// Package e2e boots a complete in-process hub (badger on a temp dir,
// every service, the websocket transport) and drives it through real
// gorilla clients, one scenario per file.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"live-hub/auth"
	"live-hub/domain"
	"live-hub/infrastructure/ws"
	"live-hub/moderation"
	"live-hub/observability"
	"live-hub/repositories"
	"live-hub/runtime"
	"live-hub/runtime/workers"
	"live-hub/services"
)

const (
	testSecret = "e2e-secret"

	// silenceWindow is how long a scenario listens before concluding an
	// event was correctly suppressed.
	silenceWindow = 300 * time.Millisecond
)

type BaseHubSuite struct {
	suite.Suite
	Config Config

	db        *badger.DB
	store     *repositories.Store
	directory *auth.TokenDirectory
	server    *httptest.Server
	cancel    context.CancelFunc
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseHubSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

// SetupTest boots a fresh hub: empty database, empty presence, its own
// heartbeat worker.
func (s *BaseHubSuite) SetupTest() {
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions(s.T().TempDir()).WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)
	s.db = db

	moderator, err := moderation.NewModerator([]string{"badger"}, '*', log)
	s.Require().NoError(err)

	metrics := observability.NewMetrics()
	registry := runtime.NewPresenceRegistry()
	router := runtime.NewRoomRouter()
	s.store = repositories.NewStore(db, log, nil)
	s.directory = auth.NewTokenDirectory(testSecret, time.Hour)

	presence := services.NewPresenceService(log, registry, router, s.directory, s.store, metrics, 5*time.Second)
	chat := services.NewChatService(log, registry, router, s.store, &moderator, metrics)
	calls := services.NewCallService(log, registry, s.store, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	sup := workers.NewSupervisor(log, time.Second)
	sup.Add(workers.NewHeartbeatWorker(log, registry, s.Config.HeartbeatInterval))
	go sup.Run(ctx)

	handler := ws.NewHandler(log, presence, chat, calls, metrics, 64, time.Second, 2048)
	mux := http.NewServeMux()
	mux.Handle("/ws", handler)
	s.server = httptest.NewServer(mux)
}

func (s *BaseHubSuite) TearDownTest() {
	s.cancel()
	s.server.Close()
	s.Require().NoError(s.db.Close())
}

// Seed prepares authoritative state behind the hub's back, the way the
// CRUD backend would.
func (s *BaseHubSuite) SeedConversation(conversation domain.ConversationID, members ...domain.Identity) {
	ctx := context.Background()
	for _, member := range members {
		s.Require().NoError(s.store.AddMember(ctx, conversation, member))
	}
}

func (s *BaseHubSuite) SeedMutualFollow(a, b domain.Identity) {
	ctx := context.Background()
	s.Require().NoError(s.store.AddFollow(ctx, a, b))
	s.Require().NoError(s.store.AddFollow(ctx, b, a))
}

// hubClient is one websocket connection plus the ceremony around it.
type hubClient struct {
	t        *testing.T
	name     string
	conn     *websocket.Conn
	timeout  time.Duration
	colours  bool
	ackProbe bool
}

// NewClient mints a token for username and dials the hub.
func (s *BaseHubSuite) NewClient(username domain.Identity) *hubClient {
	token, err := s.directory.GenerateToken(username, time.Hour)
	s.Require().NoError(err)
	return s.dial(string(username), "token="+token)
}

// NewAnonymousClient dials without a usable token.
func (s *BaseHubSuite) NewAnonymousClient() *hubClient {
	return s.dial("anonymous", "token=forged")
}

func (s *BaseHubSuite) dial(name, query string) *hubClient {
	wsURL := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	s.Require().NoError(err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	client := &hubClient{
		t:        s.T(),
		name:     name,
		conn:     conn,
		timeout:  s.Config.EventTimeout,
		colours:  s.Config.Colours,
		ackProbe: true,
	}
	s.T().Cleanup(client.Close)
	return client
}

func (c *hubClient) Close() {
	_ = c.conn.Close()
}

// Send writes one protocol frame.
func (c *hubClient) Send(eventName string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.t.Fatalf("%s: marshal %s: %v", c.name, eventName, err)
	}
	c.log("->", eventName, data)
	if err := c.conn.WriteJSON(ws.Envelope{Event: eventName, Data: data}); err != nil {
		c.t.Fatalf("%s: send %s: %v", c.name, eventName, err)
	}
}

// Expect reads frames until eventName arrives, acking heartbeat probes
// on the way, and decodes its payload into out (when non-nil). Any
// other event is a scenario failure.
func (c *hubClient) Expect(eventName string, out any) {
	env := c.next()
	if env.Event != eventName {
		c.t.Fatalf("%s: expected %s, got %s (%s)", c.name, eventName, env.Event, env.Data)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			c.t.Fatalf("%s: decode %s: %v", c.name, eventName, err)
		}
	}
}

// ExpectSilence asserts nothing but heartbeats arrives for a window.
// A read deadline expiry poisons the websocket, so this must be the
// last assertion made on this client.
func (c *hubClient) ExpectSilence(window time.Duration) {
	deadline := time.Now().Add(window)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		var env ws.Envelope
		err := c.conn.ReadJSON(&env)
		if err != nil {
			return // deadline hit, silence held
		}
		if env.Event == "heartbeat" {
			if c.ackProbe {
				c.Send("heartbeat_ack", struct{}{})
			}
			continue
		}
		c.t.Fatalf("%s: expected silence, got %s (%s)", c.name, env.Event, env.Data)
	}
}

// WaitHeartbeat blocks until the server probes this connection, acking
// it. Other frames arriving first are a scenario failure.
func (c *hubClient) WaitHeartbeat() {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	var env ws.Envelope
	if err := c.conn.ReadJSON(&env); err != nil {
		c.t.Fatalf("%s: waiting for heartbeat: %v", c.name, err)
	}
	c.log("<-", env.Event, env.Data)
	if env.Event != "heartbeat" {
		c.t.Fatalf("%s: expected heartbeat, got %s", c.name, env.Event)
	}
	c.Send("heartbeat_ack", struct{}{})
}

// next reads one non-heartbeat frame; heartbeats are acked and skipped.
func (c *hubClient) next() ws.Envelope {
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
		var env ws.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.t.Fatalf("%s: read: %v", c.name, err)
		}
		c.log("<-", env.Event, env.Data)
		if env.Event == "heartbeat" {
			if c.ackProbe {
				c.Send("heartbeat_ack", struct{}{})
			}
			continue
		}
		return env
	}
}

func (c *hubClient) log(direction, eventName string, data []byte) {
	line := fmt.Sprintf("  [%s] %s %-22s %s", c.name, direction, eventName, data)
	if c.colours {
		if eventName == "error" {
			line = color.New(color.FgRed).Render(line)
		} else {
			line = color.New(color.FgCyan).Render(line)
		}
	}
	c.t.Log(line)
}
