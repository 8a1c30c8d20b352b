package socket

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/glizzus/soundlink/internal/engine"
	"github.com/glizzus/soundlink/internal/eventlog"
	"github.com/glizzus/soundlink/internal/generator"
	"github.com/glizzus/soundlink/internal/player"
	"github.com/glizzus/soundlink/internal/schedule"
	"github.com/gorilla/websocket"
)

const (
	DefaultStatsCron = "* * * * *"

	headerResumeKey     = "Resume-Key"
	headerSessionResume = "Session-Resumed"
)

type Config struct {
	// Password must match the Authorization header of every session.
	Password  string
	StatsCron string
	Player    player.Config
	Info      Info
}

type Option func(*Server)

func WithClock(clk clock.Clock) Option {
	return func(s *Server) { s.clock = clk }
}

// WithPublisher mirrors every outgoing message to publisher.
func WithPublisher(publisher eventlog.Publisher) Option {
	return func(s *Server) { s.publisher = publisher }
}

func WithSessionIDs(ids generator.Generator[string]) Option {
	return func(s *Server) { s.ids = ids }
}

// Server accepts controller sessions over websocket.
type Server struct {
	cfg       Config
	manager   engine.Manager
	voice     VoiceGateway
	clock     clock.Clock
	ids       generator.Generator[string]
	publisher eventlog.Publisher
	upgrader  websocket.Upgrader
	host      hostSampler
	start     time.Time

	mu        sync.Mutex
	contexts  map[string]*Context
	resumable map[string]*Context
	closed    bool
}

// NewServer creates a Server. voice may be nil, in which case connect
// requests are refused.
func NewServer(cfg Config, manager engine.Manager, voice VoiceGateway, opts ...Option) (*Server, error) {
	if cfg.Password == "" {
		return nil, fmt.Errorf("password must not be empty")
	}
	if cfg.StatsCron == "" {
		cfg.StatsCron = DefaultStatsCron
	}
	if err := schedule.ValidateCron(cfg.StatsCron); err != nil {
		return nil, fmt.Errorf("invalid stats cron: %w", err)
	}
	if cfg.Info.Go == "" {
		cfg.Info.Go = runtime.Version()
	}

	s := &Server{
		cfg:       cfg,
		manager:   manager,
		voice:     voice,
		clock:     clock.New(),
		ids:       &generator.UUIDV4Generator{},
		contexts:  make(map[string]*Context),
		resumable: make(map[string]*Context),
		upgrader: websocket.Upgrader{
			// Controllers are servers, not browsers; the password is the gate.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.clock.Now()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		slog.Warn("Rejecting session without authorization", "remote", r.RemoteAddr)
		http.Error(w, "missing authorization", http.StatusUnauthorized)
		return
	}
	if subtle.ConstantTimeCompare([]byte(auth), []byte(s.cfg.Password)) != 1 {
		slog.Warn("Rejecting session with wrong authorization", "remote", r.RemoteAddr)
		http.Error(w, "invalid authorization", http.StatusForbidden)
		return
	}

	if key := r.Header.Get(headerResumeKey); key != "" {
		if c := s.takeResumable(key); c != nil {
			s.serveResumed(w, r, c)
			return
		}
		slog.Info("Resume key did not match a paused session", "remote", r.RemoteAddr)
	}
	s.serveNew(w, r)
}

func (s *Server) takeResumable(key string) *Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.resumable[key]
	if !ok {
		return nil
	}
	delete(s.resumable, key)
	return c
}

func (s *Server) serveNew(w http.ResponseWriter, r *http.Request) {
	id, err := s.ids.Next()
	if err != nil {
		slog.Error("Failed to generate session id", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, http.Header{headerSessionResume: {"false"}})
	if err != nil {
		slog.Warn("WebSocket upgrade error", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newContext(id, s.manager, s.voice, s.cfg.Player, s.clock, s.publisher)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ws.Close()
		c.Shutdown()
		return
	}
	s.contexts[id] = c
	s.mu.Unlock()

	slog.Info("Session opened", "sessionID", id, "remote", r.RemoteAddr)
	conn := newConn(ws)
	c.attach(conn)
	c.Send(Hello{Op: "hello", SessionID: id, Info: s.cfg.Info})

	c.Send(s.stats(c))
	if err := schedule.Cron(c.ctx, s.clock, s.cfg.StatsCron, func(context.Context) {
		c.Send(s.stats(c))
	}); err != nil {
		slog.Error("Failed to schedule stats", "sessionID", id, "error", err)
	}

	s.readLoop(c, ws)
}

func (s *Server) serveResumed(w http.ResponseWriter, r *http.Request, c *Context) {
	ws, err := s.upgrader.Upgrade(w, r, http.Header{headerSessionResume: {"true"}})
	if err != nil {
		slog.Warn("WebSocket upgrade error", "remote", r.RemoteAddr, "error", err)
		s.disconnected(c)
		return
	}

	slog.Info("Session resumed", "sessionID", c.SessionID(), "remote", r.RemoteAddr)
	c.resume(newConn(ws))
	s.readLoop(c, ws)
}

func (s *Server) readLoop(c *Context, ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket error", "sessionID", c.SessionID(), "error", err)
			}
			break
		}
		s.handle(c, data)
	}
	s.disconnected(c)
}

// disconnected pauses c when resuming is configured and shuts it down
// otherwise.
func (s *Server) disconnected(c *Context) {
	key, _ := c.resumeConfig()

	s.mu.Lock()
	if key == "" || s.closed {
		delete(s.contexts, c.SessionID())
		s.mu.Unlock()
		slog.Info("Session closed", "sessionID", c.SessionID())
		c.Shutdown()
		return
	}
	s.resumable[key] = c
	s.mu.Unlock()

	c.pause(func() { s.expire(key, c) })
}

func (s *Server) expire(key string, c *Context) {
	s.mu.Lock()
	if s.resumable[key] != c {
		s.mu.Unlock()
		return
	}
	delete(s.resumable, key)
	delete(s.contexts, c.SessionID())
	s.mu.Unlock()

	slog.Info("Session was not resumed in time", "sessionID", c.SessionID())
	c.Shutdown()
}

// Contexts returns the open and paused sessions.
func (s *Server) Contexts() []*Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	contexts := make([]*Context, 0, len(s.contexts))
	for _, c := range s.contexts {
		contexts = append(contexts, c)
	}
	return contexts
}

func (s *Server) stats(c *Context) Stats {
	stats := Stats{
		Op:         "stats",
		Uptime:     uptime(s.start, s.clock.Now()),
		Memory:     s.host.memory(),
		CPU:        s.host.cpu(),
		FrameStats: c.frameStats(),
	}
	for _, other := range s.Contexts() {
		stats.Players += len(other.Players())
		stats.PlayingPlayers += len(other.PlayingPlayers())
	}
	return stats
}

// Shutdown ends every session, paused or not.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	contexts := make([]*Context, 0, len(s.contexts))
	for _, c := range s.contexts {
		contexts = append(contexts, c)
	}
	s.contexts = make(map[string]*Context)
	s.resumable = make(map[string]*Context)
	s.mu.Unlock()

	for _, c := range contexts {
		c.Shutdown()
	}
}
