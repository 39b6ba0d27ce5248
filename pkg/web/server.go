// Package web serves the browser widget and pushes view updates to it over
// a websocket hub.
package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/harunnryd/synapchat/pkg/errorsx"
	"github.com/harunnryd/synapchat/pkg/logging"
	"github.com/harunnryd/synapchat/pkg/notify"
	"github.com/harunnryd/synapchat/pkg/presenter"
	"github.com/harunnryd/synapchat/pkg/voice"
)

//go:embed static/index.html
var indexHTML []byte

// Controller is the subset of voice.Controller the server drives.
type Controller interface {
	Snapshot() voice.Snapshot
	Start(ctx context.Context) error
	End(ctx context.Context) error
	ToggleMute(ctx context.Context) error
}

type Config struct {
	Addr   string
	Title  string
	Logger *slog.Logger
	// ActionTimeout bounds a single start/end/mute request.
	ActionTimeout time.Duration
}

// Event is the websocket payload: either a fresh view or a toast.
type Event struct {
	Type  string               `json:"type"`
	View  *presenter.View      `json:"view,omitempty"`
	Toast *notify.Notification `json:"toast,omitempty"`
}

const (
	EventState = "state"
	EventToast = "toast"
)

type Server struct {
	cfg  Config
	app  *fiber.App
	ctrl Controller
	hub  *Hub
	log  *slog.Logger
}

func NewServer(cfg Config, ctrl Controller) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Title == "" {
		cfg.Title = "SynapChat"
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 30 * time.Second
	}
	log := logging.NewComponentLogger(cfg.Logger, "web")
	s := &Server{
		cfg:  cfg,
		ctrl: ctrl,
		hub:  NewHub("state", log),
		log:  log,
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.Title,
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Post("/session/start", s.handleAction(ctrl.Start))
	api.Post("/session/end", s.handleAction(ctrl.End))
	api.Post("/session/mute", s.handleAction(ctrl.ToggleMute))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))

	s.app = app
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

// Hub returns the state hub.
func (s *Server) Hub() *Hub { return s.hub }

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("web widget listening", slog.String("addr", s.cfg.Addr))
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.log.Warn("web shutdown", slog.String("error", err.Error()))
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// OnStateChange implements voice.Listener.
func (s *Server) OnStateChange(change voice.StateChange) {
	view := presenter.Render(change.Snapshot)
	if err := s.hub.BroadcastJSON(Event{Type: EventState, View: &view}); err != nil {
		s.log.Warn("broadcast state", slog.String("error", err.Error()))
	}
}

// Notify implements notify.Notifier by pushing a toast to every client.
func (s *Server) Notify(_ context.Context, n notify.Notification) error {
	return s.hub.BroadcastJSON(Event{Type: EventToast, Toast: &n})
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html")
	return c.Send(indexHTML)
}

type stateResponse struct {
	Snapshot voice.Snapshot `json:"snapshot"`
	View     presenter.View `json:"view"`
}

func (s *Server) currentState() stateResponse {
	snap := s.ctrl.Snapshot()
	return stateResponse{Snapshot: snap, View: presenter.Render(snap)}
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.currentState())
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleAction(action func(context.Context) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), s.cfg.ActionTimeout)
		defer cancel()

		if err := action(ctx); err != nil {
			status, body := classify(err)
			s.log.Warn("action rejected",
				slog.String("path", c.Path()),
				slog.Int("status", status),
				slog.String("error", err.Error()))
			return c.Status(status).JSON(body)
		}
		return c.JSON(s.currentState())
	}
}

// classify maps controller errors to HTTP responses.
func classify(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, voice.ErrPermissionRequired):
		return http.StatusForbidden, errorResponse{Error: err.Error(), Reason: string(errorsx.ReasonMicDenied)}
	case errors.Is(err, voice.ErrActionInFlight),
		errors.Is(err, voice.ErrInvalidState),
		errors.Is(err, voice.ErrNotConnected):
		return http.StatusConflict, errorResponse{Error: err.Error()}
	case errors.Is(err, voice.ErrClosed):
		return http.StatusServiceUnavailable, errorResponse{Error: err.Error()}
	}
	reason, msg := errorsx.UserFacing(err)
	if msg != "" {
		return http.StatusBadGateway, errorResponse{Error: msg, Reason: string(reason)}
	}
	return http.StatusInternalServerError, errorResponse{Error: err.Error(), Reason: string(reason)}
}

func (s *Server) handleStateWS(conn *websocket.Conn) {
	view := presenter.Render(s.ctrl.Snapshot())
	initial, err := jsonEvent(Event{Type: EventState, View: &view})
	if err != nil {
		s.log.Warn("encode initial state", slog.String("error", err.Error()))
	}
	newClient(s.hub, conn).Run(initial)
}

func jsonEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

var (
	_ voice.Listener  = (*Server)(nil)
	_ notify.Notifier = (*Server)(nil)
)
