package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/retro-board/internal/config"
	"github.com/npezzotti/retro-board/internal/server"
	"github.com/npezzotti/retro-board/internal/service"
	"github.com/npezzotti/retro-board/pkg/wire"
	"go.uber.org/zap"
)

type BoardApp struct {
	log            *zap.Logger
	board          *service.BoardService
	ss             *server.SubscriptionServer
	srv            *http.Server
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewBoardApp registers the board routes on mux. The mux is shared with the
// stats endpoint.
func NewBoardApp(mux *http.ServeMux, logger *zap.Logger, board *service.BoardService, ss *server.SubscriptionServer, cfg *config.Config) *BoardApp {
	s := &BoardApp{
		log:            logger,
		board:          board,
		ss:             ss,
		allowedOrigins: cfg.AllowedOrigins,
	}

	s.upgrader = websocket.Upgrader{
		Subprotocols: wire.Subprotocols(),
		CheckOrigin:  s.checkOrigin,
	}

	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.withTimeout(h, cfg))
	}

	api("GET /api/rooms", s.getRooms)
	api("POST /api/rooms", s.createRoom)
	api("GET /api/rooms/{id}", s.getRoom)
	api("PUT /api/rooms/{id}", s.updateRoom)
	api("POST /api/rooms/{id}/topics", s.createTopic)
	api("GET /api/topics", s.getTopics)
	api("DELETE /api/topics/{id}", s.deleteTopic)
	api("POST /api/topics/{id}/comments", s.createComment)
	api("GET /api/comments", s.getComments)
	api("GET /api/comments/{id}", s.getComment)
	api("PATCH /api/comments/{id}", s.updateComment)
	api("DELETE /api/comments/{id}", s.deleteComment)
	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.logRequests(h)
	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

// Handler returns the fully wrapped handler.
func (s *BoardApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *BoardApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	return slices.Contains(s.allowedOrigins, origin)
}

func (s *BoardApp) Start() error {
	s.log.Info("starting server", zap.String("addr", s.srv.Addr))
	return s.srv.ListenAndServe()
}

func (s *BoardApp) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
