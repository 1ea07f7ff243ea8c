package api

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-rumble/internal/config"
	"github.com/npezzotti/go-rumble/internal/server"
)

type RumbleApp struct {
	log *log.Logger
	cs  *server.ChatServer
	mux *http.Server
}

func NewRumbleApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, cfg *config.Config) *RumbleApp {
	s := &RumbleApp{
		log: logger,
		cs:  cs,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /user", s.register)
	mux.HandleFunc("GET /users", s.authMiddleware(s.users))
	mux.HandleFunc("POST /active_user", s.login)
	mux.HandleFunc("DELETE /active_user", s.authMiddleware(s.logout))
	mux.HandleFunc("POST /room/{name}", s.authMiddleware(s.createRoom))
	mux.HandleFunc("DELETE /room/{name}", s.authMiddleware(s.destroyRoom))
	mux.HandleFunc("GET /rooms", s.authMiddleware(s.rooms))
	mux.HandleFunc("POST /room_member/{name}", s.authMiddleware(s.joinRoom))
	mux.HandleFunc("DELETE /room_member/{name}", s.authMiddleware(s.leaveRoom))
	mux.HandleFunc("GET /room_members/{name}", s.authMiddleware(s.roomMembers))
	mux.HandleFunc("POST /message/{name}", s.authMiddleware(s.postMessage))
	mux.HandleFunc("GET /messages/{name}/{start}/{end}", s.authMiddleware(s.getMessages))

	var h http.Handler = handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
	)(mux)

	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	h = s.requestId(h)
	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *RumbleApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *RumbleApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
