package server

import (
	"log/slog"
	"net/http"
	"time"

	"talkroom/internal/app/server/handlers"
	"talkroom/internal/core/services"
	"talkroom/pkg/middleware"
)

type Server struct {
	log         *slog.Logger
	mux         *http.ServeMux
	name        string
	addr        string
	authHandler *handlers.AuthHandler
	roomHandler *handlers.RoomHandler
	wsHandler   *handlers.WSHandler
	tokenSvc    *services.TokenService
}

func NewServer(
	log *slog.Logger,
	name string,
	addr string,
	accountSvc *services.AccountService,
	tokenSvc *services.TokenService,
	roomSvc *services.RoomService,
	coordinator *services.Coordinator,
) *Server {
	s := &Server{
		log:         log,
		mux:         http.NewServeMux(),
		name:        name,
		addr:        addr,
		authHandler: handlers.NewAuthHandler(accountSvc, tokenSvc),
		roomHandler: handlers.NewRoomHandler(roomSvc),
		wsHandler:   handlers.NewWSHandler(coordinator),
		tokenSvc:    tokenSvc,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	auth := middleware.AuthMiddleware(s.tokenSvc)

	// Public routes
	s.mux.HandleFunc("POST /auth/signup", s.authHandler.SignUp)
	s.mux.HandleFunc("POST /auth/login", s.authHandler.SignIn)

	// Room administration, Bearer-protected
	s.mux.Handle("GET /rooms", auth(http.HandlerFunc(s.roomHandler.List)))
	s.mux.Handle("POST /rooms", auth(http.HandlerFunc(s.roomHandler.Create)))
	s.mux.Handle("GET /rooms/{id}", auth(http.HandlerFunc(s.roomHandler.Get)))

	// The websocket handshake carries its credential as a query parameter;
	// the coordinator verifies it on connect.
	s.mux.HandleFunc("/ws", s.wsHandler.Handler)
}

func (s *Server) Start() error {
	handler := middleware.RequestLogger(s.log)(
		middleware.TracerMiddleware(s.name)(s.mux),
	)
	server := &http.Server{
		Addr:        s.addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket connections outlive any sane value.
	}
	s.log.Info("server starting", "addr", s.addr)
	return server.ListenAndServe()
}
