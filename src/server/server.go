package server

import (
	"github.com/gofiber/fiber/v3"
	"github.com/pulsechat/stream/src/service"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Server composes the fiber action routes with the raw fasthttp stream
// endpoint and serves both from one fasthttp server.
type Server struct {
	svc    *service.Service
	logger zerolog.Logger
	app    *fiber.App
	httpd  *fasthttp.Server
}

// New builds the HTTP layer over the given service.
func New(svc *service.Service, logger zerolog.Logger) *Server {
	s := &Server{
		svc:    svc,
		logger: logger.With().Str("component", "server").Logger(),
		app:    fiber.New(),
	}
	s.registerRoutes(s.app)

	appHandler := s.app.Handler()
	wsHandler := s.streamHandler()
	s.httpd = &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Path()) == "/ws" {
				wsHandler(ctx)
				return
			}
			appHandler(ctx)
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	return s
}

// Listen serves until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("listening")
	return s.httpd.ListenAndServe(addr)
}

// Shutdown gracefully stops accepting connections and drains in-flight
// requests.
func (s *Server) Shutdown() error {
	return s.httpd.Shutdown()
}
