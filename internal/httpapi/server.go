package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/moguard/panel/internal/cache"
	"github.com/moguard/panel/internal/config"
	"github.com/moguard/panel/internal/domain/admin"
	"github.com/moguard/panel/internal/domain/node"
	"github.com/moguard/panel/internal/domain/service"
	"github.com/moguard/panel/internal/domain/subscription"
	apperrors "github.com/moguard/panel/internal/shared/errors"
	"github.com/moguard/panel/internal/httpapi/middleware"
	"github.com/moguard/panel/internal/linkgen"
	"github.com/moguard/panel/internal/notify"
)

// Server owns the gin engine and every dependency its handlers call
// directly — there is no usecases/CQRS indirection layer (DESIGN.md): the
// domain repositories are the application layer here.
type Server struct {
	engine *gin.Engine

	admins   admin.Repository
	nodes    node.Repository
	services service.Repository
	subs     subscription.Repository

	links   *cache.LinksCache
	gen     *linkgen.Generator
	jwt     *jwtService
	notify  *notify.Dispatcher
	validate *validator.Validate
}

// NewServer wires a Server and registers every route.
func NewServer(
	cfg *config.AuthConfig,
	admins admin.Repository, nodes node.Repository, services service.Repository, subs subscription.Repository,
	links *cache.LinksCache, gen *linkgen.Generator, notifier *notify.Dispatcher,
) *Server {
	s := &Server{
		admins: admins, nodes: nodes, services: services, subs: subs,
		links: links, gen: gen,
		jwt:      newJWTService(cfg.JWTSecret, cfg.JWTTTL),
		notify:   notifier,
		validate: validator.New(),
	}
	s.engine = gin.New()
	s.engine.Use(middleware.Recovery(), middleware.RequestLogger())
	s.registerRoutes()
	return s
}

// Run starts the HTTP server, blocking until ctx is cancelled or the server
// errors.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("httpapi: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// VerifyBearer implements middleware.Verifier.
func (s *Server) VerifyBearer(token string) (*admin.Admin, error) {
	claims, err := s.jwt.verify(token)
	if err != nil {
		return nil, err
	}
	a, err := s.admins.Get(context.Background(), claims.AdminID)
	if err != nil {
		return nil, err
	}
	if a.Removed() {
		return nil, apperrors.NewUnauthorizedError("admin removed")
	}
	return a, nil
}

// VerifyAPIKey implements middleware.Verifier.
func (s *Server) VerifyAPIKey(apiKey string) (*admin.Admin, error) {
	a, err := s.admins.GetByAPIKey(context.Background(), apiKey)
	if err != nil {
		return nil, err
	}
	if a.Removed() {
		return nil, apperrors.NewUnauthorizedError("admin removed")
	}
	return a, nil
}
