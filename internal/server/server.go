// Package server provides the feed generator's HTTP serving process,
// built on Echo v4: the well-known DID document, feed description,
// and the core getFeedSkeleton endpoint. See SPEC_FULL.md §6.
package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/feedgen/feedgen/internal/auth"
	"github.com/feedgen/feedgen/internal/config"
	"github.com/feedgen/feedgen/internal/feed"
	"github.com/feedgen/feedgen/internal/primer"
)

// Server wraps the Echo instance and the serving process' dependencies.
type Server struct {
	echo *echo.Echo
	cfg  *config.Config
	log  zerolog.Logger

	materializer *feed.Materializer
	primer       *primer.Primer
	keyResolver  auth.KeyResolver
}

// New creates a configured Echo server with every route registered.
func New(cfg *config.Config, materializer *feed.Materializer, p *primer.Primer, keyResolver auth.KeyResolver, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	s := &Server{
		echo:         e,
		cfg:          cfg,
		log:          log,
		materializer: materializer,
		primer:       p,
		keyResolver:  keyResolver,
	}

	s.registerRoutes()
	return s
}

// requireAuth extracts and verifies the bearer token, setting the
// authenticated reader did on the request context. See SPEC_FULL.md
// §4.G.
const readerDIDKey = "reader_did"

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := auth.ExtractBearer(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error":   "AuthMissing",
				"message": "Authorization header with Bearer token is required",
			})
		}

		did, err := auth.Verify(c.Request().Context(), token, s.keyResolver)
		if err != nil {
			s.log.Info().Err(err).Msg("rejected invalid bearer token")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error":   "InvalidToken",
				"message": "Invalid token signature",
			})
		}

		c.Set(readerDIDKey, did)
		return next(c)
	}
}

func readerDID(c echo.Context) string {
	did, _ := c.Get(readerDIDKey).(string)
	return did
}

// Start begins listening for HTTP requests. It blocks until ctx is
// cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("serving process listening")
		if err := s.echo.Start(s.cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info().Msg("shutting down HTTP server")
		return s.echo.Shutdown(context.Background())
	}
}
