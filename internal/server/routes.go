package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/feedgen/feedgen/internal/feed"
)

// registerRoutes sets up every HTTP route the serving process exposes,
// per spec.md §6's endpoint table.
func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleIndex)
	s.echo.GET("/.well-known/did.json", s.handleDIDDocument)
	s.echo.GET("/xrpc/app.bsky.feed.describeFeedGenerator", s.handleDescribeFeedGenerator)
	s.echo.GET("/xrpc/app.bsky.feed.getFeedSkeleton", s.requireAuth(s.handleGetFeedSkeleton))
}

// handleIndex is the liveness string.
func (s *Server) handleIndex(c echo.Context) error {
	return c.String(http.StatusOK, "Personalized feed generator, serving process.")
}

// handleDIDDocument returns the static DID document declaring this
// service's did:web identity and feed-generator service endpoint.
func (s *Server) handleDIDDocument(c echo.Context) error {
	did := s.cfg.ServiceDID()
	return c.JSON(http.StatusOK, map[string]any{
		"@context": []string{"https://www.w3.org/ns/did/v1"},
		"id":       did,
		"service": []map[string]string{
			{
				"id":              "#bsky_fg",
				"type":            "BskyFeedGenerator",
				"serviceEndpoint": "https://" + s.cfg.Hostname,
			},
		},
	})
}

// handleDescribeFeedGenerator enumerates every configured feed.
func (s *Server) handleDescribeFeedGenerator(c echo.Context) error {
	feeds := make([]map[string]string, 0, len(s.cfg.Feeds))
	for _, f := range s.cfg.Feeds {
		feeds = append(feeds, map[string]string{"uri": f.URI})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"did":   s.cfg.ServiceDID(),
		"feeds": feeds,
	})
}

// handleGetFeedSkeleton is the core feed endpoint: prime-if-needed,
// materialize, return. See SPEC_FULL.md §4.F.
func (s *Server) handleGetFeedSkeleton(c echo.Context) error {
	did := readerDID(c)
	ctx := c.Request().Context()

	if err := s.primer.PrimeIfNeeded(ctx, did); err != nil {
		// Per spec.md §7: a priming failure falls back to whatever
		// follows were already committed; it never surfaces to the
		// client.
		s.log.Warn().Err(err).Str("reader", did).Msg("follow priming failed, continuing with best-effort follows")
	}

	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	skeleton, err := s.materializer.Materialize(ctx, feed.Request{
		FeedID: c.QueryParam("feed"),
		Cursor: c.QueryParam("cursor"),
		Limit:  limit,
		Reader: did,
	})
	if err != nil {
		switch err {
		case feed.ErrMalformedCursor:
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error":   "InvalidRequest",
				"message": "Malformed cursor",
			})
		case feed.ErrCursorDIDMismatch:
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error":   "InvalidRequest",
				"message": "Cursor does not belong to the authenticated reader",
			})
		default:
			s.log.Error().Err(err).Str("reader", did).Msg("feed materialization failed")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error":   "InternalError",
				"message": "Failed to materialize feed",
			})
		}
	}

	return c.JSON(http.StatusOK, skeleton)
}
