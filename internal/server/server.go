// Package server routes the OSM API v0.6 surface onto the façade, rendering
// XML documents and mapping envelope statuses to HTTP codes.
package server

import (
	"encoding/xml"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/example/osm-edit-engine/internal/api"
	"github.com/example/osm-edit-engine/internal/engine"
	"github.com/example/osm-edit-engine/internal/feed"
	"github.com/example/osm-edit-engine/internal/osm"
	"github.com/example/osm-edit-engine/internal/user"
)

// Server dispatches HTTP requests to named API instances.
type Server struct {
	bootstrapper *api.Bootstrapper
	users        *user.Directory
	gateway      *feed.Gateway
	logger       zerolog.Logger
	anonymous    engine.Identity
}

// New builds a server over the instance registry. The feed gateway may be
// nil when the live feed is disabled. Unauthenticated edits are attributed
// to the given anonymous user name.
func New(bootstrapper *api.Bootstrapper, users *user.Directory, gateway *feed.Gateway, anonymous string, logger zerolog.Logger) *Server {
	if anonymous == "" {
		anonymous = "anonymous"
	}
	return &Server{
		bootstrapper: bootstrapper,
		users:        users,
		gateway:      gateway,
		logger:       logger,
		anonymous:    engine.Identity{UID: 0, User: anonymous},
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	g := r.Group("/:instance/api/0.6")
	g.GET("/capabilities", s.getCapabilities)
	g.GET("/permissions", s.getPermissions)
	g.GET("/map", s.getMap)

	g.PUT("/changeset/:id", s.putChangeset)
	g.GET("/changeset/:id", s.getChangeset)
	g.PUT("/changeset/:id/close", s.putChangesetClose)
	g.GET("/changeset/:id/download", s.getChangesetDownload)
	g.POST("/changeset/:id/upload", s.postChangesetUpload)
	g.GET("/changesets", s.getChangesets)

	for _, t := range osm.Types {
		t := t
		g.PUT("/"+string(t)+"/:id", func(c *gin.Context) { s.putElement(c, t) })
		g.DELETE("/"+string(t)+"/:id", func(c *gin.Context) { s.deleteElement(c, t) })
		g.GET("/"+string(t)+"/:id", func(c *gin.Context) { s.getElement(c, t) })
		g.GET("/"+string(t)+"/:id/:sub", func(c *gin.Context) { s.getElementSub(c, t) })
	}

	g.GET("/user/:id", s.getUser)

	r.GET("/:instance/api/capabilities", s.getCapabilities)
	if s.gateway != nil {
		r.GET("/:instance/feed", func(c *gin.Context) {
			s.gateway.Serve(c.Writer, c.Request, c.Param("instance"))
		})
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("request served")
	}
}

// instance resolves the route's instance name, answering 404 itself when the
// name is unknown.
func (s *Server) instance(c *gin.Context) (*api.Instance, bool) {
	name := c.Param("instance")
	instance, ok := s.bootstrapper.Get(name)
	if !ok {
		c.String(http.StatusNotFound, "instance %q not found", name)
		return nil, false
	}
	return instance, true
}

// identity resolves the caller from basic auth against the user directory.
// Credential verification lives outside this system; an unknown or absent
// name maps to the anonymous identity.
func (s *Server) identity(c *gin.Context) engine.Identity {
	name, _, ok := c.Request.BasicAuth()
	if !ok || name == "" {
		return s.anonymous
	}
	u, ok := s.users.GetByName(name)
	if !ok {
		return s.anonymous
	}
	return engine.Identity{UID: u.ID, User: u.DisplayName}
}

func httpStatus(status api.Status) int {
	switch status {
	case api.StatusOK:
		return http.StatusOK
	case api.StatusNotFound:
		return http.StatusNotFound
	case api.StatusBadRequest:
		return http.StatusBadRequest
	case api.StatusConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// renderError writes the envelope's status and message.
func renderError[T any](c *gin.Context, res api.Result[T]) {
	c.String(httpStatus(res.Status), res.Message)
}

func bindXML(c *gin.Context, v any) bool {
	if err := xml.NewDecoder(c.Request.Body).Decode(v); err != nil {
		c.String(http.StatusBadRequest, "malformed xml: %v", err)
		return false
	}
	return true
}
