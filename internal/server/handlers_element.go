package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/osm-edit-engine/internal/osm"
	"github.com/example/osm-edit-engine/internal/wire"
)

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "malformed id %q", c.Param("id"))
		return 0, false
	}
	return id, true
}

func (s *Server) getElement(c *gin.Context, t osm.ElementType) {
	instance, ok := s.instance(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	res := instance.Element(t, id)
	if res.IsError() {
		renderError(c, res)
		return
	}
	if !res.Data.Visible {
		c.Status(http.StatusGone)
		return
	}
	doc := wire.NewOsm()
	doc.Append(res.Data)
	c.XML(http.StatusOK, doc)
}

// getElementSub serves the {id}/history, {id}/relations, {id}/full,
// node/{id}/ways and {id}/{version} lookups, which share a route shape.
func (s *Server) getElementSub(c *gin.Context, t osm.ElementType) {
	instance, ok := s.instance(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	doc := wire.NewOsm()
	switch sub := c.Param("sub"); sub {
	case "history":
		res := instance.ElementHistory(t, id)
		if res.IsError() {
			renderError(c, res)
			return
		}
		doc.Append(res.Data...)
	case "relations":
		res := instance.ElementRelations(t, id)
		if res.IsError() {
			renderError(c, res)
			return
		}
		doc.Append(res.Data...)
	case "full":
		res := instance.ElementFull(t, id)
		if res.IsError() {
			renderError(c, res)
			return
		}
		doc.Append(res.Data...)
	case "ways":
		if t != osm.NodeType {
			c.Status(http.StatusNotFound)
			return
		}
		res := instance.WaysForNode(id)
		if res.IsError() {
			renderError(c, res)
			return
		}
		doc.Append(res.Data...)
	default:
		version, err := strconv.ParseInt(sub, 10, 32)
		if err != nil {
			c.String(http.StatusBadRequest, "malformed version %q", sub)
			return
		}
		res := instance.ElementVersion(t, id, int32(version))
		if res.IsError() {
			renderError(c, res)
			return
		}
		doc.Append(res.Data)
	}
	c.XML(http.StatusOK, doc)
}

// putElement handles both `{type}/create` and `{type}/{id}` updates; the
// create alias occupies the id slot in the route.
func (s *Server) putElement(c *gin.Context, t osm.ElementType) {
	instance, ok := s.instance(c)
	if !ok {
		return
	}

	var doc wire.Osm
	if !bindXML(c, &doc) {
		return
	}
	elements := doc.Elements()
	if len(elements) != 1 || elements[0].Type != t {
		c.String(http.StatusBadRequest, "body must contain exactly one %s", t)
		return
	}
	el := elements[0]

	if c.Param("id") == "create" {
		res := instance.CreateElement(c.Request.Context(), el.Changeset, el, s.identity(c))
		if res.IsError() {
			renderError(c, res)
			return
		}
		c.String(http.StatusOK, strconv.FormatInt(res.Data, 10))
		return
	}

	id, ok := parseID(c)
	if !ok {
		return
	}
	el.ID = id
	res := instance.UpdateElement(c.Request.Context(), el.Changeset, el, s.identity(c))
	if res.IsError() {
		renderError(c, res)
		return
	}
	c.String(http.StatusOK, strconv.FormatInt(int64(res.Data), 10))
}

func (s *Server) deleteElement(c *gin.Context, t osm.ElementType) {
	instance, ok := s.instance(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	var doc wire.Osm
	if !bindXML(c, &doc) {
		return
	}
	elements := doc.Elements()
	if len(elements) != 1 || elements[0].Type != t {
		c.String(http.StatusBadRequest, "body must contain exactly one %s", t)
		return
	}
	el := elements[0]
	el.ID = id

	res := instance.DeleteElement(c.Request.Context(), el.Changeset, el, s.identity(c))
	if res.IsError() {
		renderError(c, res)
		return
	}
	c.Status(http.StatusOK)
}

// getMap serves map?bbox=left,bottom,right,top.
func (s *Server) getMap(c *gin.Context) {
	instance, ok := s.instance(c)
	if !ok {
		return
	}

	parts := strings.Split(c.Query("bbox"), ",")
	if len(parts) != 4 {
		c.String(http.StatusBadRequest, "bbox must be left,bottom,right,top")
		return
	}
	coords := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			c.String(http.StatusBadRequest, "malformed bbox coordinate %q", p)
			return
		}
		coords[i] = v
	}

	res := instance.Map(coords[1], coords[0], coords[3], coords[2])
	if res.IsError() {
		renderError(c, res)
		return
	}
	doc := wire.NewOsm()
	doc.Append(res.Data...)
	c.XML(http.StatusOK, doc)
}

func (s *Server) getUser(c *gin.Context) {
	instance, ok := s.instance(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	res := instance.User(id)
	if res.IsError() {
		renderError(c, res)
		return
	}
	c.JSON(http.StatusOK, res.Data)
}
