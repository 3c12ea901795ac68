package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/example/osm-edit-engine/internal/wire"
)

// putChangeset handles both `changeset/create` and `changeset/{id}` metadata
// updates; the create alias occupies the id slot in the route.
func (s *Server) putChangeset(c *gin.Context) {
	instance, ok := s.instance(c)
	if !ok {
		return
	}

	var doc wire.Osm
	if !bindXML(c, &doc) {
		return
	}
	changesets := doc.ModelChangesets()
	if len(changesets) != 1 {
		c.String(http.StatusBadRequest, "body must contain exactly one changeset")
		return
	}
	cs := changesets[0]

	if c.Param("id") == "create" {
		res := instance.CreateChangeset(cs, s.identity(c))
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
	res := instance.UpdateChangeset(id, cs.Tags)
	if res.IsError() {
		renderError(c, res)
		return
	}
	out := wire.NewOsm()
	out.AppendChangeset(res.Data)
	c.XML(http.StatusOK, out)
}

func (s *Server) getChangeset(c *gin.Context) {
	instance, ok := s.instance(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	res := instance.Changeset(id)
	if res.IsError() {
		renderError(c, res)
		return
	}
	doc := wire.NewOsm()
	doc.AppendChangeset(res.Data)
	c.XML(http.StatusOK, doc)
}

func (s *Server) getChangesets(c *gin.Context) {
	instance, ok := s.instance(c)
	if !ok {
		return
	}

	res := instance.Changesets()
	if res.IsError() {
		renderError(c, res)
		return
	}
	doc := wire.NewOsm()
	doc.AppendChangeset(res.Data...)
	c.XML(http.StatusOK, doc)
}

func (s *Server) putChangesetClose(c *gin.Context) {
	instance, ok := s.instance(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	instance.CloseChangeset(id)
	c.Status(http.StatusOK)
}

func (s *Server) getChangesetDownload(c *gin.Context) {
	instance, ok := s.instance(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	res := instance.Changes(c.Request.Context(), id)
	if res.IsError() {
		renderError(c, res)
		return
	}
	c.XML(http.StatusOK, wire.NewOsmChange(res.Data))
}

func (s *Server) postChangesetUpload(c *gin.Context) {
	instance, ok := s.instance(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	var doc wire.OsmChange
	if !bindXML(c, &doc) {
		return
	}

	res := instance.ApplyChange(c.Request.Context(), id, doc.Change(), s.identity(c))
	if res.IsError() {
		renderError(c, res)
		return
	}
	c.XML(http.StatusOK, wire.NewDiffResult(res.Data))
}

func (s *Server) getCapabilities(c *gin.Context) {
	instance, ok := s.instance(c)
	if !ok {
		return
	}
	res := instance.Capabilities()
	c.JSON(http.StatusOK, res.Data)
}

func (s *Server) getPermissions(c *gin.Context) {
	if _, ok := s.instance(c); !ok {
		return
	}
	// Everyone may read and write; a permission model is out of scope.
	c.JSON(http.StatusOK, gin.H{"permissions": []string{"allow_read_prefs", "allow_write_api"}})
}
