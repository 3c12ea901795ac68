package server

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/osm-edit-engine/internal/api"
	"github.com/example/osm-edit-engine/internal/changeset"
	"github.com/example/osm-edit-engine/internal/engine"
	"github.com/example/osm-edit-engine/internal/store"
	"github.com/example/osm-edit-engine/internal/user"
	"github.com/example/osm-edit-engine/internal/wire"
)

func newTestRouter(t *testing.T) (*gin.Engine, *user.Directory) {
	t.Helper()
	s := store.New()
	users := user.NewDirectory()
	instance := api.NewInstance("test", s, changeset.NewRegistry(), engine.New(s, zerolog.Nop()), nil, users, zerolog.Nop())
	boot := api.NewBootstrapper()
	boot.Register(instance)
	return New(boot, users, nil, "anonymous", zerolog.Nop()).Router(), users
}

func do(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "text/xml")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func openChangesetHTTP(t *testing.T, router *gin.Engine) string {
	t.Helper()
	w := do(t, router, http.MethodPut, "/test/api/0.6/changeset/create",
		`<osm><changeset><tag k="comment" v="testing"/></changeset></osm>`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return strings.TrimSpace(w.Body.String())
}

func TestUnknownInstanceIs404(t *testing.T) {
	router, _ := newTestRouter(t)
	w := do(t, router, http.MethodGet, "/nope/api/0.6/capabilities", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCapabilitiesAndPermissions(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/test/api/0.6/capabilities", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"0.6"`)

	w = do(t, router, http.MethodGet, "/test/api/capabilities", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/test/api/0.6/permissions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "allow_write_api")
}

func TestChangesetUploadFlow(t *testing.T) {
	router, _ := newTestRouter(t)
	cs := openChangesetHTTP(t, router)

	upload := fmt.Sprintf(`<osmChange version="0.6">
  <create>
    <node id="-1" lat="52.5" lon="13.4" changeset="%s"/>
    <node id="-2" lat="52.6" lon="13.5" changeset="%s"/>
    <way id="-1" changeset="%s"><nd ref="-1"/><nd ref="-2"/></way>
  </create>
</osmChange>`, cs, cs, cs)

	w := do(t, router, http.MethodPost, "/test/api/0.6/changeset/"+cs+"/upload", upload)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var dr wire.DiffResult
	require.NoError(t, xml.Unmarshal(w.Body.Bytes(), &dr))
	require.Len(t, dr.Entries, 3)
	assert.Equal(t, "node", dr.Entries[0].XMLName.Local)
	assert.Equal(t, "way", dr.Entries[2].XMLName.Local)
	require.NotNil(t, dr.Entries[2].NewID)

	// The created way is queryable and references real node ids.
	wayID := *dr.Entries[2].NewID
	w = do(t, router, http.MethodGet, fmt.Sprintf("/test/api/0.6/way/%d", wayID), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf(`<nd ref="%d">`, *dr.Entries[0].NewID))
}

func TestUploadToClosedChangesetConflicts(t *testing.T) {
	router, _ := newTestRouter(t)
	cs := openChangesetHTTP(t, router)

	w := do(t, router, http.MethodPut, "/test/api/0.6/changeset/"+cs+"/close", "")
	require.Equal(t, http.StatusOK, w.Code)

	upload := fmt.Sprintf(`<osmChange version="0.6"><create><node id="-1" lat="1" lon="1" changeset="%s"/></create></osmChange>`, cs)
	w = do(t, router, http.MethodPost, "/test/api/0.6/changeset/"+cs+"/upload", upload)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPost, "/test/api/0.6/changeset/999/upload", upload)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadValidationFailureIs400(t *testing.T) {
	router, _ := newTestRouter(t)
	cs := openChangesetHTTP(t, router)

	upload := `<osmChange version="0.6"><modify><node id="42" version="1" lat="1" lon="1"/></modify></osmChange>`
	w := do(t, router, http.MethodPost, "/test/api/0.6/changeset/"+cs+"/upload", upload)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown node 42")
}

func TestSingleElementEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	cs := openChangesetHTTP(t, router)

	body := fmt.Sprintf(`<osm><node id="-1" lat="10" lon="20" changeset="%s"><tag k="amenity" v="bench"/></node></osm>`, cs)
	w := do(t, router, http.MethodPut, "/test/api/0.6/node/create", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id := strings.TrimSpace(w.Body.String())

	w = do(t, router, http.MethodGet, "/test/api/0.6/node/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `k="amenity"`)

	update := fmt.Sprintf(`<osm><node id="%s" version="1" lat="11" lon="21" changeset="%s"/></osm>`, id, cs)
	w = do(t, router, http.MethodPut, "/test/api/0.6/node/"+id, update)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "2", strings.TrimSpace(w.Body.String()))

	w = do(t, router, http.MethodGet, "/test/api/0.6/node/"+id+"/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `version="1"`)
	assert.Contains(t, w.Body.String(), `version="2"`)

	w = do(t, router, http.MethodGet, "/test/api/0.6/node/"+id+"/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `lat="10"`)

	del := fmt.Sprintf(`<osm><node id="%s" version="2" changeset="%s"/></osm>`, id, cs)
	w = do(t, router, http.MethodDelete, "/test/api/0.6/node/"+id, del)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Deleted elements answer 410 on the plain lookup but keep history.
	w = do(t, router, http.MethodGet, "/test/api/0.6/node/"+id, "")
	assert.Equal(t, http.StatusGone, w.Code)
	w = do(t, router, http.MethodGet, "/test/api/0.6/node/"+id+"/history", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMapEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	cs := openChangesetHTTP(t, router)

	upload := fmt.Sprintf(`<osmChange version="0.6"><create><node id="-1" lat="52.5" lon="13.4" changeset="%s"/></create></osmChange>`, cs)
	w := do(t, router, http.MethodPost, "/test/api/0.6/changeset/"+cs+"/upload", upload)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/test/api/0.6/map?bbox=13.3,52.4,13.5,52.6", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `lat="52.5"`)

	w = do(t, router, http.MethodGet, "/test/api/0.6/map?bbox=13.3,52.4", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/test/api/0.6/map?bbox=0,0,20,20", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdentityFromBasicAuth(t *testing.T) {
	router, users := newTestRouter(t)
	users.Add(user.User{DisplayName: "alice"})
	cs := openChangesetHTTP(t, router)

	body := fmt.Sprintf(`<osm><node id="-1" lat="1" lon="1" changeset="%s"/></osm>`, cs)
	req := httptest.NewRequest(http.MethodPut, "/test/api/0.6/node/create", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/xml")
	req.SetBasicAuth("alice", "irrelevant")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	id := strings.TrimSpace(w.Body.String())

	w = do(t, router, http.MethodGet, "/test/api/0.6/node/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `user="alice"`)
}

func TestChangesetMetadataEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	cs := openChangesetHTTP(t, router)

	w := do(t, router, http.MethodGet, "/test/api/0.6/changeset/"+cs, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `open="true"`)

	update := `<osm><changeset><tag k="comment" v="revised"/></changeset></osm>`
	w = do(t, router, http.MethodPut, "/test/api/0.6/changeset/"+cs, update)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `v="revised"`)

	w = do(t, router, http.MethodGet, "/test/api/0.6/changesets", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `id="`+cs+`"`)

	w = do(t, router, http.MethodGet, "/test/api/0.6/changeset/999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
