package wire

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/osm-edit-engine/internal/osm"
)

func TestParseOsmChange(t *testing.T) {
	doc := `<osmChange version="0.6" generator="JOSM">
  <create>
    <node id="-1" lat="52.5" lon="13.4" changeset="7">
      <tag k="amenity" v="cafe"/>
    </node>
    <node id="-2" lat="52.6" lon="13.5" changeset="7"/>
    <way id="-1" changeset="7">
      <nd ref="-1"/>
      <nd ref="-2"/>
      <tag k="highway" v="path"/>
    </way>
  </create>
  <modify>
    <node id="5" version="2" lat="1" lon="2" changeset="7"/>
  </modify>
  <delete>
    <relation id="9" version="1" changeset="7"/>
  </delete>
</osmChange>`

	var oc OsmChange
	require.NoError(t, xml.Unmarshal([]byte(doc), &oc))

	change := oc.Change()
	require.Len(t, change.Create, 3)
	require.Len(t, change.Modify, 1)
	require.Len(t, change.Delete, 1)

	node := change.Create[0]
	assert.Equal(t, osm.NodeType, node.Type)
	assert.Equal(t, int64(-1), node.ID)
	assert.Equal(t, 52.5, node.Lat)
	assert.Equal(t, "cafe", node.Tags["amenity"])

	way := change.Create[2]
	assert.Equal(t, osm.WayType, way.Type)
	assert.Equal(t, []int64{-1, -2}, way.NodeIDs)
	assert.Equal(t, "path", way.Tags["highway"])

	assert.Equal(t, int32(2), change.Modify[0].Version)
	assert.Equal(t, osm.RelationType, change.Delete[0].Type)
}

func TestParseOsmChangeConcatenatesBlocks(t *testing.T) {
	doc := `<osmChange version="0.6">
  <create><node id="-1" lat="1" lon="1"/></create>
  <create><node id="-2" lat="2" lon="2"/></create>
</osmChange>`

	var oc OsmChange
	require.NoError(t, xml.Unmarshal([]byte(doc), &oc))

	change := oc.Change()
	require.Len(t, change.Create, 2)
	assert.Equal(t, int64(-1), change.Create[0].ID)
	assert.Equal(t, int64(-2), change.Create[1].ID)
}

func TestOsmChangeRoundTrip(t *testing.T) {
	change := osm.Change{
		Create: []*osm.Element{
			{Type: osm.NodeType, ID: -1, Visible: true, Lat: 1, Lon: 2},
			{Type: osm.RelationType, ID: -1, Visible: true, Members: []osm.Member{
				{Type: osm.NodeType, Ref: -1, Role: "stop"},
			}},
		},
		Delete: []*osm.Element{
			{Type: osm.WayType, ID: 4, Version: 3, Visible: true},
		},
	}

	data, err := xml.Marshal(NewOsmChange(change))
	require.NoError(t, err)

	var oc OsmChange
	require.NoError(t, xml.Unmarshal(data, &oc))

	got := oc.Change()
	require.Len(t, got.Create, 2)
	require.Len(t, got.Delete, 1)
	assert.Equal(t, osm.Member{Type: osm.NodeType, Ref: -1, Role: "stop"}, got.Create[1].Members[0])
	assert.Equal(t, int32(3), got.Delete[0].Version)
}

func TestDiffResultRendersPerTypeEntries(t *testing.T) {
	newNodeID := int64(12)
	newNodeVersion := int32(1)
	newWayVersion := int32(4)

	dr := NewDiffResult(osm.DiffResult{Entries: []osm.DiffEntry{
		{Type: osm.NodeType, OldID: -1, NewID: &newNodeID, NewVersion: &newNodeVersion},
		{Type: osm.WayType, OldID: 3, NewID: ptrInt64(3), NewVersion: &newWayVersion},
		{Type: osm.WayType, OldID: 8, Error: "version conflict"},
	}})

	data, err := xml.Marshal(dr)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `<diffResult version="0.6"`)
	assert.Contains(t, out, `<node old_id="-1" new_id="12" new_version="1">`)
	assert.Contains(t, out, `<way old_id="3" new_id="3" new_version="4">`)
	assert.Contains(t, out, `error="version conflict"`)
	// Deleted entries carry neither a new id nor a new version.
	assert.NotContains(t, out, `old_id="8" new_id`)
}

func TestOsmDocumentRoundTrip(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	doc := NewOsm()
	doc.Append(
		&osm.Element{Type: osm.NodeType, ID: 1, Version: 2, Visible: true, Changeset: 5,
			Timestamp: ts, UID: 7, User: "alice", Lat: 50, Lon: 8,
			Tags: map[string]string{"name": "somewhere"}},
		&osm.Element{Type: osm.WayType, ID: 1, Version: 1, Visible: true, NodeIDs: []int64{1}},
	)

	data, err := xml.Marshal(doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `<osm version="0.6" generator="osm-edit-engine">`))

	var parsed Osm
	require.NoError(t, xml.Unmarshal(data, &parsed))

	elements := parsed.Elements()
	require.Len(t, elements, 2)
	node := elements[0]
	assert.Equal(t, int64(1), node.ID)
	assert.Equal(t, int32(2), node.Version)
	assert.Equal(t, "somewhere", node.Tags["name"])
	assert.True(t, node.Timestamp.Equal(ts))
	assert.Equal(t, []int64{1}, elements[1].NodeIDs)
}

func TestChangesetDocument(t *testing.T) {
	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	doc := NewOsm()
	doc.AppendChangeset(osm.Changeset{
		ID: 9, Open: true, CreatedAt: created, UID: 2, User: "bob",
		Tags: map[string]string{"comment": "survey"},
	})

	data, err := xml.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<changeset id="9" open="true"`)

	var parsed Osm
	require.NoError(t, xml.Unmarshal(data, &parsed))
	changesets := parsed.ModelChangesets()
	require.Len(t, changesets, 1)
	assert.Equal(t, "survey", changesets[0].Tags["comment"])
	assert.True(t, changesets[0].Open)
}

func ptrInt64(v int64) *int64 {
	return &v
}
