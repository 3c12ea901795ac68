package importer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"m4o.io/pbf/v2"

	"github.com/example/osm-edit-engine/internal/osm"
)

func TestNodeElementConversion(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n := &pbf.Node{
		ID:   uint64(240109189),
		Tags: map[string]string{"amenity": "cafe"},
		Lat:  pbf.Degrees(52.52),
		Lon:  pbf.Degrees(13.405),
		Info: &pbf.Info{Version: 3, UID: 42, Timestamp: ts, Changeset: 99, User: "mapper", Visible: true},
	}

	el := nodeElement(n)
	assert.Equal(t, osm.NodeType, el.Type)
	assert.Equal(t, int64(240109189), el.ID)
	assert.Equal(t, int32(3), el.Version)
	assert.Equal(t, int64(42), el.UID)
	assert.Equal(t, int64(99), el.Changeset)
	assert.Equal(t, "mapper", el.User)
	assert.True(t, el.Visible)
	assert.InDelta(t, 52.52, el.Lat, 1e-9)
	assert.InDelta(t, 13.405, el.Lon, 1e-9)
}

func TestWayElementConvertsNodeRefs(t *testing.T) {
	w := &pbf.Way{ID: uint64(7), NodeIDs: []uint64{1, 2, 3}}

	el := wayElement(w)
	assert.Equal(t, osm.WayType, el.Type)
	assert.Equal(t, int64(7), el.ID)
	require.Equal(t, []int64{1, 2, 3}, el.NodeIDs)
}

func TestWayElementWithoutInfoGetsDefaults(t *testing.T) {
	el := wayElement(&pbf.Way{ID: 1})
	assert.Equal(t, int32(1), el.Version)
	assert.True(t, el.Visible)
}

func TestRelationElementMapsMemberTypes(t *testing.T) {
	r := &pbf.Relation{
		ID: uint64(11),
		Members: []pbf.Member{
			{ID: 1, Type: pbf.NODE, Role: "stop"},
			{ID: 2, Type: pbf.WAY, Role: "outer"},
			{ID: 3, Type: pbf.RELATION, Role: ""},
		},
	}

	el := relationElement(r)
	require.Len(t, el.Members, 3)
	assert.Equal(t, osm.Member{Type: osm.NodeType, Ref: 1, Role: "stop"}, el.Members[0])
	assert.Equal(t, osm.Member{Type: osm.WayType, Ref: 2, Role: "outer"}, el.Members[1])
	assert.Equal(t, osm.Member{Type: osm.RelationType, Ref: 3, Role: ""}, el.Members[2])
}
