package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/osm-edit-engine/internal/osm"
)

func node(id int64, lat, lon float64) *osm.Element {
	return &osm.Element{Type: osm.NodeType, ID: id, Version: 1, Visible: true, Lat: lat, Lon: lon}
}

func way(id int64, nodeIDs ...int64) *osm.Element {
	return &osm.Element{Type: osm.WayType, ID: id, Version: 1, Visible: true, NodeIDs: nodeIDs}
}

func relation(id int64, members ...osm.Member) *osm.Element {
	return &osm.Element{Type: osm.RelationType, ID: id, Version: 1, Visible: true, Members: members}
}

func TestApplyCreateAssignsSequentialIDs(t *testing.T) {
	s := New()

	id1, v1 := s.ApplyCreate(&osm.Element{Type: osm.NodeType, Lat: 1, Lon: 1})
	id2, _ := s.ApplyCreate(&osm.Element{Type: osm.NodeType, Lat: 2, Lon: 2})
	wayID, _ := s.ApplyCreate(&osm.Element{Type: osm.WayType, NodeIDs: []int64{id1, id2}})

	assert.Equal(t, int64(1), id1)
	assert.Equal(t, int64(2), id2)
	assert.Equal(t, int32(1), v1)
	// Way ids are a separate sequence.
	assert.Equal(t, int64(1), wayID)
}

func TestApplyModifyOptimisticVersionCheck(t *testing.T) {
	s := New()
	id, _ := s.ApplyCreate(&osm.Element{Type: osm.NodeType, Lat: 1, Lon: 1})

	update := node(id, 2, 2)
	update.Version = 1
	newVersion, ok := s.ApplyModify(update)
	require.True(t, ok)
	assert.Equal(t, int32(2), newVersion)

	// A second writer claiming the already-consumed base version loses.
	stale := node(id, 3, 3)
	stale.Version = 1
	_, ok = s.ApplyModify(stale)
	assert.False(t, ok)

	current, found := s.Get(osm.NodeType, id)
	require.True(t, found)
	assert.Equal(t, int32(2), current.Version)
	assert.Equal(t, 2.0, current.Lat)
}

func TestApplyDeleteKeepsHistory(t *testing.T) {
	s := New()
	id, _ := s.ApplyCreate(&osm.Element{Type: osm.NodeType, Lat: 1, Lon: 1})

	require.True(t, s.ApplyDelete(osm.NodeType, id, 1))
	assert.False(t, s.ApplyDelete(osm.NodeType, id, 1))

	current, found := s.Get(osm.NodeType, id)
	require.True(t, found)
	assert.False(t, current.Visible)
	assert.Equal(t, int32(2), current.Version)

	history, found := s.History(osm.NodeType, id)
	require.True(t, found)
	require.Len(t, history, 2)
	assert.True(t, history[0].Visible)
	assert.False(t, history[1].Visible)

	_, found = s.GetVersion(osm.NodeType, id, 1)
	assert.True(t, found)
	_, found = s.GetVersion(osm.NodeType, id, 3)
	assert.False(t, found)
}

func TestSnapshotVisibleOnly(t *testing.T) {
	s := New()
	keep, _ := s.ApplyCreate(&osm.Element{Type: osm.NodeType, Lat: 1, Lon: 1})
	gone, _ := s.ApplyCreate(&osm.Element{Type: osm.NodeType, Lat: 2, Lon: 2})
	require.True(t, s.ApplyDelete(osm.NodeType, gone, 1))

	visible := s.Snapshot(true)
	require.Len(t, visible, 1)
	assert.Equal(t, keep, visible[0].ID)

	all := s.Snapshot(false)
	assert.Len(t, all, 2)
}

func TestAddAdvancesIDAllocation(t *testing.T) {
	s := New()
	s.Add(node(100, 1, 1))

	id, _ := s.ApplyCreate(&osm.Element{Type: osm.NodeType, Lat: 2, Lon: 2})
	assert.Equal(t, int64(101), id)
	assert.Equal(t, 2, s.Len(osm.NodeType))
}

func TestInBoundingBoxClosure(t *testing.T) {
	s := New()
	// Nodes 1 and 2 are inside the box, 3 and 4 outside.
	s.Add(
		node(1, 10, 10),
		node(2, 11, 11),
		node(3, 50, 50),
		node(4, 60, 60),
		// Way 1 touches the box through node 2 and drags node 3 in.
		way(1, 2, 3),
		// Way 2 is entirely outside.
		way(2, 3, 4),
		// Relation 1 references an included way.
		relation(1, osm.Member{Type: osm.WayType, Ref: 1, Role: "outer"}),
		// Relation 2 references only relation 1; one-level closure
		// excludes it.
		relation(2, osm.Member{Type: osm.RelationType, Ref: 1}),
		// Relation 3 references a node pulled in by way 1.
		relation(3, osm.Member{Type: osm.NodeType, Ref: 3}),
	)

	box, err := osm.NewBoundingBox(9, 9, 12, 12)
	require.NoError(t, err)

	var nodes, ways, relations []int64
	for _, el := range s.InBoundingBox(box) {
		switch el.Type {
		case osm.NodeType:
			nodes = append(nodes, el.ID)
		case osm.WayType:
			ways = append(ways, el.ID)
		case osm.RelationType:
			relations = append(relations, el.ID)
		}
	}

	assert.Equal(t, []int64{1, 2, 3}, nodes)
	assert.Equal(t, []int64{1}, ways)
	assert.Equal(t, []int64{1, 3}, relations)
}

func TestInBoundingBoxSkipsInvisible(t *testing.T) {
	s := New()
	s.Add(node(1, 10, 10))
	require.True(t, s.ApplyDelete(osm.NodeType, 1, 1))

	box, err := osm.NewBoundingBox(9, 9, 12, 12)
	require.NoError(t, err)
	assert.Empty(t, s.InBoundingBox(box))
}

func TestWaysForNodeAndRelationsFor(t *testing.T) {
	s := New()
	s.Add(
		node(1, 1, 1),
		node(2, 2, 2),
		way(1, 1, 2),
		way(2, 2),
		relation(1, osm.Member{Type: osm.WayType, Ref: 1, Role: "outer"}),
	)

	ways := s.WaysForNode(2)
	require.Len(t, ways, 2)
	assert.Equal(t, int64(1), ways[0].ID)
	assert.Equal(t, int64(2), ways[1].ID)

	assert.Empty(t, s.WaysForNode(99))

	rels := s.RelationsFor(osm.WayType, 1)
	require.Len(t, rels, 1)
	assert.Equal(t, int64(1), rels[0].ID)
	assert.Empty(t, s.RelationsFor(osm.NodeType, 1))
}

func TestGetReturnsCopies(t *testing.T) {
	s := New()
	s.Add(way(1, 1, 2))

	a, _ := s.Get(osm.WayType, 1)
	a.NodeIDs[0] = 99

	b, _ := s.Get(osm.WayType, 1)
	assert.Equal(t, int64(1), b.NodeIDs[0])
}
