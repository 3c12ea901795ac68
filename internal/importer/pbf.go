// Package importer bulk-loads OpenStreetMap PBF extracts into an element
// store.
package importer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"m4o.io/pbf/v2"

	"github.com/example/osm-edit-engine/internal/osm"
	"github.com/example/osm-edit-engine/internal/store"
)

// Stats summarizes one import run.
type Stats struct {
	Nodes     int64
	Ways      int64
	Relations int64
	Skipped   int64
	Elapsed   time.Duration
}

// Total returns the number of elements loaded.
func (s Stats) Total() int64 {
	return s.Nodes + s.Ways + s.Relations
}

// Importer streams PBF blocks into a store. Elements are loaded verbatim,
// keeping the ids and versions of the extract.
type Importer struct {
	store  *store.Store
	logger zerolog.Logger
}

// New creates an importer targeting the given store.
func New(s *store.Store, logger zerolog.Logger) *Importer {
	return &Importer{store: s, logger: logger}
}

// Run decodes the stream until EOF and loads every element. The context
// cancels a long-running import between elements.
func (imp *Importer) Run(ctx context.Context, r io.Reader) (Stats, error) {
	start := time.Now()

	decoder, err := pbf.NewDecoder(r)
	if err != nil {
		return Stats{}, fmt.Errorf("open pbf stream: %w", err)
	}

	var stats Stats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		v, err := decoder.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("decode pbf block: %w", err)
		}

		switch v := v.(type) {
		case *pbf.Node:
			imp.store.Add(nodeElement(v))
			stats.Nodes++
		case *pbf.Way:
			imp.store.Add(wayElement(v))
			stats.Ways++
		case *pbf.Relation:
			imp.store.Add(relationElement(v))
			stats.Relations++
		default:
			stats.Skipped++
		}

		if total := stats.Total(); total > 0 && total%100000 == 0 {
			imp.logger.Info().Int64("elements", total).Msg("import progress")
		}
	}

	stats.Elapsed = time.Since(start)
	imp.logger.Info().
		Int64("nodes", stats.Nodes).
		Int64("ways", stats.Ways).
		Int64("relations", stats.Relations).
		Dur("elapsed", stats.Elapsed).
		Msg("import finished")
	return stats, nil
}

// header fills the common element fields. Extracts without metadata get
// version 1 and are treated as visible.
func header(el *osm.Element, id int64, tags map[string]string, info *pbf.Info) {
	el.ID = id
	el.Version = 1
	el.Visible = true
	el.Tags = tags
	if info == nil {
		return
	}
	if info.Version > 0 {
		el.Version = info.Version
	}
	el.Visible = info.Visible
	el.Changeset = info.Changeset
	el.Timestamp = info.Timestamp
	el.UID = int64(info.UID)
	el.User = info.User
}

func nodeElement(n *pbf.Node) *osm.Element {
	el := &osm.Element{Type: osm.NodeType, Lat: float64(n.Lat), Lon: float64(n.Lon)}
	header(el, int64(n.ID), n.Tags, n.Info)
	return el
}

func wayElement(w *pbf.Way) *osm.Element {
	refs := make([]int64, 0, len(w.NodeIDs))
	for _, id := range w.NodeIDs {
		refs = append(refs, int64(id))
	}
	el := &osm.Element{Type: osm.WayType, NodeIDs: refs}
	header(el, int64(w.ID), w.Tags, w.Info)
	return el
}

func relationElement(r *pbf.Relation) *osm.Element {
	el := &osm.Element{Type: osm.RelationType, Members: make([]osm.Member, 0, len(r.Members))}
	for _, m := range r.Members {
		el.Members = append(el.Members, osm.Member{Type: memberType(m.Type), Ref: int64(m.ID), Role: m.Role})
	}
	header(el, int64(r.ID), r.Tags, r.Info)
	return el
}

func memberType(t pbf.ElementType) osm.ElementType {
	switch t {
	case pbf.WAY:
		return osm.WayType
	case pbf.RELATION:
		return osm.RelationType
	default:
		return osm.NodeType
	}
}
