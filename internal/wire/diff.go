package wire

import (
	"encoding/xml"

	"github.com/example/osm-edit-engine/internal/osm"
)

// DiffEntry is one `<node|way|relation old_id= new_id= new_version=>` line
// of a diffResult document.
type DiffEntry struct {
	XMLName    xml.Name
	OldID      int64  `xml:"old_id,attr"`
	NewID      *int64 `xml:"new_id,attr,omitempty"`
	NewVersion *int32 `xml:"new_version,attr,omitempty"`
	Error      string `xml:"error,attr,omitempty"`
}

// DiffResult is the `<diffResult>` document returned after a changeset
// upload.
type DiffResult struct {
	XMLName   xml.Name    `xml:"diffResult"`
	Version   string      `xml:"version,attr"`
	Generator string      `xml:"generator,attr,omitempty"`
	Entries   []DiffEntry `xml:",any"`
}

// NewDiffResult converts a model diff result to its wire form, preserving
// entry order.
func NewDiffResult(result osm.DiffResult) *DiffResult {
	dr := &DiffResult{Version: APIVersion, Generator: Generator}
	for _, e := range result.Entries {
		dr.Entries = append(dr.Entries, DiffEntry{
			XMLName:    xml.Name{Local: string(e.Type)},
			OldID:      e.OldID,
			NewID:      e.NewID,
			NewVersion: e.NewVersion,
			Error:      e.Error,
		})
	}
	return dr
}
