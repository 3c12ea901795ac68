package osm

import "fmt"

const (
	MaxLat = 90.0
	MaxLon = 180.0
	MinLat = -90.0
	MinLon = -180.0
)

// BoundingBox is a simple lat/lon box in decimal degrees.
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// NewBoundingBox validates the corners and returns the box.
func NewBoundingBox(minLat, minLon, maxLat, maxLon float64) (BoundingBox, error) {
	if minLat < MinLat || maxLat > MaxLat || minLon < MinLon || maxLon > MaxLon {
		return BoundingBox{}, fmt.Errorf("bounding box out of range: %v,%v,%v,%v", minLat, minLon, maxLat, maxLon)
	}
	if minLat > maxLat || minLon > maxLon {
		return BoundingBox{}, fmt.Errorf("bounding box min exceeds max: %v,%v,%v,%v", minLat, minLon, maxLat, maxLon)
	}
	return BoundingBox{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon}, nil
}

// Contains checks if the bounding box contains the lat/lon point.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return b.MinLon <= lon && lon <= b.MaxLon && b.MinLat <= lat && lat <= b.MaxLat
}
