package api

// Capabilities mirrors the static capability document of the emulated API.
type Capabilities struct {
	VersionMinimum     string  `json:"version_minimum" xml:"-"`
	VersionMaximum     string  `json:"version_maximum" xml:"-"`
	MaximumArea        float64 `json:"maximum_area"`
	TracepointsPerPage int     `json:"tracepoints_per_page"`
	MaximumWayNodes    int     `json:"maximum_way_nodes"`
	MaximumElements    int     `json:"maximum_elements"`
	TimeoutSeconds     int     `json:"timeout_seconds"`
}

// DefaultCapabilities returns the capability document served by every
// instance.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		VersionMinimum:     "0.6",
		VersionMaximum:     "0.6",
		MaximumArea:        0.25,
		TracepointsPerPage: 5000,
		MaximumWayNodes:    2000,
		MaximumElements:    50000,
		TimeoutSeconds:     300,
	}
}
