// Package feed pushes applied changesets to websocket subscribers.
package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/example/osm-edit-engine/internal/osm"
)

// Event is the JSON envelope delivered to feed subscribers for every applied
// changeset.
type Event struct {
	Instance    string         `json:"instance"`
	ChangesetID int64          `json:"changeset_id"`
	Result      osm.DiffResult `json:"result"`
	AppliedAt   time.Time      `json:"applied_at"`
}

// Encode serializes the event for transport.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent deserializes a feed event.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}

// Registry tracks active feed connections keyed by instance name so the
// broadcaster can fan out efficiently.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]map[*Connection]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]map[*Connection]struct{})}
}

// Register associates the connection with an instance.
func (r *Registry) Register(instance string, c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.instances[instance] == nil {
		r.instances[instance] = make(map[*Connection]struct{})
	}
	r.instances[instance][c] = struct{}{}
	feedConnections.WithLabelValues(instance).Set(float64(len(r.instances[instance])))
}

// Unregister removes the connection.
func (r *Registry) Unregister(instance string, c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.instances[instance]
	if conns == nil {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(r.instances, instance)
	}
	feedConnections.WithLabelValues(instance).Set(float64(len(conns)))
}

// Broadcast delivers the payload to every connection currently subscribed to
// the instance, returning the number of deliveries.
func (r *Registry) Broadcast(instance string, payload []byte) int {
	r.mu.RLock()
	conns := r.instances[instance]
	recipients := make([]*Connection, 0, len(conns))
	for c := range conns {
		recipients = append(recipients, c)
	}
	r.mu.RUnlock()

	sent := 0
	for _, conn := range recipients {
		if err := conn.Send(payload); err == nil {
			sent++
		}
	}
	return sent
}
