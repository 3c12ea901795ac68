package feed

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// GatewayConfig controls the runtime behaviour of the websocket feed.
type GatewayConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// Gateway upgrades HTTP requests into websocket connections and wires them
// into the Registry.
type Gateway struct {
	registry *Registry
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	cfg      GatewayConfig
}

// NewGateway creates a Gateway with sane defaults.
func NewGateway(registry *Registry, logger zerolog.Logger, cfg GatewayConfig) *Gateway {
	if cfg.SendBuffer == 0 {
		cfg.SendBuffer = 64
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Gateway{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		cfg: cfg,
	}
}

// Registry exposes the connection registry so a broadcaster can fan out to it.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Serve upgrades the request and subscribes the client to the instance feed
// until the socket closes.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, instance string) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug().Err(err).Str("instance", instance).Msg("feed upgrade failed")
		return
	}

	logger := g.logger.With().Str("instance", instance).Str("remote", r.RemoteAddr).Logger()
	var conn *Connection
	conn = newConnection(ws, instance, logger, g.cfg.SendBuffer, g.cfg.WriteTimeout, g.cfg.PingInterval, func() {
		g.registry.Unregister(instance, conn)
	})
	g.registry.Register(instance, conn)
	logger.Info().Msg("feed subscriber connected")
	conn.run()
	logger.Info().Msg("feed subscriber disconnected")
}
