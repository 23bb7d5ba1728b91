// Package natsbus carries task dispatch and progress reports over NATS. It
// can embed a server for single-host runs or connect to an external one.
package natsbus

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// RandomPort asks the embedded server to pick a free port.
const RandomPort = natsserver.RANDOM_PORT

// BusConfig configures the embedded server.
type BusConfig struct {
	Host string
	Port int
}

// Bus is an embedded NATS server.
type Bus struct {
	server *natsserver.Server
}

// NewBus starts an embedded server and waits until it accepts clients.
func NewBus(cfg BusConfig) (*Bus, error) {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	opts := &natsserver.Options{
		Host:   host,
		Port:   cfg.Port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready")
	}

	return &Bus{server: ns}, nil
}

// ClientURL is the URL clients connect to.
func (b *Bus) ClientURL() string {
	return b.server.ClientURL()
}

// Close shuts the server down and waits for it to exit.
func (b *Bus) Close() {
	b.server.Shutdown()
	b.server.WaitForShutdown()
}
