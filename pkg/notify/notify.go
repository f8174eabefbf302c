// Package notify publishes bridge session snapshots to NATS so that other
// processes can follow a transfer.
package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/speedrun-hq/bridgerunner/pkg/bridge"
	"github.com/speedrun-hq/bridgerunner/pkg/logger"
)

const (
	// DefaultSubjectPrefix is prepended to the session id to form the subject
	DefaultSubjectPrefix = "bridge.session"

	connectTimeout = 10 * time.Second
	reconnectWait  = 5 * time.Second
)

// Conn is the part of a NATS connection used for publishing
type Conn interface {
	Publish(subject string, data []byte) error
}

// Source is anything that emits session snapshots
type Source interface {
	Subscribe(fn func(bridge.Snapshot)) func()
}

// Publisher sends every snapshot of a session to NATS
type Publisher struct {
	conn   Conn
	nc     *nats.Conn
	prefix string
	logger logger.Logger
}

// Connect dials the NATS server at url and returns a publisher using DefaultSubjectPrefix
func Connect(url string, log logger.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("bridgerunner"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Error("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := NewPublisher(nc, DefaultSubjectPrefix, log)
	p.nc = nc
	return p, nil
}

// NewPublisher creates a publisher over an existing connection
func NewPublisher(conn Conn, prefix string, log logger.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: log,
	}
}

// Subject returns the subject a snapshot of sessionID is published on
func (p *Publisher) Subject(sessionID string) string {
	return p.prefix + "." + sessionID
}

// Publish encodes s as JSON and publishes it
func (p *Publisher) Publish(s bridge.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := p.conn.Publish(p.Subject(s.SessionID), data); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Attach publishes every snapshot emitted by src until the returned function is called
func (p *Publisher) Attach(src Source) func() {
	return src.Subscribe(func(s bridge.Snapshot) {
		if err := p.Publish(s); err != nil {
			p.logger.Error("Snapshot %d of session %s not published: %v", s.Version, s.SessionID, err)
		}
	})
}

// Close flushes pending messages and closes the connection opened by Connect
func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Error("Failed to drain NATS connection: %v", err)
	}
}
