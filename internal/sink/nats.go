package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	nats "github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when the NATS url carries no path
const DefaultSubjectPrefix = "modbus.tags"

// NATS publishes readings as JSON, one subject per tag
type NATS struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// OpenNATS connects to the server in rawURL. The url path, with slashes
// turned into dots, becomes the subject prefix.
func OpenNATS(rawURL string, logger *slog.Logger) (*NATS, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("sink: parse url: %w", err)
	}
	prefix := strings.Trim(strings.ReplaceAll(u.Path, "/", "."), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	u.Path = ""

	nc, err := nats.Connect(u.String(),
		nats.Name("edgeo-modbus"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("sink: nats connect: %w", err)
	}
	return &NATS{conn: nc, prefix: prefix, logger: logger}, nil
}

// Subject returns the subject a tag is published on. Characters NATS
// treats specially are replaced.
func Subject(prefix, tag string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_", ":", "_", "[", "_", "]", "")
	return prefix + "." + r.Replace(tag)
}

func (n *NATS) Write(_ context.Context, r Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("sink: encode reading: %w", err)
	}
	if err := n.conn.Publish(Subject(n.prefix, r.Tag), data); err != nil {
		return fmt.Errorf("sink: nats publish: %w", err)
	}
	return nil
}

func (n *NATS) Close() error {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
	return nil
}
