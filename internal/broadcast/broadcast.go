// Package broadcast publishes run events to NATS for real-time consumers.
package broadcast

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/danielpatrickdp/agent-boss/internal/logging"
)

// #region config

// Config selects the NATS server and subject prefix. An empty URL disables broadcasting.
type Config struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// DefaultConfig returns a disabled broadcaster with prefix "agentboss".
func DefaultConfig() Config {
	return Config{SubjectPrefix: "agentboss"}
}

// #endregion config

// #region connect

// Connect dials NATS, retrying in the background if the server is not up yet.
func Connect(cfg Config) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("agent-boss"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	return nc, nil
}

// #endregion connect

// #region sink

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Sink publishes each event as JSON on <prefix>.<runID>.<eventType>.
type Sink struct {
	pub    Publisher
	prefix string
}

// NewSink wraps pub. An empty prefix uses the default.
func NewSink(pub Publisher, prefix string) *Sink {
	if prefix == "" {
		prefix = DefaultConfig().SubjectPrefix
	}
	return &Sink{pub: pub, prefix: prefix}
}

// Publish implements logging.Sink. nats.Conn buffers the write, so this never
// waits on the network.
func (s *Sink) Publish(e logging.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := Subject(s.prefix, e.RunID, string(e.Type))
	if err := s.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subject builds a NATS subject. Tokens are sanitized so a run id can never
// add levels or wildcards.
func Subject(prefix, runID, event string) string {
	return strings.Join([]string{prefix, token(runID), token(event)}, ".")
}

// RunWildcard matches every event of one run.
func RunWildcard(prefix, runID string) string {
	return prefix + "." + token(runID) + ".*"
}

var tokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

func token(s string) string {
	if s == "" {
		return "_"
	}
	return tokenReplacer.Replace(s)
}

// #endregion sink
