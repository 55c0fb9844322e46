package bus

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Subject layout. Every event the broker emits lands under the
// hyperbroker root so one JetStream stream captures them all.
const (
	StreamName = "HYPERBROKER"

	subjectRoot       = "hyperbroker"
	subjectQuotes     = subjectRoot + ".quotes"
	subjectExecutions = subjectRoot + ".executions"
	subjectSwaps      = subjectRoot + ".collateral.swaps"
)

// Config holds the event bus connection settings.
type Config struct {
	URL      string
	ClientID string
	MaxAge   time.Duration
}

// Client publishes broker events to NATS JetStream. A nil *Client is a
// valid no-op publisher, so callers never branch on whether events are
// configured.
type Client struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logrus.Entry
}

// NewClient connects to NATS and ensures the broker stream exists.
func NewClient(config *Config) (*Client, error) {
	logger := logrus.WithField("component", "bus")

	opts := []nats.Option{
		nats.Name(config.ClientID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("event bus disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("event bus reconnected")
		}),
	}

	conn, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event bus: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	client := &Client{conn: conn, js: js, logger: logger}
	if err := client.ensureStream(config.MaxAge); err != nil {
		conn.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) ensureStream(maxAge time.Duration) error {
	if maxAge == 0 {
		maxAge = 24 * time.Hour
	}
	cfg := &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{subjectRoot + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    maxAge,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}

	if _, err := c.js.StreamInfo(StreamName); err == nil {
		if _, err := c.js.UpdateStream(cfg); err != nil {
			return fmt.Errorf("failed to update stream %s: %w", StreamName, err)
		}
		return nil
	}
	if _, err := c.js.AddStream(cfg); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", StreamName, err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	if c != nil && c.conn != nil {
		c.conn.Close()
	}
}

// PublishQuote emits a quote event under the asset's subject.
func (c *Client) PublishQuote(baseAsset string, quote interface{}) {
	c.publish(fmt.Sprintf("%s.%s", subjectQuotes, subjectToken(baseAsset)), QuoteEvent{
		BaseAsset: baseAsset,
		Quote:     quote,
		Timestamp: time.Now().UTC(),
	})
}

// PublishExecution emits an execution event under the asset's subject.
func (c *Client) PublishExecution(baseAsset string, receipt interface{}) {
	c.publish(fmt.Sprintf("%s.%s", subjectExecutions, subjectToken(baseAsset)), ExecutionEvent{
		BaseAsset: baseAsset,
		Receipt:   receipt,
		Timestamp: time.Now().UTC(),
	})
}

// PublishSwap emits a collateral swap event.
func (c *Client) PublishSwap(token string, swap interface{}) {
	c.publish(fmt.Sprintf("%s.%s", subjectSwaps, subjectToken(token)), SwapEvent{
		Token:     token,
		Swap:      swap,
		Timestamp: time.Now().UTC(),
	})
}

// publish marshals and sends one event. Publish failures are logged,
// never propagated: event emission must not affect trading outcomes.
func (c *Client) publish(subject string, event interface{}) {
	if c == nil || c.js == nil {
		return
	}
	msg, err := json.Marshal(event)
	if err != nil {
		c.logger.WithError(err).WithField("subject", subject).Warn("failed to encode event")
		return
	}
	if _, err := c.js.Publish(subject, msg); err != nil {
		c.logger.WithError(err).WithField("subject", subject).Warn("failed to publish event")
		return
	}
	c.logger.WithField("subject", subject).Debug("event published")
}

// subjectToken sanitizes an asset or token symbol for use as a subject
// segment.
func subjectToken(s string) string {
	cleaned := strings.ReplaceAll(strings.ToUpper(s), ".", "_")
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	if cleaned == "" {
		return "UNKNOWN"
	}
	return cleaned
}
