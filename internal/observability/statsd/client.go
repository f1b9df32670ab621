// Package statsd emits portal metrics using the DogStatsD line protocol.
package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sink is what the portal emits metrics through.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes the UDP sink.
type Config struct {
	Enabled bool
	Address string
	Prefix  string
	// Tags are attached to every line the client writes.
	Tags   map[string]string
	Logger *slog.Logger
}

const dialTimeout = 5 * time.Second

// Client writes one UDP datagram per sample. A disabled client drops every
// sample, so callers never need to nil-check it. Safe for concurrent use.
type Client struct {
	prefix string
	tags   map[string]string
	logger *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

var _ Sink = (*Client)(nil)

// NewClient dials cfg.Address when cfg.Enabled is set.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		prefix: metricName(cfg.Prefix),
		tags:   cleanTags(cfg.Tags),
		logger: logger,
	}

	addr := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || addr == "" {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", addr, err)
	}
	c.conn = conn
	return c, nil
}

// Enabled reports whether samples reach the network.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.send(name, strconv.FormatInt(value, 10), "c", tags)
}

func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.send(name, formatFloat(value), "g", tags)
}

// Timing records value in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	c.send(name, formatFloat(float64(value)/float64(time.Millisecond)), "ms", tags)
}

// Close drops the connection; later samples are discarded.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) send(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	line, ok := c.line(name, value, kind, tags)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.logger.Debug("statsd write failed", "metric", name, "error", err)
	}
}

// line renders "prefix.name:value|kind|#k:v,..." with tags sorted by key.
func (c *Client) line(name, value, kind string, tags map[string]string) (string, bool) {
	metric := metricName(name)
	if metric == "" {
		return "", false
	}
	var b strings.Builder
	if c.prefix != "" {
		b.WriteString(c.prefix)
		b.WriteByte('.')
	}
	b.WriteString(metric)
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte('|')
	b.WriteString(kind)
	writeTags(&b, mergeTags(c.tags, tags))
	return b.String(), true
}

// Tagged wraps a sink so every sample carries tags. Per-call tags win on conflict.
type Tagged struct {
	next Sink
	tags map[string]string
}

var _ Sink = (*Tagged)(nil)

// WithTags returns next decorated with tags.
func WithTags(next Sink, tags map[string]string) *Tagged {
	return &Tagged{next: next, tags: cleanTags(tags)}
}

func (t *Tagged) Count(name string, value int64, tags map[string]string) {
	if t == nil || t.next == nil {
		return
	}
	t.next.Count(name, value, mergeTags(t.tags, tags))
}

func (t *Tagged) Gauge(name string, value float64, tags map[string]string) {
	if t == nil || t.next == nil {
		return
	}
	t.next.Gauge(name, value, mergeTags(t.tags, tags))
}

func (t *Tagged) Timing(name string, value time.Duration, tags map[string]string) {
	if t == nil || t.next == nil {
		return
	}
	t.next.Timing(name, value, mergeTags(t.tags, tags))
}

// metricName keeps [A-Za-z0-9_.-], maps everything else to '_' and
// collapses empty dot segments.
func metricName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(name))
	parts := strings.FieldsFunc(mapped, func(r rune) bool { return r == '.' })
	return strings.Join(parts, ".")
}

func cleanTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if k = strings.TrimSpace(k); k != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}

func mergeTags(base, extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return base
	}
	merged := maps.Clone(base)
	if merged == nil {
		merged = make(map[string]string, len(extra))
	}
	maps.Copy(merged, cleanTags(extra))
	return merged
}

func writeTags(b *strings.Builder, tags map[string]string) {
	if len(tags) == 0 {
		return
	}
	b.WriteString("|#")
	for i, k := range slices.Sorted(maps.Keys(tags)) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(tags[k])
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
