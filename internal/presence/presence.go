// Package presence lets dictation daemons sharing a bus find each other.
// Each node announces what it can render and then heartbeats; peers that
// miss heartbeats for longer than the timeout are marked unhealthy.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/loqalabs/loqa-dictation/internal/bus"
	"github.com/loqalabs/loqa-dictation/internal/config"
)

const (
	SubjectAnnounce  = "dictation.node.announce"
	SubjectHeartbeat = "dictation.node.heartbeat"
)

// Capabilities describes what a node renders.
type Capabilities struct {
	SpeechMode  string   `json:"speech_mode"`
	VisionMode  string   `json:"vision_mode"`
	AudioFormat string   `json:"audio_format"`
	Languages   []string `json:"languages"`
}

type Node struct {
	ID           string       `json:"id"`
	Capabilities Capabilities `json:"capabilities"`
	LastSeen     time.Time    `json:"last_seen"`
	Healthy      bool         `json:"healthy"`
}

type announcement struct {
	NodeID       string       `json:"node_id"`
	Capabilities Capabilities `json:"capabilities"`
	Timestamp    time.Time    `json:"timestamp"`
}

type heartbeat struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

type Registry struct {
	id       string
	caps     Capabilities
	interval time.Duration
	timeout  time.Duration
	bus      *bus.Client
	log      *slog.Logger
	cancel   context.CancelFunc
	subs     []*nats.Subscription
	wg       sync.WaitGroup

	mu    sync.RWMutex
	nodes map[string]*Node
}

// Start subscribes to peer traffic, announces caps and begins heartbeating.
// An empty node id falls back to the host name.
func Start(ctx context.Context, cfg config.NodeConfig, caps Capabilities, busClient *bus.Client, log *slog.Logger) (*Registry, error) {
	id := cfg.ID
	if id == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "dictation"
		}
		id = host
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		id:       id,
		caps:     caps,
		interval: time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond,
		timeout:  time.Duration(cfg.HeartbeatTimeoutMS) * time.Millisecond,
		bus:      busClient,
		log:      log.With(slog.String("component", "presence"), slog.String("node_id", id)),
		cancel:   cancel,
		nodes:    make(map[string]*Node),
	}
	if r.interval <= 0 {
		r.interval = 5 * time.Second
	}
	if r.timeout < r.interval {
		r.timeout = 3 * r.interval
	}
	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize presence metrics", slog.String("error", err.Error()))
	}

	conn := busClient.Conn()
	for subject, handler := range map[string]nats.MsgHandler{
		SubjectAnnounce:         r.handleAnnounce,
		SubjectHeartbeat + ".*": r.handleHeartbeat,
	} {
		sub, err := conn.Subscribe(subject, handler)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		r.subs = append(r.subs, sub)
	}

	if err := r.announce(); err != nil {
		r.log.Warn("failed to announce node", slog.String("error", err.Error()))
	}
	r.wg.Add(1)
	go r.run(ctx)
	return r, nil
}

func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
	r.subs = nil
}

func (r *Registry) ID() string { return r.id }

func (r *Registry) run(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := r.bus.PublishJSON(SubjectHeartbeat+"."+r.id, heartbeat{NodeID: r.id, Timestamp: now.UTC()}); err != nil {
				r.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
			r.expire(now)
		}
	}
}

func (r *Registry) announce() error {
	msg := announcement{NodeID: r.id, Capabilities: r.caps, Timestamp: time.Now().UTC()}
	if err := r.bus.PublishJSON(SubjectAnnounce, msg); err != nil {
		return err
	}
	r.update(msg.NodeID, &msg.Capabilities, msg.Timestamp)
	return nil
}

func (r *Registry) handleAnnounce(msg *nats.Msg) {
	var a announcement
	if err := json.Unmarshal(msg.Data, &a); err != nil || a.NodeID == "" {
		r.log.Warn("invalid announce message")
		return
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	isNew := a.NodeID != r.id && !r.known(a.NodeID)
	r.update(a.NodeID, &a.Capabilities, a.Timestamp)
	// Late joiners learn about us when they announce.
	if isNew {
		if err := r.announce(); err != nil {
			r.log.Warn("failed to re-announce node", slog.String("error", err.Error()))
		}
	}
}

func (r *Registry) handleHeartbeat(msg *nats.Msg) {
	var hb heartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil || hb.NodeID == "" {
		r.log.Warn("invalid heartbeat message")
		return
	}
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now().UTC()
	}
	r.update(hb.NodeID, nil, hb.Timestamp)
}

func (r *Registry) known(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.nodes[id]
	return ok
}

func (r *Registry) update(id string, caps *Capabilities, seen time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.nodes[id]
	if !ok {
		node = &Node{ID: id}
		r.nodes[id] = node
	}
	if caps != nil {
		node.Capabilities = *caps
	}
	node.LastSeen = seen
	node.Healthy = true
}

func (r *Registry) expire(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, node := range r.nodes {
		if now.Sub(node.LastSeen) > r.timeout {
			node.Healthy = false
		}
	}
}

// Healthy reports whether this node's own heartbeats are still arriving.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node, ok := r.nodes[r.id]
	return ok && node.Healthy
}

// Nodes returns every known node sorted by id, optionally filtered.
func (r *Registry) Nodes(filter func(Node) bool) []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Node
	for _, node := range r.nodes {
		n := *node
		n.Capabilities.Languages = append([]string(nil), node.Capabilities.Languages...)
		if filter == nil || filter(n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SpeaksLanguage matches healthy nodes that render language.
func SpeaksLanguage(language string) func(Node) bool {
	return func(n Node) bool {
		if !n.Healthy {
			return false
		}
		for _, l := range n.Capabilities.Languages {
			if l == language {
				return true
			}
		}
		return false
	}
}

func (r *Registry) initMetrics() error {
	meter := otel.Meter("github.com/loqalabs/loqa-dictation/presence")
	gauge, err := meter.Int64ObservableGauge("dictation.nodes.healthy", metric.WithDescription("Healthy dictation nodes on the bus"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, int64(len(r.Nodes(func(n Node) bool { return n.Healthy }))))
		return nil
	}, gauge)
	return err
}
