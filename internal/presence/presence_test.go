package presence

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-dictation/internal/bus"
	"github.com/loqalabs/loqa-dictation/internal/config"
	"github.com/loqalabs/loqa-dictation/internal/natsserver"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func connect(t *testing.T, url, name string) *bus.Client {
	t.Helper()
	client, err := bus.Connect(context.Background(), name, config.BusConfig{Servers: []string{url}, ConnectTimeout: 2000}, newLogger())
	if err != nil {
		t.Fatalf("connect %s: %v", name, err)
	}
	t.Cleanup(client.Close)
	return client
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPeersDiscoverAndExpire(t *testing.T) {
	server, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1, StoreDir: t.TempDir()}, newLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(server.Shutdown)

	cfg := func(id string) config.NodeConfig {
		return config.NodeConfig{ID: id, HeartbeatIntervalMS: 20, HeartbeatTimeoutMS: 100}
	}
	a, err := Start(context.Background(), cfg("a"), Capabilities{SpeechMode: "mock", Languages: []string{"en"}}, connect(t, server.ClientURL(), "a"), newLogger())
	if err != nil {
		t.Fatalf("start a: %v", err)
	}
	t.Cleanup(a.Close)
	b, err := Start(context.Background(), cfg("b"), Capabilities{SpeechMode: "edge", Languages: []string{"en", "zh-tw"}}, connect(t, server.ClientURL(), "b"), newLogger())
	if err != nil {
		t.Fatalf("start b: %v", err)
	}

	waitFor(t, "a to see b", func() bool { return len(a.Nodes(nil)) == 2 })
	waitFor(t, "b to see a", func() bool { return len(b.Nodes(nil)) == 2 })
	if !a.Healthy() {
		t.Fatal("a should see its own heartbeats")
	}

	zh := a.Nodes(SpeaksLanguage("zh-tw"))
	if len(zh) != 1 || zh[0].ID != "b" || zh[0].Capabilities.SpeechMode != "edge" {
		t.Fatalf("unexpected zh-tw nodes %+v", zh)
	}

	b.Close()
	waitFor(t, "b to expire", func() bool { return len(a.Nodes(SpeaksLanguage("zh-tw"))) == 0 })
	if nodes := a.Nodes(nil); len(nodes) != 2 || nodes[1].Healthy {
		t.Fatalf("expired node should stay listed as unhealthy: %+v", nodes)
	}
}
