package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-dictation/internal/audio"
	"github.com/loqalabs/loqa-dictation/internal/bus"
	"github.com/loqalabs/loqa-dictation/internal/config"
	"github.com/loqalabs/loqa-dictation/internal/dictation"
	"github.com/loqalabs/loqa-dictation/internal/eventstore"
	"github.com/loqalabs/loqa-dictation/internal/httpapi"
	"github.com/loqalabs/loqa-dictation/internal/library"
	"github.com/loqalabs/loqa-dictation/internal/natsserver"
	"github.com/loqalabs/loqa-dictation/internal/practice"
	"github.com/loqalabs/loqa-dictation/internal/presence"
	"github.com/loqalabs/loqa-dictation/internal/protocol"
	"github.com/loqalabs/loqa-dictation/internal/textnorm"
	"github.com/loqalabs/loqa-dictation/internal/tts"
	"github.com/loqalabs/loqa-dictation/internal/vision"
)

const trackStreamMaxAge = 24 * time.Hour

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	promServer  *http.Server
	tracerClose func(context.Context) error
	nats        *natsserver.EmbeddedServer
	bus         *bus.Client
	events      *eventstore.Store
	service     *dictation.Service
	presence    *presence.Registry
	languages   []string
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start wires every component, serves until ctx is cancelled and then shuts
// down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	manager, err := r.buildManager(ctx)
	if err != nil {
		r.shutdown()
		return err
	}

	if err := r.connectBus(ctx); err != nil {
		r.shutdown()
		return err
	}
	if r.bus != nil {
		manager.SetPublisher(r.bus)
		r.service = dictation.NewService(ctx, r.cfg.Dictation, r.bus, manager, r.logger)
		if err := r.service.Start(); err != nil {
			r.shutdown()
			return fmt.Errorf("failed to start dictation service: %w", err)
		}
		r.presence, err = presence.Start(ctx, r.cfg.Node, presence.Capabilities{
			SpeechMode:  r.cfg.Speech.Mode,
			VisionMode:  r.cfg.Vision.Mode,
			AudioFormat: r.cfg.Audio.Format,
			Languages:   r.languages,
		}, r.bus, r.logger)
		if err != nil {
			r.logger.Warn("presence disabled", slog.String("error", err.Error()))
		}
	}

	handler := httpapi.NewHandler(httpapi.Options{
		Config:  r.cfg.HTTP,
		Manager: manager,
		Ready:   r.isReady,
		Metrics: metricsHandler,
		Nodes:   r.nodes,
		Logger:  r.logger,
	})
	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if metricsHandler != nil && r.cfg.Telemetry.PrometheusBind != "" {
		r.servePrometheus(metricsHandler, cancel)
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr), slog.String("speech_mode", r.cfg.Speech.Mode))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	r.shutdown()
	return nil
}

func (r *Runtime) buildManager(ctx context.Context) (*dictation.Manager, error) {
	events, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}
	r.events = events

	metrics, err := dictation.NewMetrics()
	if err != nil {
		r.logger.Warn("failed to initialize dictation metrics", slog.String("error", err.Error()))
	}

	synth, err := tts.New(r.cfg.Speech, r.cfg.Audio, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech backend: %w", err)
	}
	if metrics != nil {
		synth = metrics.Instrument(synth)
	}

	encoder, err := audio.NewEncoder(r.cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio encoder: %w", err)
	}
	layout := audio.Format{SampleRate: r.cfg.Audio.SampleRate, Channels: r.cfg.Audio.Channels}
	assembler := audio.NewAssembler(encoder, layout, r.cfg.Audio.ScratchDir, r.logger)

	normalizer, err := loadNormalizer(r.cfg.Normalizer)
	if err != nil {
		return nil, err
	}
	r.languages = normalizer.Languages()
	opts := []practice.Option{practice.WithNormalizer(normalizer)}
	if r.cfg.Speech.CacheSize > 0 {
		preview, err := tts.NewCached(synth, r.cfg.Speech.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create preview cache: %w", err)
		}
		opts = append(opts, practice.WithPreviewSynthesizer(preview))
	}
	builder := practice.NewBuilder(synth, assembler, r.logger, opts...)

	var mirror library.Mirror
	if r.cfg.Library.S3.Enabled {
		s3, err := library.NewS3Mirror(r.cfg.Library.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 mirror: %w", err)
		}
		mirror = s3
	}
	lib := library.New(r.cfg.Library.Dir, mirror, r.logger)

	extractor, err := vision.New(ctx, r.cfg.Vision, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision extractor: %w", err)
	}

	return dictation.NewManager(dictation.Options{
		Practice:  r.cfg.Practice,
		Builder:   builder,
		Library:   lib,
		Events:    events,
		Extractor: extractor,
		Metrics:   metrics,
		Logger:    r.logger,
	})
}

func loadNormalizer(cfg config.NormalizerConfig) (*textnorm.Normalizer, error) {
	if cfg.ProfilesPath == "" {
		return textnorm.Standard(), nil
	}
	profiles, err := textnorm.LoadProfiles(cfg.ProfilesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load normalizer profiles: %w", err)
	}
	return textnorm.Standard().Extend(profiles...)
}

func (r *Runtime) connectBus(ctx context.Context) error {
	if !r.cfg.Dictation.Enabled {
		r.logger.Info("dictation bus service disabled")
		return nil
	}
	busCfg := r.cfg.Bus
	embedded, err := natsserver.Start(busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	if embedded != nil {
		r.nats = embedded
		busCfg.Servers = []string{embedded.ClientURL()}
	}

	client, err := bus.Connect(ctx, r.cfg.RuntimeName, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.bus = client
	if err := client.EnsureStream(protocol.StreamTracks, []string{"dictation.track.>"}, trackStreamMaxAge); err != nil {
		r.logger.Warn("failed to ensure track stream", slog.String("error", err.Error()))
	}
	return nil
}

func (r *Runtime) servePrometheus(handler http.Handler, cancel context.CancelFunc) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	r.promServer = &http.Server{
		Addr:              r.cfg.Telemetry.PrometheusBind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.promServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("prometheus server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()
}

func (r *Runtime) nodes() []presence.Node {
	if r.presence == nil {
		return nil
	}
	return r.presence.Nodes(nil)
}

func (r *Runtime) isReady() bool {
	if !r.ready.Load() {
		return false
	}
	if r.bus != nil && !r.bus.Healthy() {
		return false
	}
	return r.service == nil || r.service.Healthy()
}

func (r *Runtime) shutdown() {
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	for _, srv := range []*http.Server{r.httpServer, r.promServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("addr", srv.Addr), slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.presence != nil {
		r.presence.Close()
	}
	if r.service != nil {
		r.service.Close()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	if r.nats != nil {
		r.nats.Shutdown()
	}
	if err := r.events.Close(); err != nil {
		r.logger.Error("event store close error", slog.String("error", err.Error()))
	}
	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}
