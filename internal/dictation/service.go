package dictation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-dictation/internal/bus"
	"github.com/loqalabs/loqa-dictation/internal/config"
	"github.com/loqalabs/loqa-dictation/internal/protocol"
)

// Service answers generation and preview requests arriving on the bus.
type Service struct {
	cfg     config.DictationConfig
	bus     *bus.Client
	manager *Manager
	subs    []*nats.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *slog.Logger
}

func NewService(parent context.Context, cfg config.DictationConfig, busClient *bus.Client, manager *Manager, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:     cfg,
		bus:     busClient,
		manager: manager,
		ctx:     ctx,
		cancel:  cancel,
		timeout: 5 * time.Minute,
		logger:  log.With(slog.String("component", "dictation-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	handlers := map[string]nats.MsgHandler{
		protocol.SubjectGenerateRequest: s.handleGenerate,
		protocol.SubjectPreviewRequest:  s.handlePreview,
	}
	for subject, handler := range handlers {
		sub, err := s.bus.Conn().Subscribe(subject, handler)
		if err != nil {
			s.unsubscribe()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	s.logger.Info("dictation service listening",
		slog.String("generate", protocol.SubjectGenerateRequest),
		slog.String("preview", protocol.SubjectPreviewRequest))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.unsubscribe()
	s.wg.Wait()
}

func (s *Service) unsubscribe() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || len(s.subs) > 0 }

func (s *Service) handleGenerate(msg *nats.Msg) {
	var req protocol.GenerateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode generate request", slogError(err))
		s.respond(msg, protocol.GenerateReply{Error: "invalid request: " + err.Error()})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		reply, err := s.manager.Generate(ctx, req)
		if err != nil {
			s.logger.Warn("generate request rejected", slogError(err))
			reply.Error = err.Error()
		}
		s.respond(msg, reply)
	}()
}

func (s *Service) handlePreview(msg *nats.Msg) {
	var req protocol.PreviewRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode preview request", slogError(err))
		s.respond(msg, protocol.PreviewReply{Error: "invalid request: " + err.Error()})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
		defer cancel()

		data, contentType, err := s.manager.Preview(ctx, req)
		if err != nil {
			s.respond(msg, protocol.PreviewReply{Error: err.Error()})
			return
		}
		s.respond(msg, protocol.PreviewReply{Audio: data, ContentType: contentType})
	}()
}

func (s *Service) respond(msg *nats.Msg, v any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to marshal reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send reply", slogError(err))
	}
}
