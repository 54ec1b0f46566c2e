package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"inboxagent/internal/model"
	"inboxagent/internal/mq"
)

// SignalService accepts raw signals at the API edge and fans them out to
// the engine over the exchange. It validates only what would make the
// event undeliverable; full normalization happens in the worker.
type SignalService struct {
	producer *mq.Producer
	logger   *zap.Logger
}

func NewSignalService(producer *mq.Producer, logger *zap.Logger) *SignalService {
	return &SignalService{producer: producer, logger: logger}
}

func (s *SignalService) Ingest(ctx context.Context, p mq.SignalReceivedPayload) error {
	if _, ok := model.ParseSourceType(p.SourceType); !ok {
		return fmt.Errorf("unknown source_type %q", p.SourceType)
	}
	if p.SourceExternalID == "" {
		return fmt.Errorf("source_external_id is required")
	}
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = time.Now().UTC()
	}

	if err := s.producer.Publish(mq.RoutingKeySignalReceived, p); err != nil {
		return fmt.Errorf("publish signal: %w", err)
	}

	s.logger.Info("Signal queued",
		zap.String("source_type", p.SourceType),
		zap.String("source_external_id", p.SourceExternalID),
	)
	return nil
}
