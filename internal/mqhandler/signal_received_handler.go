package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"inboxagent/internal/decision"
	"inboxagent/internal/model"
	"inboxagent/internal/mq"
	"inboxagent/internal/signal"
	"inboxagent/pkg/util"
)

// SignalReceivedHandler feeds signal.received events into the decision
// pipeline. The pipeline is idempotent per source key, so redelivery is
// safe; the deduper just saves the round trip for hot duplicates.
type SignalReceivedHandler struct {
	pipeline *decision.Pipeline
	deduper  *util.Deduper
	logger   *zap.Logger
}

func NewSignalReceivedHandler(pipeline *decision.Pipeline, deduper *util.Deduper, logger *zap.Logger) *SignalReceivedHandler {
	return &SignalReceivedHandler{
		pipeline: pipeline,
		deduper:  deduper,
		logger:   logger,
	}
}

func (h *SignalReceivedHandler) HandleSignalReceived(ctx context.Context, raw json.RawMessage) error {
	var p mq.SignalReceivedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal signal payload", zap.Error(err))
		// 无法解析的消息重投也不会成功，直接 ack
		return nil
	}

	h.logger.Info("Processing signal",
		zap.String("source_type", p.SourceType),
		zap.String("source_external_id", p.SourceExternalID),
		zap.String("sender", p.Sender),
	)

	dedupKey := p.SourceType + ":" + p.SourceExternalID
	if h.deduper != nil && !h.deduper.AcquireOnce(ctx, "engine", dedupKey) {
		h.logger.Debug("Duplicate signal, skipping",
			zap.String("source_external_id", p.SourceExternalID),
		)
		return nil
	}

	record := model.RawRecord{
		SourceType:       p.SourceType,
		SourceExternalID: p.SourceExternalID,
		Sender:           p.Sender,
		SenderName:       p.SenderName,
		Subject:          p.Subject,
		BodyText:         p.BodyText,
		BodyPreview:      p.BodyPreview,
		ReceivedAt:       p.ReceivedAt,
		Labels:           p.Labels,
		ThreadDepth:      p.ThreadDepth,
		IsReply:          p.IsReply,
	}

	d, err := h.pipeline.Process(ctx, record)
	if err != nil {
		if errors.Is(err, signal.ErrValidation) {
			// 校验失败的信号已经记录过指标，不再重投
			return nil
		}
		if retryable, errType := util.IsRetryableError(err); !retryable {
			h.logger.Error("Dropping signal after non-retryable error",
				zap.String("source_external_id", p.SourceExternalID),
				zap.String("error_type", errType),
				zap.Error(err),
			)
			return nil
		}
		return err
	}

	h.logger.Info("Signal decided",
		zap.String("source_external_id", p.SourceExternalID),
		zap.String("decision_id", d.ID.String()),
		zap.String("status", string(d.Status)),
		zap.Float64("confidence", d.Confidence),
	)
	return nil
}
