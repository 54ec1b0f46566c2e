package signal

import (
	"errors"
	"fmt"
	"strings"

	"inboxagent/internal/model"
)

// ErrValidation marks raw records that must be dropped before they enter
// the pipeline. No decision is ever created for them.
var ErrValidation = errors.New("signal validation failed")

const previewLen = 200

// Normalize maps a raw ingestion record into an immutable Signal.
// received_at, sender and source_external_id are mandatory.
func Normalize(raw model.RawRecord) (model.Signal, error) {
	st, ok := model.ParseSourceType(raw.SourceType)
	if !ok {
		return model.Signal{}, fmt.Errorf("%w: unknown source_type %q", ErrValidation, raw.SourceType)
	}
	if strings.TrimSpace(raw.SourceExternalID) == "" {
		return model.Signal{}, fmt.Errorf("%w: missing source_external_id", ErrValidation)
	}
	if strings.TrimSpace(raw.Sender) == "" {
		return model.Signal{}, fmt.Errorf("%w: missing sender", ErrValidation)
	}
	if raw.ReceivedAt.IsZero() {
		return model.Signal{}, fmt.Errorf("%w: missing received_at", ErrValidation)
	}

	preview := raw.BodyPreview
	if preview == "" {
		preview = truncate(raw.BodyText, previewLen)
	}

	labels := make([]string, len(raw.Labels))
	copy(labels, raw.Labels)

	return model.Signal{
		SourceType:       st,
		SourceExternalID: raw.SourceExternalID,
		Sender:           strings.ToLower(strings.TrimSpace(raw.Sender)),
		SenderName:       raw.SenderName,
		Subject:          raw.Subject,
		BodyText:         raw.BodyText,
		BodyPreview:      preview,
		ReceivedAt:       raw.ReceivedAt.UTC(),
		Labels:           labels,
		ThreadDepth:      raw.ThreadDepth,
		IsReply:          raw.IsReply,
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
