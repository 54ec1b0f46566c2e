package mq

import "time"

// SignalReceivedPayload is the signal.received event body. It carries the
// raw record as captured at the ingestion edge; normalization happens in
// the engine, not here.
type SignalReceivedPayload struct {
	SourceType       string    `json:"source_type"`
	SourceExternalID string    `json:"source_external_id"`
	Sender           string    `json:"sender"`
	SenderName       string    `json:"sender_name,omitempty"`
	Subject          string    `json:"subject,omitempty"`
	BodyText         string    `json:"body_text,omitempty"`
	BodyPreview      string    `json:"body_preview,omitempty"`
	ReceivedAt       time.Time `json:"received_at"`
	Labels           []string  `json:"labels,omitempty"`
	ThreadDepth      int       `json:"thread_depth,omitempty"`
	IsReply          bool      `json:"is_reply,omitempty"`
}

// ArchivePayload is the signal.archive event body, asking the ingestion
// collaborator to archive the source item after an archive decision ran.
type ArchivePayload struct {
	SourceType       string `json:"source_type"`
	SourceExternalID string `json:"source_external_id"`
}
