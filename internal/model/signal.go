package model

import "time"

// SourceType identifies where a signal came from.
type SourceType string

const (
	SourceEmail    SourceType = "email"
	SourceCalendar SourceType = "calendar"
	SourceManual   SourceType = "manual"
)

func ParseSourceType(s string) (SourceType, bool) {
	switch SourceType(s) {
	case SourceEmail, SourceCalendar, SourceManual:
		return SourceType(s), true
	}
	return "", false
}

// RawRecord is whatever the ingestion collaborators hand us before
// normalization. Fields may be missing; Normalize validates them.
type RawRecord struct {
	SourceType       string    `json:"source_type"`
	SourceExternalID string    `json:"source_external_id"`
	Sender           string    `json:"sender"`
	SenderName       string    `json:"sender_name"`
	Subject          string    `json:"subject"`
	BodyText         string    `json:"body_text"`
	BodyPreview      string    `json:"body_preview"`
	ReceivedAt       time.Time `json:"received_at"`
	Labels           []string  `json:"labels"`
	ThreadDepth      int       `json:"thread_depth"`
	IsReply          bool      `json:"is_reply"`
}

// Signal is the normalized representation of one incoming item.
// Treated as immutable once constructed.
type Signal struct {
	SourceType       SourceType
	SourceExternalID string
	Sender           string
	SenderName       string
	Subject          string
	BodyText         string
	BodyPreview      string
	ReceivedAt       time.Time
	Labels           []string
	ThreadDepth      int
	IsReply          bool
}
