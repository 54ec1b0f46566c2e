package signal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxagent/internal/model"
)

func validRecord() model.RawRecord {
	return model.RawRecord{
		SourceType:       "email",
		SourceExternalID: "msg-1",
		Sender:           "Alice@Example.com ",
		Subject:          "hello",
		BodyText:         "body",
		ReceivedAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600)),
	}
}

func TestNormalizeValid(t *testing.T) {
	sig, err := Normalize(validRecord())
	require.NoError(t, err)

	assert.Equal(t, model.SourceEmail, sig.SourceType)
	assert.Equal(t, "alice@example.com", sig.Sender, "sender is lowercased and trimmed")
	assert.Equal(t, time.UTC, sig.ReceivedAt.Location())
	assert.Equal(t, 9, sig.ReceivedAt.Hour())
}

func TestNormalizeRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.RawRecord)
	}{
		{"unknown source type", func(r *model.RawRecord) { r.SourceType = "carrier_pigeon" }},
		{"missing external id", func(r *model.RawRecord) { r.SourceExternalID = "  " }},
		{"missing sender", func(r *model.RawRecord) { r.Sender = "" }},
		{"missing received_at", func(r *model.RawRecord) { r.ReceivedAt = time.Time{} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := validRecord()
			tc.mutate(&raw)
			_, err := Normalize(raw)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestNormalizePreviewFallsBackToTruncatedBody(t *testing.T) {
	raw := validRecord()
	raw.BodyPreview = ""
	raw.BodyText = strings.Repeat("x", 500)

	sig, err := Normalize(raw)
	require.NoError(t, err)
	assert.Len(t, []rune(sig.BodyPreview), 200)
	assert.True(t, strings.HasSuffix(sig.BodyPreview, "..."))
}

func TestNormalizeKeepsExplicitPreview(t *testing.T) {
	raw := validRecord()
	raw.BodyPreview = "short preview"

	sig, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "short preview", sig.BodyPreview)
}
