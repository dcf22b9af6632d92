package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"claims_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSinkWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(logger.NewWithWriter("production", &buf))
	actor, claim := uuid.New(), uuid.New()

	sink.Record(context.Background(), Entry{
		ActorID:      actor,
		Action:       "claim.approve",
		ResourceType: "claim",
		ResourceID:   claim,
		Details:      map[string]any{"approvedAmount": 1200.5},
		Before:       "under_review",
		After:        "approved",
		At:           time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "audit", line["msg"])
	assert.Equal(t, actor.String(), line["actor_id"])
	assert.Equal(t, "claim.approve", line["action"])
	assert.Equal(t, claim.String(), line["resource_id"])
	assert.Equal(t, "under_review", line["before"])
	assert.Equal(t, "approved", line["after"])
	assert.Equal(t, 1200.5, line["details"].(map[string]any)["approvedAmount"])
}

func TestLogSinkStampsMissingTime(t *testing.T) {
	var buf bytes.Buffer
	NewLogSink(logger.NewWithWriter("production", &buf)).Record(context.Background(), Entry{Action: "claim.cancel"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotEmpty(t, line["at"])
	assert.NotContains(t, line, "details")
}
