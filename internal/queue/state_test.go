package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTaskRecord(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec, err := decodeTaskRecord("t-1", map[string]string{
		"channel":     "root.mail",
		"message_id":  "m-1",
		"priority":    "0",
		"retry_count": "2",
		"state":       string(StateFailed),
		"error":       "relay down",
		"updated_at":  updated.Format(time.RFC3339Nano),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Priority)
	assert.Equal(t, 2, rec.RetryCount)
	assert.Equal(t, StateFailed, rec.State)
	assert.True(t, rec.UpdatedAt.Equal(updated))
}

func TestDecodeTaskRecord_AbsentFieldsStayZero(t *testing.T) {
	rec, err := decodeTaskRecord("t-1", map[string]string{"state": string(StateStarted)})
	require.NoError(t, err)
	assert.Zero(t, rec.Priority)
	assert.True(t, rec.UpdatedAt.IsZero())
}

func TestDecodeTaskRecord_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
	}{
		{"priority", "priority", "high"},
		{"retry count", "retry_count", "x"},
		{"updated at", "updated_at", "yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeTaskRecord("t-1", map[string]string{"state": "done", tt.field: tt.value})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
