package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	a := Adapt(zerolog.New(&buf))

	a.Info("reminder sent", "booking_id", int64(7), "error", errors.New("boom"), "dangling")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "reminder sent", line["message"])
	assert.Equal(t, float64(7), line["booking_id"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "dangling", line["extra"])
}

func TestAdapter_DebugRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	a := Adapt(zerolog.New(&buf).Level(zerolog.InfoLevel))

	a.Debug("hidden")
	assert.Empty(t, buf.String())

	a.Error("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_Level(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			l := New(&bytes.Buffer{}, tt.in)
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}
}
