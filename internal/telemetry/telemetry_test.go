package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReader(t *testing.T) {
	tests := []struct {
		name       string
		wantReader bool
		wantErr    bool
	}{
		{"stdout", true, false},
		{"none", false, false},
		{"", false, false},
		{"prometheus", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(tt.name, &bytes.Buffer{}, time.Minute)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantReader, r != nil)
		})
	}
}

func TestNew_NoneIsNoop(t *testing.T) {
	p, err := New(context.Background(), "none", nil, time.Minute, "test")
	require.NoError(t, err)
	require.NotNil(t, p.Meter())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_StdoutFlushesOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(context.Background(), "stdout", &buf, time.Hour, "1.0.0")
	require.NoError(t, err)

	counter, err := p.Meter().Int64Counter("imageview.requests.issued")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	require.NoError(t, p.Shutdown(context.Background()))

	out := buf.String()
	assert.True(t, strings.Contains(out, "imageview.requests.issued"), "exported metrics: %s", out)
	assert.True(t, strings.Contains(out, ServiceName))
}
