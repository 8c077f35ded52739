package retention

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPurgeIsSingleFlight(t *testing.T) {
	s := NewSweeper(nil, slog.Default(), 12)
	s.running.Store(true)

	_, err := s.Purge(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrSweepInProgress)
	assert.True(t, s.running.Load(), "a rejected sweep leaves the running flag alone")
}
