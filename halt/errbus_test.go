package halt

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_HaltAndReset(t *testing.T) {
	b := NewBus(10, zerolog.Nop())
	halted, _ := b.IsHalted()
	assert.False(t, halted)

	now := time.Now()
	b.Halt("broker auth expired", "broker", now)
	halted, state := b.IsHalted()
	require.True(t, halted)
	assert.Equal(t, "broker auth expired", state.Reason)

	b.Reset()
	halted, _ = b.IsHalted()
	assert.False(t, halted)
}

func TestBus_ReportAuthFailureSetsHalt(t *testing.T) {
	b := NewBus(10, zerolog.Nop())
	b.ReportAuthFailure("broker", "session expired", time.Now())
	halted, _ := b.IsHalted()
	assert.True(t, halted)

	recent := b.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, KindBrokerAuth, recent[0].Kind)
}

func TestBus_RecentIsBounded(t *testing.T) {
	b := NewBus(3, zerolog.Nop())
	for i := 0; i < 5; i++ {
		b.Report(Event{Kind: KindInternal, Code: "X"})
	}
	assert.Len(t, b.Recent(), 3)
}
