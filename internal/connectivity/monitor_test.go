package connectivity_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harborlight/relief-offline/internal/connectivity"
	"github.com/harborlight/relief-offline/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMonitor(initial bool) *connectivity.Monitor {
	return connectivity.NewMonitor(initial, discardLogger(), observability.NewMetricsForTesting())
}

func TestInitialState(t *testing.T) {
	assert.True(t, newTestMonitor(true).Online())
	assert.False(t, newTestMonitor(false).Online())
}

func TestSetChangesState(t *testing.T) {
	m := newTestMonitor(true)

	m.Set(false)
	assert.False(t, m.Online())

	m.Set(true)
	assert.True(t, m.Online())
}

func TestSubscribersFireOnTransitionsOnly(t *testing.T) {
	m := newTestMonitor(true)

	var seen []bool
	m.Subscribe(func(online bool) { seen = append(seen, online) })

	m.Set(true) // already online, no transition
	assert.Empty(t, seen)

	m.Set(false)
	m.Set(false) // repeated report, no transition
	m.Set(true)

	assert.Equal(t, []bool{false, true}, seen)
}

func TestSubscribersRunInRegistrationOrder(t *testing.T) {
	m := newTestMonitor(false)

	var order []int
	m.Subscribe(func(bool) { order = append(order, 1) })
	m.Subscribe(func(bool) { order = append(order, 2) })
	m.Subscribe(func(bool) { order = append(order, 3) })

	m.Set(true)

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestSubscriberSeesUpdatedState(t *testing.T) {
	m := newTestMonitor(false)

	var stateDuringCallback bool
	m.Subscribe(func(bool) { stateDuringCallback = m.Online() })

	m.Set(true)

	assert.True(t, stateDuringCallback)
}
