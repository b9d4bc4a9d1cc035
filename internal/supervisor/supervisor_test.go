package supervisor

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type countingProbe struct {
	calls int32
}

func (p *countingProbe) ProbeSignal(_ context.Context) {
	atomic.AddInt32(&p.calls, 1)
}

type panickingProbe struct{}

func (panickingProbe) ProbeSignal(_ context.Context) {
	panic("boom")
}

func TestSupervisor_TickProbesEveryWorker(t *testing.T) {
	a, b := &countingProbe{}, &countingProbe{}
	sup := New(DefaultInterval, func() []Probeable { return []Probeable{a, b} }, testLogger())

	sup.Tick(context.Background())

	assert.EqualValues(t, 1, a.calls)
	assert.EqualValues(t, 1, b.calls)
}

func TestSupervisor_TickSurvivesAPanickingWorker(t *testing.T) {
	ok := &countingProbe{}
	sup := New(DefaultInterval, func() []Probeable { return []Probeable{panickingProbe{}, ok} }, testLogger())

	assert.NotPanics(t, func() { sup.Tick(context.Background()) })
	assert.EqualValues(t, 1, ok.calls)
}

func TestSupervisor_IntervalClampedToBounds(t *testing.T) {
	sup := New(time.Millisecond, func() []Probeable { return nil }, testLogger())
	assert.Equal(t, MinInterval, sup.interval)

	sup = New(time.Hour, func() []Probeable { return nil }, testLogger())
	assert.Equal(t, MaxInterval, sup.interval)
}

func TestSupervisor_StartIsIdempotentAndStoppable(t *testing.T) {
	probe := countingProbe{}
	sup := New(MinInterval, func() []Probeable { return []Probeable{&probe} }, testLogger())

	sup.Start(context.Background())
	sup.Start(context.Background()) // no-op, doesn't spawn a second loop

	sup.Stop()
	sup.Stop() // no-op

	assert.False(t, sup.running)
}
