package service

import (
	"context"
	"errors"
	"testing"

	"github.com/postwatch/postwatch/internal/pipeline"

	"go.uber.org/zap"
)

type fakePoller struct {
	passes int
	err    error
}

func (f *fakePoller) RunPass(ctx context.Context) (pipeline.Summary, error) {
	f.passes++
	return pipeline.Summary{Fetched: 1}, f.err
}

type fakeDeliverer struct {
	drains int
	n      int
	err    error
}

func (f *fakeDeliverer) DrainAll(ctx context.Context) (int, error) {
	f.drains++
	return f.n, f.err
}

func TestPollTick_RunsPass(t *testing.T) {
	p := &fakePoller{}
	r := NewRunner(Config{}, p, &fakeDeliverer{}, zap.NewNop())
	r.pollTick(context.Background())
	if p.passes != 1 {
		t.Fatalf("expected 1 pass, got %d", p.passes)
	}
}

func TestPollTick_PausedSkips(t *testing.T) {
	p := &fakePoller{}
	r := NewRunner(Config{}, p, &fakeDeliverer{}, zap.NewNop())
	r.Pause()
	r.pollTick(context.Background())
	if p.passes != 0 {
		t.Fatalf("expected no passes while paused, got %d", p.passes)
	}
	r.Resume()
	r.pollTick(context.Background())
	if p.passes != 1 {
		t.Fatalf("expected 1 pass after resume, got %d", p.passes)
	}
}

func TestPollTick_CoolingDownIsNotAnError(t *testing.T) {
	p := &fakePoller{err: pipeline.ErrCoolingDown}
	r := NewRunner(Config{}, p, &fakeDeliverer{}, zap.NewNop())
	r.pollTick(context.Background())
	if p.passes != 1 {
		t.Fatalf("expected pass attempted, got %d", p.passes)
	}
}

func TestDeliverTick_Drains(t *testing.T) {
	d := &fakeDeliverer{n: 2}
	r := NewRunner(Config{}, &fakePoller{}, d, zap.NewNop())
	r.deliverTick(context.Background())
	if d.drains != 1 {
		t.Fatalf("expected 1 drain, got %d", d.drains)
	}
}

func TestDeliverTick_PausedSkips(t *testing.T) {
	d := &fakeDeliverer{}
	r := NewRunner(Config{}, &fakePoller{}, d, zap.NewNop())
	r.Pause()
	r.deliverTick(context.Background())
	if d.drains != 0 {
		t.Fatalf("expected no drains while paused, got %d", d.drains)
	}
}

func TestDeliverTick_FailureLogged(t *testing.T) {
	d := &fakeDeliverer{err: errors.New("webhook down")}
	r := NewRunner(Config{}, &fakePoller{}, d, zap.NewNop())
	r.deliverTick(context.Background())
	if d.drains != 1 {
		t.Fatalf("expected drain attempted, got %d", d.drains)
	}
}
