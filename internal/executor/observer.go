package executor

import (
	"context"

	"github.com/vk/wavegrid/internal/plan"
)

// Event describes a run transition.
type Event struct {
	ExecutionID string
	Workflow    string
	Wave        int
	Required    bool
	Run         plan.RunSnapshot
}

// Observer is notified when a run starts and when it reaches a terminal
// state. Skipped runs only produce RunFinished. Observers are called from the
// goroutine owning the run and must be safe for concurrent use.
type Observer interface {
	RunStarted(ctx context.Context, ev Event)
	RunFinished(ctx context.Context, ev Event)
}

// ObserverFuncs adapts plain functions to the Observer interface. Nil fields
// are ignored.
type ObserverFuncs struct {
	OnStarted  func(ctx context.Context, ev Event)
	OnFinished func(ctx context.Context, ev Event)
}

func (o ObserverFuncs) RunStarted(ctx context.Context, ev Event) {
	if o.OnStarted != nil {
		o.OnStarted(ctx, ev)
	}
}

func (o ObserverFuncs) RunFinished(ctx context.Context, ev Event) {
	if o.OnFinished != nil {
		o.OnFinished(ctx, ev)
	}
}
