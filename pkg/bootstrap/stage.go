package bootstrap

import (
	"context"
	"time"
)

// Stage is one step of the bootstrap sequence.
type Stage interface {
	Name() string
	Run(ctx context.Context) Result
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context) Result
}

func (s StageFunc) Name() string { return s.StageName }

func (s StageFunc) Run(ctx context.Context) Result { return s.Fn(ctx) }

// NewStage returns a Stage named name that runs fn.
func NewStage(name string, fn func(ctx context.Context) Result) Stage {
	return StageFunc{StageName: name, Fn: fn}
}

// Observer receives one call per finished stage. Implementations must not
// block; a nil Observer is allowed everywhere.
type Observer interface {
	StageFinished(stage string, kind Kind, duration time.Duration)
}
