package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/theblitlabs/parity-provision/pkg/logger"
)

// Policy decides what a step failure does to the rest of the pipeline.
type Policy int

const (
	// FailFast aborts the remaining steps. Completed steps are not undone.
	FailFast Policy = iota
	// Tolerate logs the failure and moves on.
	Tolerate
)

func (p Policy) String() string {
	if p == Tolerate {
		return "tolerate"
	}
	return "fail-fast"
}

type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateDone       State = "done"
	StateAborted    State = "aborted"
)

// Step is one named unit of a pipeline.
type Step struct {
	Name        string
	Description string
	Policy      Policy
	Run         func(ctx context.Context) error
}

// Observer is notified around every step.
type Observer interface {
	StepStarted(ctx context.Context, pipeline, step string) (context.Context, func(err error))
}

// StepError reports the step a pipeline aborted at.
type StepError struct {
	Pipeline string
	Step     string
	Index    int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %d (%s) failed: %v", e.Pipeline, e.Index+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Report describes one run.
type Report struct {
	RunID     string
	State     State
	Completed []string
	Tolerated []string
	FailedAt  string
	Duration  time.Duration
}

type Pipeline struct {
	Name      string
	steps     []Step
	observers []Observer
}

func New(name string, steps ...Step) *Pipeline {
	return &Pipeline{Name: name, steps: steps}
}

// WithObserver registers o for every subsequent Run.
func (p *Pipeline) WithObserver(o Observer) *Pipeline {
	if o != nil {
		p.observers = append(p.observers, o)
	}
	return p
}

func (p *Pipeline) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

func (p *Pipeline) Names() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name
	}
	return names
}

// Select returns a pipeline holding only the named steps, in pipeline order.
// An empty selection returns p unchanged.
func (p *Pipeline) Select(names []string) (*Pipeline, error) {
	if len(names) == 0 {
		return p, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}

	sub := &Pipeline{Name: p.Name, observers: p.observers}
	for _, s := range p.steps {
		if want[s.Name] {
			sub.steps = append(sub.steps, s)
			delete(want, s.Name)
		}
	}

	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for n := range want {
			unknown = append(unknown, n)
		}
		return nil, fmt.Errorf("unknown %s steps: %s (have %s)",
			p.Name, strings.Join(unknown, ", "), strings.Join(p.Names(), ", "))
	}
	return sub, nil
}

// Run executes the steps in order.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), State: StateRunning}
	log := logger.WithComponent(p.Name).With().Str("run_id", report.RunID).Logger()
	start := time.Now()

	log.Info().Int("steps", len(p.steps)).Msg("Starting pipeline")

	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			report.State = StateAborted
			report.FailedAt = step.Name
			report.Duration = time.Since(start)
			return report, &StepError{Pipeline: p.Name, Step: step.Name, Index: i, Err: err}
		}

		stepLog := log.With().Str("step", step.Name).Int("index", i+1).Logger()
		stepLog.Info().Str("policy", step.Policy.String()).Msg("Running step")

		err := p.runStep(ctx, step)
		switch {
		case err == nil:
			report.Completed = append(report.Completed, step.Name)
		case step.Policy == Tolerate && !errors.Is(err, context.Canceled):
			stepLog.Warn().Err(err).Msg("Step failed, continuing")
			report.Tolerated = append(report.Tolerated, step.Name)
		default:
			stepLog.Error().Err(err).Msg("Step failed, aborting pipeline")
			report.State = StateAborted
			report.FailedAt = step.Name
			report.Duration = time.Since(start)
			return report, &StepError{Pipeline: p.Name, Step: step.Name, Index: i, Err: err}
		}
	}

	report.State = StateDone
	report.Duration = time.Since(start)
	log.Info().
		Dur("duration", report.Duration).
		Int("completed", len(report.Completed)).
		Int("tolerated", len(report.Tolerated)).
		Msg("Pipeline finished")
	return report, nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step) error {
	finishers := make([]func(error), 0, len(p.observers))
	for _, o := range p.observers {
		var finish func(error)
		ctx, finish = o.StepStarted(ctx, p.Name, step.Name)
		finishers = append(finishers, finish)
	}

	err := step.Run(ctx)

	for i := len(finishers) - 1; i >= 0; i-- {
		finishers[i](err)
	}
	return err
}
