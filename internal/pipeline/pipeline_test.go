package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) StepStarted(ctx context.Context, pipeline, step string) (context.Context, func(error)) {
	m.Called(pipeline, step)
	return ctx, func(err error) {
		m.MethodCalled("StepFinished", pipeline, step, err)
	}
}

func recordingStep(name string, policy Policy, ran *[]string, err error) Step {
	return Step{
		Name:   name,
		Policy: policy,
		Run: func(ctx context.Context) error {
			*ran = append(*ran, name)
			return err
		},
	}
}

func TestPipelineRun(t *testing.T) {
	t.Run("runs every step in order", func(t *testing.T) {
		var ran []string
		p := New("deploy",
			recordingStep("a", FailFast, &ran, nil),
			recordingStep("b", FailFast, &ran, nil),
			recordingStep("c", FailFast, &ran, nil),
		)

		report, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, ran)
		assert.Equal(t, StateDone, report.State)
		assert.Equal(t, []string{"a", "b", "c"}, report.Completed)
		assert.NotEmpty(t, report.RunID)
	})

	t.Run("fail fast aborts remaining steps", func(t *testing.T) {
		var ran []string
		boom := errors.New("boom")
		p := New("deploy",
			recordingStep("a", FailFast, &ran, nil),
			recordingStep("b", FailFast, &ran, boom),
			recordingStep("c", FailFast, &ran, nil),
		)

		report, err := p.Run(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)

		var stepErr *StepError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, "b", stepErr.Step)
		assert.Equal(t, 1, stepErr.Index)
		assert.Contains(t, err.Error(), "step 2 (b) failed")

		assert.Equal(t, []string{"a", "b"}, ran)
		assert.Equal(t, StateAborted, report.State)
		assert.Equal(t, "b", report.FailedAt)
	})

	t.Run("tolerated failure continues", func(t *testing.T) {
		var ran []string
		p := New("ci",
			recordingStep("a", Tolerate, &ran, errors.New("exists")),
			recordingStep("b", FailFast, &ran, nil),
		)

		report, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ran)
		assert.Equal(t, []string{"a"}, report.Tolerated)
		assert.Equal(t, []string{"b"}, report.Completed)
	})

	t.Run("cancelled context stops before next step", func(t *testing.T) {
		var ran []string
		ctx, cancel := context.WithCancel(context.Background())
		p := New("deploy",
			Step{Name: "a", Run: func(context.Context) error { ran = append(ran, "a"); cancel(); return nil }},
			recordingStep("b", Tolerate, &ran, nil),
		)

		report, err := p.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, []string{"a"}, ran)
		assert.Equal(t, "b", report.FailedAt)
	})
}

func TestPipelineSelect(t *testing.T) {
	var ran []string
	p := New("deploy",
		recordingStep("fetch-source", FailFast, &ran, nil),
		recordingStep("manage", FailFast, &ran, nil),
		recordingStep("nginx", FailFast, &ran, nil),
	)

	sub, err := p.Select([]string{"nginx", "fetch-source"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch-source", "nginx"}, sub.Names())

	_, err = sub.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch-source", "nginx"}, ran)

	same, err := p.Select(nil)
	require.NoError(t, err)
	assert.Same(t, p, same)

	_, err = p.Select([]string{"bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown deploy steps: bogus")
}

func TestPipelineObserver(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	obs := &MockObserver{}
	obs.On("StepStarted", "deploy", "a").Once()
	obs.On("StepFinished", "deploy", "a", nil).Once()
	obs.On("StepStarted", "deploy", "b").Once()
	obs.On("StepFinished", "deploy", "b", boom).Once()

	p := New("deploy",
		recordingStep("a", FailFast, &ran, nil),
		recordingStep("b", Tolerate, &ran, boom),
	).WithObserver(obs)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	obs.AssertExpectations(t)
}
