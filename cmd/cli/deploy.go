package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/theblitlabs/parity-provision/internal/core/models"
	"github.com/theblitlabs/parity-provision/internal/pipeline"
	"github.com/theblitlabs/parity-provision/internal/telemetry"
	"github.com/theblitlabs/parity-provision/internal/utils/contextutil"
	"github.com/theblitlabs/parity-provision/internal/utils/errorutil"
)

type pipelineFlags struct {
	only []string
	list bool
}

func readPipelineFlags(cmd *cobra.Command) pipelineFlags {
	only, _ := cmd.Flags().GetStringSlice("only")
	list, _ := cmd.Flags().GetBool("list")
	return pipelineFlags{only: only, list: list}
}

// RunDeploy runs the deployment pipeline against --env.
func RunDeploy(cmd *cobra.Command, args []string) error {
	flags := readPipelineFlags(cmd)
	return runPipeline(cmd, "", flags, func(s *session) (*pipeline.Pipeline, error) {
		return s.prov.Deployer().Pipeline()
	})
}

// RunCIBootstrap runs the CI server pipeline. It always targets ci.
func RunCIBootstrap(cmd *cobra.Command, args []string) error {
	flags := readPipelineFlags(cmd)
	return runPipeline(cmd, string(models.EnvironmentCI), flags, func(s *session) (*pipeline.Pipeline, error) {
		return s.prov.CI().Pipeline(), nil
	})
}

func runPipeline(cmd *cobra.Command, env string, flags pipelineFlags, build func(*session) (*pipeline.Pipeline, error)) error {
	ctx := cmd.Context()

	s, err := openSession(ctx, env, flags.list)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := build(s)
	if err != nil {
		return err
	}
	if flags.list {
		return printSteps(cmd, p)
	}
	if p, err = p.Select(flags.only); err != nil {
		return err
	}

	shutdown, err := telemetry.InitTelemetry(ctx, s.cfg.Telemetry)
	if err != nil {
		return errorutil.WrapError(err, "failed to initialise telemetry")
	}
	defer func() {
		flushCtx, cancel := contextutil.WithShortTimeout(ctx)
		defer cancel()
		errorutil.HandleError(s.log, shutdown(flushCtx), "Failed to flush traces")
	}()

	metrics := telemetry.NewStepMetrics()
	p.WithObserver(metrics).WithObserver(telemetry.NewTracer(s.target.Env.String()))

	s.log.Info().Str("pipeline", p.Name).Str("target", describeTarget(s.target)).Strs("steps", p.Names()).Msg("Starting")
	report, runErr := p.Run(ctx)

	pushMetrics(ctx, s, metrics)

	if runErr != nil {
		errorutil.HandleContextError(s.log, ctx, runErr, "Interrupted", "Pipeline aborted")
		return runErr
	}
	s.log.Info().
		Str("run_id", report.RunID).
		Int("completed", len(report.Completed)).
		Strs("tolerated", report.Tolerated).
		Dur("duration", report.Duration).
		Msg("Pipeline finished")
	return nil
}

func pushMetrics(ctx context.Context, s *session, metrics *telemetry.StepMetrics) {
	if s.cfg.Metrics.PushgatewayURL == "" || Global.DryRun {
		return
	}
	pushCtx, cancel := contextutil.WithShortTimeout(ctx)
	defer cancel()
	if err := metrics.Push(pushCtx, s.cfg.Metrics.PushgatewayURL, s.target.Env.String()); err != nil {
		s.log.Warn().Err(err).Msg("Failed to push step metrics")
	}
}

func printSteps(cmd *cobra.Command, p *pipeline.Pipeline) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for i, step := range p.Steps() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, step.Name, step.Policy, step.Description)
	}
	return w.Flush()
}
