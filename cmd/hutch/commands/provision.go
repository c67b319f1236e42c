package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/openhutch/openhutch/pkg/config"
	"github.com/openhutch/openhutch/pkg/engine"
)

func newProvisionCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision the declared containers",
		Long: `Run the full provisioning pipeline against the cluster file.

Host stages run first; any host failure aborts the run. Each container then
runs its stage pipeline (create, passthrough, runtime, service, health).
Completed stages are tracked by markers and skipped on re-runs, so the
command is safe to repeat after fixing a failure.`,
		Example: `  # One provisioning run
  hutch provision -c cluster.yaml

  # Keep running, re-provisioning on cluster file changes
  hutch provision -c cluster.yaml --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newAppRuntime(ctx, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(ctx))

			if addr := rt.spec.Telemetry.Metrics.ListenAddr; addr != "" {
				if handler := rt.metrics.Handler(); handler != nil {
					mux := http.NewServeMux()
					mux.Handle("/metrics", handler)
					go func() {
						if err := http.ListenAndServe(addr, mux); err != nil {
							rt.logger.Warn().Err(err).Msg("Metrics listener stopped")
						}
					}()
				}
			}

			if err := runOnce(ctx, rt, rt.spec); err != nil {
				if !watch {
					return err
				}
				rt.logger.Error().Err(err).Msg("Provisioning run failed, watching for changes")
			}
			if !watch {
				return nil
			}

			specs := make(chan *config.ClusterSpec, 1)
			watcher, err := config.NewWatcher(clusterFile, func(spec *config.ClusterSpec) {
				select {
				case specs <- spec:
				default:
				}
			}, rt.logger)
			if err != nil {
				return err
			}

			go func() {
				if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
					rt.logger.Error().Err(err).Msg("Cluster file watcher stopped")
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case spec := <-specs:
					if err := runOnce(ctx, rt, spec); err != nil {
						rt.logger.Error().Err(err).Msg("Provisioning run failed, watching for changes")
					}
				}
			}
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "re-provision when the cluster file changes")

	return cmd
}

// runOnce executes one full provisioning run and reports the outcome. A run
// that leaves any container failed is an error so the exit code reflects it.
func runOnce(ctx context.Context, rt *appRuntime, spec *config.ClusterSpec) error {
	report, err := rt.orch.Run(ctx, rt.builder.HostStages(spec), rt.builder.Pipelines(spec))
	if err != nil {
		return err
	}

	printReport(report)
	if !report.Ok() {
		return fmt.Errorf("%d of %d containers failed",
			report.Summary.Failed, report.Summary.Containers)
	}
	return nil
}

// printReport writes a human-readable run summary to stdout.
func printReport(report *engine.RunReport) {
	fmt.Printf("Run %s finished in %s\n",
		report.RunID, report.CompletedAt.Sub(report.StartedAt).Round(time.Millisecond))
	for _, ct := range report.Containers {
		status := "ok"
		if !ct.Succeeded() {
			status = "FAILED"
			if ct.RolledBack {
				status = "FAILED (rolled back)"
			}
		}
		fmt.Printf("  container %-6s %s\n", ct.ContainerID, status)
		for _, st := range ct.Stages {
			fmt.Printf("    %-12s %-9s attempts=%d\n", st.StageID, st.Status, st.Attempts)
		}
	}
	fmt.Printf("Summary: %d succeeded, %d failed\n",
		report.Summary.Succeeded, report.Summary.Failed)
}
