package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/openhutch/openhutch/pkg/config"
	"github.com/openhutch/openhutch/pkg/devices"
	"github.com/openhutch/openhutch/pkg/engine"
	"github.com/openhutch/openhutch/pkg/lxc"
	"github.com/openhutch/openhutch/pkg/markers"
	"github.com/openhutch/openhutch/pkg/provision"
	"github.com/openhutch/openhutch/pkg/telemetry"
)

// appRuntime bundles everything a provisioning command needs, assembled from
// one loaded cluster file.
type appRuntime struct {
	spec      *config.ClusterSpec
	logger    zerolog.Logger
	metrics   *telemetry.Metrics
	tracer    *telemetry.Tracer
	store     *markers.SQLiteStore
	lifecycle *lxc.PctClient
	builder   *provision.Builder
	orch      *engine.Orchestrator
}

// newAppRuntime loads the cluster file and wires the full stack: telemetry,
// marker store, container control plane, device planner, pipeline builder and
// orchestrator.
func newAppRuntime(ctx context.Context, version string) (*appRuntime, error) {
	spec, err := config.Load(clusterFile)
	if err != nil {
		return nil, err
	}

	logCfg := spec.Telemetry.Logging
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := telemetry.NewLogger(logCfg)
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewMetrics(spec.Telemetry.Metrics)
	if err != nil {
		return nil, err
	}
	tracer, err := telemetry.NewTracer(spec.Telemetry.Tracing, version)
	if err != nil {
		return nil, err
	}

	lifecycle := lxc.NewPctClient(lxc.PctOptions{}, logger)
	if err := lifecycle.CheckAvailable(); err != nil {
		return nil, err
	}

	store, err := markers.Open(ctx, spec.MarkerRoot)
	if err != nil {
		return nil, err
	}

	locks, err := engine.NewLockDir(filepath.Join(spec.MarkerRoot, "locks"))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	planner := devices.NewPlanner(devices.NewHostInventory(), logger)
	builder := provision.NewBuilder(lifecycle, planner, lxc.ExecRunner{}, metrics, logger)
	rollback := engine.NewContainerRollback(lifecycle, store, logger)

	orch, err := engine.NewOrchestrator(engine.OrchestratorOptions{
		Markers:  store,
		Rollback: rollback,
		Locks:    locks,
		Policy:   spec.Retry.Policy(),
		Metrics:  metrics,
		Tracer:   tracer.Tracer(),
		Logger:   logger,
		Owner:    markerOwner(),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &appRuntime{
		spec:      spec,
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
		store:     store,
		lifecycle: lifecycle,
		builder:   builder,
		orch:      orch,
	}, nil
}

// Close flushes telemetry and closes the marker store.
func (r *appRuntime) Close(ctx context.Context) {
	if err := r.tracer.Shutdown(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Tracer shutdown failed")
	}
	if err := r.store.Close(); err != nil {
		r.logger.Warn().Err(err).Msg("Marker store close failed")
	}
}

// markerOwner identifies this invocation in recorded markers, e.g. "root@pve1".
func markerOwner() string {
	user := os.Getenv("USER")
	if user == "" {
		user = "root"
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return fmt.Sprintf("%s@%s", user, host)
}
