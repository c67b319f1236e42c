package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openhutch/openhutch/pkg/markers"
)

func newTeardownCommand() *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Destroy the declared containers and revoke their markers",
		Long: `Stop and destroy every declared container and revoke its markers so a
future provision run rebuilds it from scratch. Host markers are kept
unless --purge removes the entire marker store.`,
		Example: `  # Tear down the declared containers
  hutch teardown -c cluster.yaml

  # Also remove the marker store, including host markers
  hutch teardown -c cluster.yaml --purge`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newAppRuntime(ctx, cmd.Root().Version)
			if err != nil {
				return err
			}

			for _, ct := range rt.spec.Containers {
				logger := rt.logger.With().Str("container", ct.ID).Logger()
				if err := rt.lifecycle.Stop(ctx, ct.ID); err != nil {
					logger.Warn().Err(err).Msg("Teardown stop failed")
				}
				if err := rt.lifecycle.Destroy(ctx, ct.ID); err != nil {
					logger.Warn().Err(err).Msg("Teardown destroy failed")
				}
				revoked, err := rt.store.RevokeByPrefix(ctx, markers.ContainerPrefix(ct.ID))
				if err != nil {
					rt.Close(ctx)
					return err
				}
				fmt.Printf("container %s destroyed, %d markers revoked\n", ct.ID, revoked)
			}

			if purge {
				if err := rt.store.Teardown(); err != nil {
					return err
				}
				fmt.Println("marker store removed")
				if err := rt.tracer.Shutdown(ctx); err != nil {
					rt.logger.Warn().Err(err).Msg("Tracer shutdown failed")
				}
				return nil
			}

			rt.Close(ctx)
			return nil
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "remove the entire marker store, including host markers")

	return cmd
}
