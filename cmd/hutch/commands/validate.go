package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openhutch/openhutch/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the cluster file",
		Long: `Parse and validate the cluster file without provisioning anything.
Reports the declared containers and host stages on success.`,
		Example: `  hutch validate -c cluster.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := config.Load(clusterFile)
			if err != nil {
				return err
			}

			fmt.Printf("%s is valid: %d host stages, %d containers\n",
				clusterFile, len(spec.HostStages), len(spec.Containers))
			for _, ct := range spec.Containers {
				fmt.Printf("  %s (%s): %d cores, %d MB, gpus %v\n",
					ct.ID, ct.Name, ct.Cores, ct.MemoryMB, ct.GPUs)
			}
			return nil
		},
	}

	return cmd
}
