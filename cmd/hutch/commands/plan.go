package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openhutch/openhutch/pkg/config"
	"github.com/openhutch/openhutch/pkg/devices"
)

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the device passthrough plan per container",
		Long: `Compute and print the passthrough plan for every declared container
without touching any configuration. Shows the cgroup allow rules and
bind mounts that a provisioning run would apply.`,
		Example: `  hutch plan -c cluster.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := config.Load(clusterFile)
			if err != nil {
				return err
			}

			planner := devices.NewPlanner(devices.NewHostInventory(), zerolog.Nop())
			for _, ct := range spec.Containers {
				plan, err := planner.Build(ct.GPUs)
				if err != nil {
					return err
				}
				fmt.Printf("container %s (gpus %v)\n", ct.ID, ct.GPUs)
				if plan.Empty() {
					fmt.Println("  no passthrough")
					continue
				}
				for _, rule := range plan.Rules {
					fmt.Printf("  allow  %s\n", rule)
				}
				for _, m := range plan.Mounts {
					fmt.Printf("  mount  %s -> %s (c %d:%d)\n",
						m.HostPath, m.ContainerPath, m.Major, m.Minor)
				}
			}
			return nil
		},
	}

	return cmd
}
