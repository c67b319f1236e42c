package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openhutch/openhutch/pkg/config"
	"github.com/openhutch/openhutch/pkg/markers"
)

func newMarkersCommand() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "markers",
		Short: "List recorded provisioning markers",
		Long: `List the markers recorded in the cluster's marker store. Each marker
records one completed stage: host stages under host/, container stages
under ct/<id>/.`,
		Example: `  # All markers
  hutch markers -c cluster.yaml

  # One container's markers
  hutch markers -c cluster.yaml --prefix ct/901/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := config.Load(clusterFile)
			if err != nil {
				return err
			}

			store, err := markers.Open(cmd.Context(), spec.MarkerRoot)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no markers recorded")
				return nil
			}
			for _, r := range records {
				fmt.Printf("%-32s %-24s %s\n", r.Key, r.Owner, r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "only list markers with this key prefix")

	return cmd
}
