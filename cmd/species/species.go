// Package species searches and registers species on the backend.
package species

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sensorhub/annotator/internal/app"
	"github.com/sensorhub/annotator/internal/buildinfo"
	"github.com/sensorhub/annotator/internal/conf"
	"github.com/sensorhub/annotator/internal/logger"
)

// Command returns the species command group.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "species",
		Short: "Search and add species",
	}

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search species by scientific or common name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(settings, build, logger.Global().Module("app"))
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.Species.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCOMMON NAME")
			for _, sp := range results {
				fmt.Fprintf(w, "%s\t%s\n", sp.Name, sp.CommonName)
			}
			return w.Flush()
		},
	}

	var commonName string
	add := &cobra.Command{
		Use:   "add <scientific name>",
		Short: "Register a species unless the backend already knows it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(settings, build, logger.Global().Module("app"))
			if err != nil {
				return err
			}
			defer a.Close()

			sp, err := a.Species.Resolve(cmd.Context(), strings.Join(args, " "), commonName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", sp.Name, sp.CommonName)
			return nil
		},
	}
	add.Flags().StringVar(&commonName, "common", "", "Common name")

	cmd.AddCommand(search, add)
	return cmd
}
