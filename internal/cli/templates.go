package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memebox/memebox/pkg/config"
)

// newTemplatesCmd creates the "templates" command listing the catalog.
func newTemplatesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the template catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			runner, err := buildRunner(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer runner.Close()

			list, err := runner.Templates(cmd.Context())
			if err != nil {
				return err
			}
			sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

			fmt.Println(StyleTitle.Render(fmt.Sprintf("%d templates", len(list))))
			for _, t := range list {
				line := StyleHighlight.Render(t.ID)
				if t.Name != "" {
					line += " " + StyleValue.Render(t.Name)
				}
				detail := fmt.Sprintf("%d boxes", len(t.Boxes))
				if len(t.Aliases) > 0 {
					detail += " · aka " + strings.Join(t.Aliases, ", ")
				}
				fmt.Println("  " + line)
				printDetail(detail)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")

	return cmd
}
