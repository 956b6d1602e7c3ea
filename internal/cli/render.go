package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memebox/memebox/pkg/config"
	"github.com/memebox/memebox/pkg/meme"
	"github.com/memebox/memebox/pkg/pipeline"
	"github.com/memebox/memebox/pkg/raster"
	"github.com/memebox/memebox/pkg/texts"
)

// newRenderCmd creates the "render" command producing a single image
// file.
func newRenderCmd() *cobra.Command {
	var (
		configPath string
		output     string
		formatName string
		watermark  string
		fontFamily string
		textColor  string
		fresh      bool
	)

	cmd := &cobra.Command{
		Use:   "render <template> [text...]",
		Short: "Render one meme to a local file",
		Long: `Render produces a single meme image without starting the server.

Each text argument fills one template box in order. Plain text is
accepted; it is encoded the same way the HTTP API encodes it, so
"not sure if" and "not_sure_if" render identically.

Examples:
  memebox render fry "not sure if" "worth the risk"
  memebox render fry not_sure_if worth_the_risk -f gif -o fry.gif`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())

			format, err := raster.ParseFormat(formatName)
			if err != nil {
				return err
			}

			style := meme.TextStyle{Family: fontFamily, Color: textColor}
			if err := style.Validate(); err != nil {
				return err
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			runner, err := buildRunner(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer runner.Close()

			// Arguments may be plain or already URL-encoded; a decode
			// round-trip canonicalizes both spellings.
			lines := make([]string, 0, len(args)-1)
			for _, arg := range args[1:] {
				if strings.ContainsAny(arg, " \"") {
					lines = append(lines, arg)
					continue
				}
				decoded, err := texts.Decode(arg)
				if err != nil {
					return err
				}
				lines = append(lines, decoded)
			}

			p := newProgress(logger)
			result, err := runner.Render(cmd.Context(), &pipeline.Request{
				TemplateID: args[0],
				Texts:      lines,
				Style:      style,
				Format:     format,
				Watermark:  watermark,
				SkipCache:  fresh,
			})
			if err != nil {
				return err
			}
			p.done("Render complete")

			path := output
			if path == "" {
				path = args[0] + "." + format.Ext()
			}
			if err := os.WriteFile(path, result.Bytes, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			printSuccess("Rendered %s (%d bytes)", args[0], len(result.Bytes))
			printFile(path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <template>.<ext>)")
	cmd.Flags().StringVarP(&formatName, "format", "f", "png", "output format: png, jpg, gif")
	cmd.Flags().StringVarP(&watermark, "watermark", "w", "", "watermark text")
	cmd.Flags().StringVar(&fontFamily, "font", "", "font family override")
	cmd.Flags().StringVar(&textColor, "color", "", "text color override, e.g. #ff0000")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "bypass the render cache")

	return cmd
}
