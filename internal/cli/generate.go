package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/safetydesk/causemap/pkg/generate"
	"github.com/safetydesk/causemap/pkg/pipeline"
	"github.com/safetydesk/causemap/pkg/render"
)

// generateOpts holds the command-line flags for the generate command.
type generateOpts struct {
	level    int    // analysis level 1-5
	output   string // output base path; timestamped name when empty
	detailed bool   // include node keys and categories in labels
	noCache  bool   // disable the artifact cache
	refresh  bool   // ignore cached artifacts
	title    string // title for the printable HTML report
}

// generateCommand creates the generate command.
//
// It runs the full pipeline: the description and level produce a causal
// tree, which is rendered to the requested formats and written next to the
// working directory.
func (c *CLI) generateCommand() *cobra.Command {
	var formatsStr string
	opts := generateOpts{level: generate.DefaultLevel}

	cmd := &cobra.Command{
		Use:   "generate <description>",
		Short: "Generate a causal diagram from an incident description",
		Long: `Generate builds a cause-and-effect tree from a free-text incident
description. The analysis level (1-5) controls how deep the generated
tree goes: level 1 is a quick scan, level 5 a full root cause analysis.`,
		Example: `  causemap generate "Worker slipped on wet floor near loading dock"
  causemap generate --level 5 --format svg,pdf "Forklift reversed into racking"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGenerate(cmd, args[0], formatsStr, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.level, "level", "l", opts.level, "analysis level (1-5)")
	cmd.Flags().StringVarP(&formatsStr, "format", "f", "", "output format(s): svg (default), pdf, png, html, dot, json (comma-separated)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output base path (default: timestamped file per format)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "include node keys and categories in labels")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the artifact cache")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "re-render even if cached")
	cmd.Flags().StringVar(&opts.title, "title", "", "report title (html format)")

	return cmd
}

func (c *CLI) runGenerate(cmd *cobra.Command, description, formatsStr string, opts generateOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	runner, err := c.newRunner(opts.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	title := opts.title
	if title == "" {
		title = generate.Truncate(description)
	}

	pipeOpts := pipeline.Options{
		Description: description,
		Level:       opts.level,
		Formats:     parseFormats(formatsStr),
		Detailed:    opts.detailed,
		Title:       title,
		Refresh:     opts.refresh,
		Logger:      logger,
	}

	prog := newProgress(logger)
	spinner := newSpinnerWithContext(ctx, "Generating diagram...")
	spinner.Start()

	result, err := runner.Execute(ctx, pipeOpts)
	spinner.Stop()
	if spinner.Cancelled() {
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Generated %d causes", result.Stats.NodeCount))

	printSuccess("Diagram for %q", generate.Truncate(description))
	printStats(result.Stats.NodeCount, result.Stats.MaxDepth, result.CacheInfo.RenderHit)

	now := time.Now()
	for _, format := range pipeOpts.Formats {
		path := opts.output
		if path == "" {
			path = render.ExportFilename(format, now)
		} else {
			path = fmt.Sprintf("%s.%s", opts.output, format)
		}
		if err := os.WriteFile(path, result.Artifacts[format], 0644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		printFile(path)
	}
	return nil
}
