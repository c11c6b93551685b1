package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"cgmatch/internal/config"
	"cgmatch/internal/imageio"
	"cgmatch/internal/match"
	"cgmatch/internal/raster"
	"cgmatch/internal/scan"
	"cgmatch/internal/storage"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, store *storage.Store) *cobra.Command {
	root := NewRoot(cfg, log, store)

	rootCmd := &cobra.Command{
		Use:   "cgmatch",
		Short: "cgmatch pairs CG base images with their overlay diffs",
		Long: `cgmatch scans visual-novel style CG sets, pairs each diff layer with its
background image, strips the diff's backdrop fill and composes the aligned
result.`,
	}

	rootCmd.AddCommand(newProcessCmd(root))
	rootCmd.AddCommand(newScanCmd(root))
	rootCmd.AddCommand(newInfoCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newRunsCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

// bindProcessingFlags registers the flags shared by process and watch and
// returns a func that copies them onto the config after parsing.
func bindProcessingFlags(cmd *cobra.Command, root *Root, opts *runOptions) func() error {
	var (
		bgColor   string
		bgMode    string
		tolerance float64
		alignMode string
		minFit    float64
		parallel  int
		recursive bool
	)

	cmd.Flags().StringVar(&opts.mode, "mode", "auto", "pairing mode (auto|rule)")
	cmd.Flags().StringVar(&opts.basePattern, "base", "", "base glob pattern with optional {name} (rule mode)")
	cmd.Flags().StringVar(&opts.diffPattern, "diff", "", "diff glob pattern with optional {name} (rule mode)")
	cmd.Flags().StringVar(&opts.skipGlob, "skip", "", "skip diffs whose filename matches this glob")
	cmd.Flags().StringVar(&bgColor, "bg-color", root.cfg.Background.Color, "background color (auto|black|white|#rrggbb)")
	cmd.Flags().StringVar(&bgMode, "bg-mode", root.cfg.Background.Mode, "background match mode (match|norm)")
	cmd.Flags().Float64Var(&tolerance, "tolerance", root.cfg.Background.Tolerance, "background match tolerance (0-255)")
	cmd.Flags().StringVar(&alignMode, "align", root.cfg.Alignment.Mode, "alignment search mode (fast|precise)")
	cmd.Flags().Float64Var(&minFit, "min-fit", root.cfg.Alignment.MinFitPercent, "fail pairs whose fit is below this percentage (0 accepts all)")
	cmd.Flags().IntVar(&parallel, "parallel", root.cfg.Processing.ParallelJobs, "worker count")
	cmd.Flags().BoolVar(&recursive, "recursive", root.cfg.Processing.Recursive, "descend into subdirectories")

	return func() error {
		root.cfg.Background.Color = bgColor
		root.cfg.Background.Mode = bgMode
		root.cfg.Background.Tolerance = tolerance
		root.cfg.Alignment.Mode = alignMode
		root.cfg.Alignment.MinFitPercent = minFit
		root.cfg.Processing.ParallelJobs = parallel
		root.cfg.Processing.Recursive = recursive
		if err := root.cfg.Validate(); err != nil {
			return err
		}
		switch opts.mode {
		case "auto":
		case "rule":
			if opts.basePattern == "" || opts.diffPattern == "" {
				return fmt.Errorf("rule mode requires --base and --diff patterns")
			}
		default:
			return fmt.Errorf("mode must be auto or rule, got %q", opts.mode)
		}
		return nil
	}
}

func newProcessCmd(root *Root) *cobra.Command {
	var (
		opts     runOptions
		jsonPath string
	)

	cmd := &cobra.Command{
		Use:   "process <input_directory> [output_directory]",
		Short: "Pair, align and compose all diffs under a directory",
		Long: `Scan a directory tree, pair each diff with its background image, remove the
diff's backdrop fill, search for the best overlay offset and write composed
PNGs to the output directory.

Examples:
  # Automatic pairing by filename and pixel features
  cgmatch process ./cg ./out

  # Explicit patterns: event01.png is the base of event01_diff3.png
  cgmatch process ./cg ./out --mode rule --base '{name}.png' --diff '{name}_diff*.png'

  # Pixel-exact search with a custom backdrop color
  cgmatch process ./cg ./out --align precise --bg-color '#00ff00' --tolerance 4`,
		Args: cobra.RangeArgs(1, 2),
	}

	apply := bindProcessingFlags(cmd, root, &opts)
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "plan pairs without processing")
	cmd.Flags().StringVar(&jsonPath, "json", "", "write the full report as JSON to this file (- for stdout)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts.input = args[0]
		if len(args) > 1 {
			opts.output = args[1]
		} else {
			opts.output = root.cfg.Paths.DefaultOutput
		}
		if err := apply(); err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		rep, err := root.runOnce(ctx, opts)
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, rep.Summary())

		if jsonPath != "" {
			out := os.Stdout
			if jsonPath != "-" {
				f, err := os.Create(jsonPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if err := rep.WriteJSON(out); err != nil {
				return err
			}
		}

		_, failed, _ := rep.Counts()
		if failed > 0 {
			return fmt.Errorf("%d pairs failed", failed)
		}
		return nil
	}

	return cmd
}

func newScanCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <input_directory>",
		Short: "Show how images would be paired, without processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := scan.Run(args[0], scan.Options{
				Recursive:  root.cfg.Processing.Recursive,
				Thresholds: root.cfg.Classifier,
				Log:        root.log,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "scanned %d images, %d unreadable\n", len(res.Candidates), len(res.Unreadable))
			for _, job := range res.Jobs {
				switch job.Status {
				case match.StatusMatched:
					fmt.Fprintf(os.Stdout, "  matched   %s <- %s (score %.2f)\n", job.BasePath, job.DiffPath, job.Score)
				case match.StatusAmbiguous:
					fmt.Fprintf(os.Stdout, "  ambiguous %s: %s\n", job.DiffPath, job.Reason)
				case match.StatusUnmatched:
					fmt.Fprintf(os.Stdout, "  unmatched %s: %s\n", job.DiffPath, job.Reason)
				}
			}
			return nil
		},
	}
	return cmd
}

func newInfoCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <image>",
		Short: "Show the pixel features used for classification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := imageio.Load(args[0])
			if err != nil {
				return err
			}
			feats, err := raster.Extract(buf)
			if err != nil {
				return err
			}
			bg, kind, err := raster.DetectBackground(buf, raster.DetectHistogram)
			if err != nil {
				return err
			}
			vibrant, err := raster.VibrantColor(buf)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "size:                   %dx%d\n", buf.W, buf.H)
			fmt.Fprintf(os.Stdout, "effective pixel ratio:  %.4f\n", feats.EffectivePixelRatio)
			fmt.Fprintf(os.Stdout, "dominant fill color:    #%02x%02x%02x (ratio %.4f)\n",
				feats.DominantFillColor.R, feats.DominantFillColor.G, feats.DominantFillColor.B, feats.DominantFillRatio)
			fmt.Fprintf(os.Stdout, "largest fill component: %.4f\n", feats.LargestFillComponentRatio)
			fmt.Fprintf(os.Stdout, "detected background:    #%02x%02x%02x (%s)\n", bg.R, bg.G, bg.B, kind)
			fmt.Fprintf(os.Stdout, "vibrant color:          #%02x%02x%02x\n", vibrant.R, vibrant.G, vibrant.B)
			fmt.Fprintf(os.Stdout, "classified as base:     %t (score %.2f)\n",
				root.cfg.Classifier.IsBackground(feats), root.cfg.Classifier.Score(feats))
			return nil
		},
	}
	return cmd
}

func newWatchCmd(root *Root) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "watch <input_directory> <output_directory>",
		Short: "Reprocess the tree whenever images change",
		Args:  cobra.ExactArgs(2),
	}

	apply := bindProcessingFlags(cmd, root, &opts)
	debounce := cmd.Flags().Duration("debounce", 0, "settle time before a rescan (default 2s)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts.input = args[0]
		opts.output = args[1]
		if err := apply(); err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return root.watchLoop(ctx, opts, *debounce, nil)
	}

	return cmd
}

func newServeCmd(root *Root) *cobra.Command {
	var (
		opts      runOptions
		addr      string
		watchPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP status server",
		Long: `Serve run history and live pair results over HTTP.

Endpoints: /healthz, /runs, /runs/{id}/pairs, /stream (SSE), /ws (websocket).

With --watch, the server also monitors a directory and reprocesses it on
change, streaming results to connected clients.

Examples:
  cgmatch serve --addr :8080
  cgmatch serve --addr :8080 --watch ./cg --output ./out`,
	}

	apply := bindProcessingFlags(cmd, root, &opts)
	cmd.Flags().StringVar(&addr, "addr", ":8080", "server address (host:port)")
	cmd.Flags().StringVar(&watchPath, "watch", "", "directory to monitor and reprocess")
	cmd.Flags().StringVar(&opts.output, "output", "", "output directory for watch-triggered runs")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := apply(); err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		opts.input = watchPath
		if opts.output == "" {
			opts.output = root.cfg.Paths.DefaultOutput
		}
		return root.serve(ctx, addr, opts, watchPath != "")
	}

	return cmd
}

func newRunsCmd(root *Root) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run_id]",
		Short: "List recorded runs, or the pair outcomes of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.store == nil {
				return fmt.Errorf("run history is not available")
			}
			if len(args) == 1 {
				pairs, err := root.store.RunPairs(args[0])
				if err != nil {
					return err
				}
				for _, p := range pairs {
					fmt.Fprintf(os.Stdout, "%-8s %s <- %s", p.Status, p.BasePath, p.DiffPath)
					if p.Status == "success" {
						fmt.Fprintf(os.Stdout, " (dx=%d dy=%d fit=%.2f%%)", p.DX, p.DY, p.FitPercent)
					} else if p.Reason != "" {
						fmt.Fprintf(os.Stdout, " [%s]", p.Reason)
					}
					fmt.Fprintln(os.Stdout)
				}
				return nil
			}

			runs, err := root.store.RecentRuns(limit)
			if err != nil {
				return err
			}
			for _, run := range runs {
				fmt.Fprintf(os.Stdout, "%s  %-9s %-5s %s -> %s (ok=%d failed=%d skipped=%d)\n",
					run.CreatedAt.Format("2006-01-02 15:04:05"), run.Status, run.Mode,
					run.InputDir, run.OutputDir, run.SuccessCount, run.FailedCount, run.SkippedCount)
				fmt.Fprintf(os.Stdout, "  id: %s\n", run.ID)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}

func newConfigCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long:  "Show or validate cgmatch configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.configShow()
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.cfg.Validate(); err != nil {
				return err
			}
			root.log.Info("configuration validation", "status", "valid")
			fmt.Println("configuration is valid")
			return nil
		},
	}

	cmd.AddCommand(showCmd, validateCmd)
	return cmd
}

func newVersionCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("cgmatch v1.0.0")
		},
	}
}
