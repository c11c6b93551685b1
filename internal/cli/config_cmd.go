package cli

import (
	"fmt"
	"os"
)

func (r *Root) configShow() error {
	fmt.Printf("Current configuration:\n")
	cfgPath := os.Getenv("CGMATCH_CONFIG")
	if cfgPath == "" {
		cfgPath = "(default) ~/.config/cgmatch/config.json"
	}
	fmt.Printf("Config file: %s\n", cfgPath)
	fmt.Printf("\nProcessing:\n")
	fmt.Printf("  Parallel jobs: %d\n", r.cfg.Processing.ParallelJobs)
	fmt.Printf("  Recursive: %t\n", r.cfg.Processing.Recursive)
	fmt.Printf("\nBackground removal:\n")
	fmt.Printf("  Color: %s\n", r.cfg.Background.Color)
	fmt.Printf("  Mode: %s\n", r.cfg.Background.Mode)
	fmt.Printf("  Tolerance: %g\n", r.cfg.Background.Tolerance)
	fmt.Printf("  Detector: %s\n", r.cfg.Background.Detector)
	fmt.Printf("\nAlignment:\n")
	fmt.Printf("  Mode: %s\n", r.cfg.Alignment.Mode)
	fmt.Printf("  Initial step: %d\n", r.cfg.Alignment.InitStep)
	fmt.Printf("  Minimum step: %d\n", r.cfg.Alignment.MinStep)
	fmt.Printf("  Extension scale: %d\n", r.cfg.Alignment.ExtScale)
	fmt.Printf("  Channel threshold: %d\n", r.cfg.Alignment.ChannelThreshold)
	fmt.Printf("  Minimum fit: %g%%\n", r.cfg.Alignment.MinFitPercent)
	fmt.Printf("\nClassifier:\n")
	fmt.Printf("  Base effective ratio: %g\n", r.cfg.Classifier.BaseEffectiveRatio)
	fmt.Printf("  Base component ratio: %g\n", r.cfg.Classifier.BaseComponentRatio)
	fmt.Printf("\nPaths:\n")
	fmt.Printf("  Default input: %s\n", r.cfg.Paths.DefaultInput)
	fmt.Printf("  Default output: %s\n", r.cfg.Paths.DefaultOutput)
	fmt.Printf("  Database path: %s\n", r.cfg.Paths.DatabasePath)
	fmt.Printf("\nLogging:\n")
	fmt.Printf("  Level: %s\n", r.cfg.Logging.Level)
	fmt.Printf("  Format: %s\n", r.cfg.Logging.Format)
	fmt.Printf("  File output: %t (%s)\n", r.cfg.Logging.FileOutput, r.cfg.Logging.LogDir)
	return nil
}
