// Command lidaroptimise is the threshold-optimiser entry point (C7): it
// loads a config and a study root, runs whichever of the four §4.8 phases
// the -todo flag names, and optionally renders the trial-history report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lidarprod/buildingvalidator/internal/config"
	"github.com/lidarprod/buildingvalidator/internal/optimiser"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to the JSON config file")
	root := flag.String("root", "", "study root directory (holds inputs/, prepared/, updated/, group_info.db, thresholds.db)")
	todo := flag.String("todo", "prepare,optimize,evaluate", "comma-separated subset of {prepare,optimize,evaluate,update}")
	htmlReport := flag.String("html-report", "", "if set, write the trial-history HTML report to this path")
	pngReport := flag.String("png-report", "", "if set, write the trial-history PNG scatter plot to this path")
	flag.Parse()

	if *root == "" {
		fmt.Fprintln(os.Stderr, "usage: lidaroptimise -root <dir> [-config <path>] [-todo prepare,optimize,evaluate,update]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("lidaroptimise: load config: %v", err)
	}

	phases, err := parsePhases(*todo)
	if err != nil {
		log.Fatalf("lidaroptimise: %v", err)
	}

	o := optimiser.New()
	req := optimiser.RunRequest{Root: *root, Todo: phases, Cfg: cfg}
	if err := o.Run(context.Background(), req); err != nil {
		log.Fatalf("lidaroptimise: run: %v", err)
	}

	if *htmlReport == "" && *pngReport == "" {
		return
	}
	if !phases[optimiser.PhaseOptimize] {
		log.Printf("lidaroptimise: -html-report/-png-report requested but the optimize phase did not run in this invocation; skipping")
		return
	}

	store, err := optimiser.OpenStore(*root)
	if err != nil {
		log.Fatalf("lidaroptimise: reopen store for report: %v", err)
	}
	defer store.Close()

	trials, err := store.LoadTrials(o.RunID)
	if err != nil {
		log.Fatalf("lidaroptimise: load trials: %v", err)
	}
	constraints := optimiser.Constraints{
		MinPrecision:  cfg.GetOptimiserMinPrecision(),
		MinRecall:     cfg.GetOptimiserMinRecall(),
		MinAutomation: cfg.GetOptimiserMinAutomation(),
	}
	if *htmlReport != "" {
		if err := optimiser.WriteHTMLReport(*htmlReport, trials, constraints); err != nil {
			log.Fatalf("lidaroptimise: write html report: %v", err)
		}
		log.Printf("lidaroptimise: wrote %s", *htmlReport)
	}
	if *pngReport != "" {
		if err := optimiser.WritePNGReport(*pngReport, trials); err != nil {
			log.Fatalf("lidaroptimise: write png report: %v", err)
		}
		log.Printf("lidaroptimise: wrote %s", *pngReport)
	}
}

func parsePhases(todo string) (map[optimiser.Phase]bool, error) {
	known := map[string]optimiser.Phase{
		"prepare":  optimiser.PhasePrepare,
		"optimize": optimiser.PhaseOptimize,
		"evaluate": optimiser.PhaseEvaluate,
		"update":   optimiser.PhaseUpdate,
	}
	phases := make(map[optimiser.Phase]bool)
	for _, name := range strings.Split(todo, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown phase %q (want one of prepare,optimize,evaluate,update)", name)
		}
		phases[p] = true
	}
	return phases, nil
}
