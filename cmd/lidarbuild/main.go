// Command lidarbuild is the orchestrator entry point (C8): it loads a
// config, resolves a directory of tiles, and runs the Validator, Completor,
// and Identifier over each one, writing results to an output directory.
// Argument parsing and file discovery are intentionally thin per spec.md's
// "command-line entry point ... out of scope" note — this main only wires
// internal/config to internal/orchestrator.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/lidarprod/buildingvalidator/internal/config"
	"github.com/lidarprod/buildingvalidator/internal/orchestrator"
	"github.com/lidarprod/buildingvalidator/internal/vectordb"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to the JSON config file")
	inputDir := flag.String("input", "", "directory of tiles to process")
	outputDir := flag.String("output", "", "directory to write processed tiles to")
	vectorDBPath := flag.String("vectordb", "", "path to the territory-metadata sqlite file (optional; omit to skip DB overlay)")
	srid := flag.Uint("srid", 2154, "SRID of the input tiles, forwarded to the vector-DB fetch")
	identifyStandalone := flag.Bool("identify-standalone", false, "also reclassify ai_group members as the final building code")
	flag.Parse()

	if *inputDir == "" || *outputDir == "" {
		fmt.Fprintln(os.Stderr, "usage: lidarbuild -input <dir> -output <dir> [-config <path>] [-vectordb <path>]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("lidarbuild: load config: %v", err)
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatalf("lidarbuild: create output dir: %v", err)
	}

	o := orchestrator.New(cfg)
	o.SetIdentifierClassification = *identifyStandalone
	o.SRID = uint32(*srid)

	if *vectorDBPath != "" {
		client, err := vectordb.Open(*vectorDBPath, cfg.GetVectorDB(), cfg.GetVectorDBTimeoutSecs())
		if err != nil {
			log.Fatalf("lidarbuild: open vector-db: %v", err)
		}
		defer client.Close()
		o.DB = client
	}

	entries, err := os.ReadDir(*inputDir)
	if err != nil {
		log.Fatalf("lidarbuild: read input dir: %v", err)
	}
	var srcPaths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		srcPaths = append(srcPaths, filepath.Join(*inputDir, e.Name()))
	}
	if len(srcPaths) == 0 {
		log.Printf("lidarbuild: no tiles found in %s", *inputDir)
		return
	}

	results := o.RunMany(context.Background(), srcPaths, *outputDir)
	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Printf("lidarbuild: processed %d tiles, %d failed", len(results), failed)
	if failed > 0 {
		os.Exit(1)
	}
}
