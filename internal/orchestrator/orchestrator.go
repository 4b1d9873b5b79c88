// Package orchestrator implements C8: it chains Validator.Prepare,
// Validator.Update, Completor.Run, and Identifier.Run over a single tile
// read from disk via internal/tile, writing the result to a temporary file
// that is renamed into place only on success, and fans that sequence out
// across many tiles with a worker pool bounded by runtime.NumCPU(), one
// goroutine per tile and no shared mutable state between them (§5).
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"

	"github.com/lidarprod/buildingvalidator/internal/completor"
	"github.com/lidarprod/buildingvalidator/internal/config"
	"github.com/lidarprod/buildingvalidator/internal/geo"
	"github.com/lidarprod/buildingvalidator/internal/identifier"
	"github.com/lidarprod/buildingvalidator/internal/tile"
	"github.com/lidarprod/buildingvalidator/internal/validator"
)

// Orchestrator drives the fixed §5 ordering
// Validator.Prepare -> Validator.Update -> Completor.Run -> Identifier.Run
// over one tile at a time, using the configuration it is constructed with
// for every stage. The Validator always runs with final classification
// codes, since the Completor's promotion test compares against the final
// building code (§4.2).
type Orchestrator struct {
	Cfg *config.Config

	// DB, if non-nil, is passed to Validator.Prepare as the vector layer
	// source for tiles whose RunOne call supplies no explicit Layer.
	DB validator.VectorLayerSource

	SRID                    uint32
	AllowedReservoirNatures []string

	// SetIdentifierClassification mirrors identifier.Identifier's optional
	// standalone mode: when true, the Identifier also rewrites
	// classification for the groups it finds.
	SetIdentifierClassification bool
}

// New returns an Orchestrator bound to cfg.
func New(cfg *config.Config) *Orchestrator {
	return &Orchestrator{Cfg: cfg}
}

// RunOne implements the single-tile pipeline: read srcPath, run the four
// stages over the in-memory buffer, and write the result to dstPath. layer
// overrides the Orchestrator's DB for this call only, matching
// validator.Options.Layer's "user-supplied vector layer" path; pass nil to
// use o.DB.
//
// The tile buffer is owned solely by this call for its duration (§3's
// ownership rule); RunOne never retains or shares it past return.
func (o *Orchestrator) RunOne(ctx context.Context, srcPath, dstPath string, layer []geo.Polygon) error {
	t, err := readTile(srcPath)
	if err != nil {
		return fmt.Errorf("orchestrator: read %s: %w", srcPath, err)
	}

	v := validator.New(o.Cfg)
	opts := validator.Options{
		Layer:                   layer,
		SRID:                    o.SRID,
		AllowedReservoirNatures: o.AllowedReservoirNatures,
	}
	if layer == nil {
		opts.DB = o.DB
	}
	if err := v.Prepare(ctx, t, opts); err != nil {
		return fmt.Errorf("orchestrator: prepare %s: %w", srcPath, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.Update(t, true); err != nil {
		return fmt.Errorf("orchestrator: update %s: %w", srcPath, err)
	}

	c := completor.New(o.Cfg)
	if err := c.Run(t); err != nil {
		return fmt.Errorf("orchestrator: completor %s: %w", srcPath, err)
	}

	id := identifier.New(o.Cfg)
	id.SetClassification = o.SetIdentifierClassification
	if err := id.Run(t); err != nil {
		return fmt.Errorf("orchestrator: identifier %s: %w", srcPath, err)
	}

	return writeTileAtomic(dstPath, t)
}

// BatchResult reports the outcome of one tile within a RunMany batch.
type BatchResult struct {
	SrcPath string
	DstPath string
	Err     error
}

// RunMany processes every entry of srcPaths concurrently, writing each to
// dstDir/<basename>, with a worker pool bounded by runtime.NumCPU() (§5):
// each tile is handled by exactly one worker and workers share no mutable
// state. A single tile's failure is logged and reported in its
// BatchResult; it never aborts the rest of the batch (§7's orchestrator
// non-fatal-per-tile policy). Cancelling ctx stops workers from picking up
// new tiles but does not interrupt one already in flight past its next
// checkpoint.
func (o *Orchestrator) RunMany(ctx context.Context, srcPaths []string, dstDir string) []BatchResult {
	runID := uuid.NewString()
	log.Printf("orchestrator: starting batch run %s over %d tiles", runID, len(srcPaths))

	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	if workers > len(srcPaths) {
		workers = len(srcPaths)
	}

	jobs := make(chan int)
	results := make([]BatchResult, len(srcPaths))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range srcPaths {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		<-done
		close(jobs)
	}()

	workerDone := make(chan struct{}, workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer func() { workerDone <- struct{}{} }()
			for i := range jobs {
				src := srcPaths[i]
				dst := filepath.Join(dstDir, filepath.Base(src))
				err := o.RunOne(ctx, src, dst, nil)
				if err != nil {
					log.Printf("orchestrator: run %s: %s: %v", runID, src, err)
				}
				results[i] = BatchResult{SrcPath: src, DstPath: dst, Err: err}
			}
		}()
	}
	for w := 0; w < workers; w++ {
		<-workerDone
	}

	return results
}

func readTile(path string) (*tile.Tile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tile.Read(f)
}

// writeTileAtomic writes t to a temporary file beside dstPath and renames
// it into place, so a failure or cancellation mid-write never leaves a
// partially-written file at dstPath (§5's "no partial outputs" rule).
func writeTileAtomic(dstPath string, t *tile.Tile) (err error) {
	dir := filepath.Dir(dstPath)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(dstPath)+"-*")
	if err != nil {
		return fmt.Errorf("orchestrator: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err = tile.Write(tmp, t); err != nil {
		return fmt.Errorf("orchestrator: write %s: %w", tmpPath, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("orchestrator: close %s: %w", tmpPath, err)
	}
	if err = os.Rename(tmpPath, dstPath); err != nil {
		return fmt.Errorf("orchestrator: rename %s -> %s: %w", tmpPath, dstPath, err)
	}
	return nil
}
