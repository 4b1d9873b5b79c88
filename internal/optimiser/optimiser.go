package optimiser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/lidarprod/buildingvalidator/internal/config"
	"github.com/lidarprod/buildingvalidator/internal/tile"
	"github.com/lidarprod/buildingvalidator/internal/validator"
)

// Phase names a todo set entry of §4.8.
type Phase string

const (
	PhasePrepare  Phase = "prepare"
	PhaseOptimize Phase = "optimize"
	PhaseEvaluate Phase = "evaluate"
	PhaseUpdate   Phase = "update"
)

// RunRequest configures one invocation of Optimiser.Run, selecting which
// of §4.8's four phases execute and where the study's artifacts live.
type RunRequest struct {
	Root  string // holds inputs/, prepared/, updated/, group_info.db, thresholds.db
	Todo  map[Phase]bool
	Cfg   *config.Config
	Layer func(ctx context.Context, tileID string) (validator.Options, error) // per-tile vector layer source for Prepare
}

// Optimiser runs the four todo-selectable phases of §4.8 against a
// filesystem study directory, each phase chainable with the others across
// separate invocations since group_info.db/thresholds.db persist state.
type Optimiser struct {
	RunID string // keys this run's trial history in thresholds.db, per the teacher's uuid-named analysis runs
}

// New returns an Optimiser with a freshly generated run id.
func New() *Optimiser {
	return &Optimiser{RunID: uuid.NewString()}
}

// Run executes every phase present in req.Todo, in the fixed
// prepare->optimize->evaluate->update order regardless of map iteration.
func (o *Optimiser) Run(ctx context.Context, req RunRequest) error {
	store, err := OpenStore(req.Root)
	if err != nil {
		return err
	}
	defer store.Close()

	if req.Todo[PhasePrepare] {
		if err := o.runPrepare(ctx, req, store); err != nil {
			return fmt.Errorf("optimiser: prepare: %w", err)
		}
	}
	if req.Todo[PhaseOptimize] {
		if err := o.runOptimize(req, store); err != nil {
			return fmt.Errorf("optimiser: optimize: %w", err)
		}
	}
	if req.Todo[PhaseEvaluate] {
		if err := o.runEvaluate(req, store); err != nil {
			return fmt.Errorf("optimiser: evaluate: %w", err)
		}
	}
	if req.Todo[PhaseUpdate] {
		if err := o.runUpdate(req, store); err != nil {
			return fmt.Errorf("optimiser: update: %w", err)
		}
	}
	return nil
}

// runPrepare implements §4.8 phase 1: for each labelled tile under
// <root>/inputs, run Validator.Prepare, save the prepared tile to
// <root>/prepared, extract cluster-info, and persist the concatenated list.
func (o *Optimiser) runPrepare(ctx context.Context, req RunRequest, store *Store) error {
	inputsDir := filepath.Join(req.Root, "inputs")
	preparedDir := filepath.Join(req.Root, "prepared")
	if err := os.MkdirAll(preparedDir, 0o755); err != nil {
		return fmt.Errorf("create prepared dir: %w", err)
	}

	entries, err := os.ReadDir(inputsDir)
	if err != nil {
		return fmt.Errorf("read inputs dir: %w", err)
	}

	tpCodes := req.Cfg.GetOptimiserTruePositiveCodes()
	tauTPMin := req.Cfg.GetOptimiserTruePositiveMin()
	tauFPMax := req.Cfg.GetOptimiserFalsePositiveMax()

	var allInfos []ClusterInfo
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if entry.IsDir() {
			continue
		}
		tileID := entry.Name()

		t, err := loadTile(filepath.Join(inputsDir, tileID))
		if err != nil {
			log.Printf("optimiser: prepare: skipping %s: %v", tileID, err)
			continue
		}

		opts := validator.Options{}
		if req.Layer != nil {
			o, err := req.Layer(ctx, tileID)
			if err != nil {
				log.Printf("optimiser: prepare: layer fetch for %s: %v", tileID, err)
				continue
			}
			opts = o
		}

		v := validator.New(req.Cfg)
		if err := v.Prepare(ctx, t, opts); err != nil {
			log.Printf("optimiser: prepare: %s: %v", tileID, err)
			continue
		}

		if err := saveTile(filepath.Join(preparedDir, tileID), t); err != nil {
			return fmt.Errorf("save prepared tile %s: %w", tileID, err)
		}

		infos, err := ExtractClusterInfo(tileID, t, tauTPMin, tauFPMax, tpCodes)
		if err != nil {
			return fmt.Errorf("extract cluster info for %s: %w", tileID, err)
		}
		allInfos = append(allInfos, infos...)
	}

	if err := writeClusterCSVFile(filepath.Join(req.Root, "cluster_info.csv"), allInfos); err != nil {
		return fmt.Errorf("write cluster_info.csv: %w", err)
	}

	return store.SaveClusterInfo(allInfos)
}

// runOptimize implements §4.8 phase 2.
func (o *Optimiser) runOptimize(req RunRequest, store *Store) error {
	infos, err := store.LoadClusterInfo()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		return fmt.Errorf("no cluster info to optimize over; run the prepare phase first")
	}

	constraints := Constraints{
		MinPrecision:  req.Cfg.GetOptimiserMinPrecision(),
		MinRecall:     req.Cfg.GetOptimiserMinRecall(),
		MinAutomation: req.Cfg.GetOptimiserMinAutomation(),
	}
	numTrials := req.Cfg.GetOptimiserNumTrials()

	rnd := rand.New(rand.NewSource(1))
	best, trials, err := RunSearch(infos, DefaultSearchSpace(), constraints, numTrials, rnd)
	if err != nil {
		if errors.Is(err, ErrNoFeasibleTrial) {
			log.Printf("optimiser: optimize: warning: %v (automation=%.4f precision=%.4f recall=%.4f)",
				err, best.Metrics.Automation, best.Metrics.Precision, best.Metrics.Recall)
		} else {
			return err
		}
	}

	if err := store.SaveThresholds(best.Thresholds, best.Metrics); err != nil {
		return err
	}
	return store.SaveTrials(o.RunID, trials)
}

// runEvaluate implements §4.8 phase 3.
func (o *Optimiser) runEvaluate(req RunRequest, store *Store) error {
	infos, err := store.LoadClusterInfo()
	if err != nil {
		return err
	}
	thr, _, err := store.LoadLatestThresholds()
	if err != nil {
		return err
	}

	c := buildConfusion(infos, thr)
	m := computeMetrics(c)
	log.Printf("optimiser: evaluate: confusion matrix (rows=ground truth, cols=decision, order building/not_building/unsure) = %v", c)
	log.Printf("optimiser: evaluate: automation=%.4f precision=%.4f recall=%.4f", m.Automation, m.Precision, m.Recall)
	return nil
}

// runUpdate implements §4.8 phase 4: for each prepared tile on disk, run
// Validator.Update with the saved thresholds and persist the result under
// <root>/updated.
func (o *Optimiser) runUpdate(req RunRequest, store *Store) error {
	thr, _, err := store.LoadLatestThresholds()
	if err != nil {
		return err
	}
	cfg := thr.ToConfig(req.Cfg)

	preparedDir := filepath.Join(req.Root, "prepared")
	updatedDir := filepath.Join(req.Root, "updated")
	if err := os.MkdirAll(updatedDir, 0o755); err != nil {
		return fmt.Errorf("create updated dir: %w", err)
	}

	entries, err := os.ReadDir(preparedDir)
	if err != nil {
		return fmt.Errorf("read prepared dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		tileID := entry.Name()
		t, err := loadTile(filepath.Join(preparedDir, tileID))
		if err != nil {
			return fmt.Errorf("load prepared tile %s: %w", tileID, err)
		}

		v := validator.NewPrepared(cfg)
		if err := v.Update(t, cfg.GetUseFinalClassificationCodes()); err != nil {
			return fmt.Errorf("update tile %s: %w", tileID, err)
		}

		if err := saveTile(filepath.Join(updatedDir, tileID), t); err != nil {
			return fmt.Errorf("save updated tile %s: %w", tileID, err)
		}
	}
	return nil
}

func loadTile(path string) (*tile.Tile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tile.Read(f)
}

func saveTile(path string, t *tile.Tile) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return tile.Write(f, t)
}

func writeClusterCSVFile(path string, infos []ClusterInfo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteClusterCSV(f, infos)
}
