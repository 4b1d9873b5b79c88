package optimiser

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/groupinfo/*.sql
var groupInfoMigrationsFS embed.FS

//go:embed migrations/thresholds/*.sql
var thresholdsMigrationsFS embed.FS

// Store persists the two §6 filesystem artifacts (group_info.db,
// thresholds.db) as SQLite databases rather than ad hoc flat files, so
// repeated studies accumulate a queryable trial history. Grounded on
// internal/lidardb's database/sql+modernc.org/sqlite pattern and
// internal/db/migrate.go's golang-migrate wiring.
type Store struct {
	groupInfoDB *sql.DB
	thresholdDB *sql.DB
}

// OpenStore opens (creating if absent) <root>/group_info.db and
// <root>/thresholds.db and applies pending migrations to each.
func OpenStore(root string) (*Store, error) {
	groupInfoDB, err := sql.Open("sqlite", root+"/group_info.db")
	if err != nil {
		return nil, fmt.Errorf("optimiser: open group_info.db: %w", err)
	}
	if err := migrateUp(groupInfoDB, groupInfoMigrationsFS, "migrations/groupinfo"); err != nil {
		groupInfoDB.Close()
		return nil, err
	}

	thresholdDB, err := sql.Open("sqlite", root+"/thresholds.db")
	if err != nil {
		groupInfoDB.Close()
		return nil, fmt.Errorf("optimiser: open thresholds.db: %w", err)
	}
	if err := migrateUp(thresholdDB, thresholdsMigrationsFS, "migrations/thresholds"); err != nil {
		groupInfoDB.Close()
		thresholdDB.Close()
		return nil, err
	}

	return &Store{groupInfoDB: groupInfoDB, thresholdDB: thresholdDB}, nil
}

func (s *Store) Close() error {
	err1 := s.groupInfoDB.Close()
	err2 := s.thresholdDB.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func migrateUp(db *sql.DB, fsys embed.FS, dir string) error {
	source, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("optimiser: migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("optimiser: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("optimiser: migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("optimiser: migrate up: %w", err)
	}
	return nil
}

// SaveClusterInfo persists the concatenated per-tile cluster-info list of
// §4.8's Prepare phase into group_info.db.
func (s *Store) SaveClusterInfo(infos []ClusterInfo) error {
	tx, err := s.groupInfoDB.Begin()
	if err != nil {
		return fmt.Errorf("optimiser: save cluster info: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO cluster_info (tile_id, cluster_id, probabilities, overlays, entropies, target)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("optimiser: save cluster info: %w", err)
	}
	defer stmt.Close()

	for _, info := range infos {
		probaJSON, _ := json.Marshal(info.Probabilities)
		overlayJSON, _ := json.Marshal(info.Overlays)
		entropyJSON, _ := json.Marshal(info.Entropies)
		if _, err := stmt.Exec(info.TileID, info.ClusterID, string(probaJSON), string(overlayJSON), string(entropyJSON), info.Target); err != nil {
			return fmt.Errorf("optimiser: save cluster info: %w", err)
		}
	}
	return tx.Commit()
}

// LoadClusterInfo reads back the full persisted cluster-info list from
// group_info.db, the input to §4.8's Optimize and Evaluate phases.
func (s *Store) LoadClusterInfo() ([]ClusterInfo, error) {
	rows, err := s.groupInfoDB.Query(`SELECT tile_id, cluster_id, probabilities, overlays, entropies, target FROM cluster_info`)
	if err != nil {
		return nil, fmt.Errorf("optimiser: load cluster info: %w", err)
	}
	defer rows.Close()

	var infos []ClusterInfo
	for rows.Next() {
		var info ClusterInfo
		var probaJSON, overlayJSON, entropyJSON string
		if err := rows.Scan(&info.TileID, &info.ClusterID, &probaJSON, &overlayJSON, &entropyJSON, &info.Target); err != nil {
			return nil, fmt.Errorf("optimiser: load cluster info: %w", err)
		}
		if err := json.Unmarshal([]byte(probaJSON), &info.Probabilities); err != nil {
			return nil, fmt.Errorf("optimiser: load cluster info: %w", err)
		}
		if err := json.Unmarshal([]byte(overlayJSON), &info.Overlays); err != nil {
			return nil, fmt.Errorf("optimiser: load cluster info: %w", err)
		}
		if err := json.Unmarshal([]byte(entropyJSON), &info.Entropies); err != nil {
			return nil, fmt.Errorf("optimiser: load cluster info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// SaveThresholds persists the winning trial's thresholds alongside the
// metrics it achieved into thresholds.db, the "persist the selected
// thresholds" step of §4.8's Optimize phase.
func (s *Store) SaveThresholds(thr Thresholds, m Metrics) error {
	_, err := s.thresholdDB.Exec(`INSERT INTO thresholds (
		created_at,
		min_confidence_confirmation, min_frac_confirmation,
		min_frac_confirmation_factor_if_bd_uni_overlay, min_uni_db_overlay_frac,
		min_confidence_refutation, min_frac_refutation,
		min_entropy_uncertainty, min_frac_entropy_uncertain,
		automation, precision_, recall
	) VALUES (datetime('now'), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		thr.MinConfidenceConfirmation, thr.MinFracConfirmation,
		thr.MinFracConfirmationFactorIfBDUniOverlay, thr.MinUniDBOverlayFrac,
		thr.MinConfidenceRefutation, thr.MinFracRefutation,
		thr.MinEntropyUncertainty, thr.MinFracEntropyUncertain,
		m.Automation, m.Precision, m.Recall)
	if err != nil {
		return fmt.Errorf("optimiser: save thresholds: %w", err)
	}
	return nil
}

// LoadLatestThresholds reads back the most recently saved thresholds from
// thresholds.db, the input to §4.8's Evaluate and Update phases.
func (s *Store) LoadLatestThresholds() (Thresholds, Metrics, error) {
	row := s.thresholdDB.QueryRow(`SELECT
		min_confidence_confirmation, min_frac_confirmation,
		min_frac_confirmation_factor_if_bd_uni_overlay, min_uni_db_overlay_frac,
		min_confidence_refutation, min_frac_refutation,
		min_entropy_uncertainty, min_frac_entropy_uncertain,
		automation, precision_, recall
		FROM thresholds ORDER BY id DESC LIMIT 1`)

	var thr Thresholds
	var m Metrics
	err := row.Scan(
		&thr.MinConfidenceConfirmation, &thr.MinFracConfirmation,
		&thr.MinFracConfirmationFactorIfBDUniOverlay, &thr.MinUniDBOverlayFrac,
		&thr.MinConfidenceRefutation, &thr.MinFracRefutation,
		&thr.MinEntropyUncertainty, &thr.MinFracEntropyUncertain,
		&m.Automation, &m.Precision, &m.Recall)
	if errors.Is(err, sql.ErrNoRows) {
		return Thresholds{}, Metrics{}, fmt.Errorf("optimiser: no saved thresholds")
	}
	if err != nil {
		return Thresholds{}, Metrics{}, fmt.Errorf("optimiser: load thresholds: %w", err)
	}
	return thr, m, nil
}

// SaveTrials records one search run's full trial history under runID into
// thresholds.db, the data WriteHTMLReport and WritePNGReport later render.
func (s *Store) SaveTrials(runID string, trials []Trial) error {
	tx, err := s.thresholdDB.Begin()
	if err != nil {
		return fmt.Errorf("optimiser: save trials: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO trials (run_id, trial_index, automation, precision_, recall, penalty)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("optimiser: save trials: %w", err)
	}
	defer stmt.Close()

	for i, t := range trials {
		if _, err := stmt.Exec(runID, i, t.Metrics.Automation, t.Metrics.Precision, t.Metrics.Recall, t.Penalty); err != nil {
			return fmt.Errorf("optimiser: save trials: %w", err)
		}
	}
	return tx.Commit()
}

// LoadTrials returns every trial recorded under runID, ordered by index.
func (s *Store) LoadTrials(runID string) ([]Trial, error) {
	rows, err := s.thresholdDB.Query(`SELECT automation, precision_, recall, penalty FROM trials WHERE run_id = ? ORDER BY trial_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("optimiser: load trials: %w", err)
	}
	defer rows.Close()

	var trials []Trial
	for rows.Next() {
		var t Trial
		if err := rows.Scan(&t.Metrics.Automation, &t.Metrics.Precision, &t.Metrics.Recall, &t.Penalty); err != nil {
			return nil, fmt.Errorf("optimiser: load trials: %w", err)
		}
		trials = append(trials, t)
	}
	return trials, rows.Err()
}
