// Package vectordb implements the client side of §4.7: given a bounding
// box and SRID, validate it against a registered territory, fetch building
// and reservoir footprints, and return a 2D polygon layer with a single
// PRESENCE=1 attribute ready for internal/geo.Overlay.
//
// The territories/buildings/reservoirs schema lives behind database/sql
// exactly as the teacher's lidardb package wraps modernc.org/sqlite; the
// polygon fetch itself shells out to a SQL-to-shapefile utility via an
// injectable CommandBuilder, following the deploy package's pattern for
// testing subprocess invocations without running a real shell command.
package vectordb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lidarprod/buildingvalidator/internal/config"
	"github.com/lidarprod/buildingvalidator/internal/geo"
)

// Client fetches building/reservoir polygons from the external spatial
// database described in §6.
type Client struct {
	DB             *sql.DB
	CommandBuilder CommandBuilder
	Cfg            config.VectorDB
	Timeout        time.Duration

	// ShapefileTool names the shell utility invoked to export polygons,
	// e.g. "ogr2ogr" or "pgsql2shp" in a real deployment.
	ShapefileTool string
}

// passwordEnvVar names the environment variable Open consults for the
// vector-DB password, so an operator never has to store it in the config
// file on disk.
const passwordEnvVar = "LIDARPROD_VECTORDB_PASSWORD"

// Open connects to the territory-metadata database at path (a local sqlite
// file mirroring the territories/buildings/reservoirs schema) and wires up
// a real subprocess command builder. If passwordEnvVar is set, it
// overrides cfg.Password, mirroring how the teacher's deploy package keeps
// SSH secrets out of JSON config.
func Open(path string, cfg config.VectorDB, timeoutSecs int) (*Client, error) {
	if envPassword := credentialsFromEnv(passwordEnvVar); envPassword != "" {
		cfg.Password = &envPassword
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &ErrDatabaseUnavailable{Cause: err}
	}
	if _, err := db.Exec(territorySchema); err != nil {
		return nil, &ErrDatabaseUnavailable{Cause: err}
	}
	log.Println("vectordb: initialized territory metadata schema")
	return &Client{
		DB:             db,
		CommandBuilder: NewRealCommandBuilder(),
		Cfg:            cfg,
		Timeout:        time.Duration(timeoutSecs) * time.Second,
		ShapefileTool:  "ogr2ogr",
	}, nil
}

// Close releases the underlying database connection.
func (c *Client) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

const territorySchema = `
CREATE TABLE IF NOT EXISTS territories (
	territory_code TEXT PRIMARY KEY,
	srid INTEGER NOT NULL,
	min_x REAL NOT NULL,
	min_y REAL NOT NULL,
	max_x REAL NOT NULL,
	max_y REAL NOT NULL
);
`

// BBox is an axis-aligned query region in the projection identified by SRID.
type BBox struct {
	MinX, MinY, MaxX, MaxY float64
	SRID                   uint32
}

// territoryFor returns the territory_code of a territory with bbox's SRID
// whose registered footprint intersects bbox, or a *BadProjectionError if
// none does.
func (c *Client) territoryFor(ctx context.Context, bbox BBox) (string, error) {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT territory_code FROM territories
		WHERE srid = ?
		  AND min_x <= ? AND max_x >= ?
		  AND min_y <= ? AND max_y >= ?
		LIMIT 1
	`, bbox.SRID, bbox.MaxX, bbox.MinX, bbox.MaxY, bbox.MinY)
	if err != nil {
		return "", &ErrDatabaseUnavailable{Cause: err}
	}
	defer rows.Close()

	if !rows.Next() {
		return "", &BadProjectionError{SRID: bbox.SRID, MinX: bbox.MinX, MinY: bbox.MinY, MaxX: bbox.MaxX, MaxY: bbox.MaxY}
	}
	var code string
	if err := rows.Scan(&code); err != nil {
		return "", &ErrDatabaseUnavailable{Cause: err}
	}
	return code, nil
}

// RegisterTerritory inserts or replaces a territory's footprint and SRID,
// used by tests and deployment tooling to seed the metadata database.
func (c *Client) RegisterTerritory(ctx context.Context, code string, srid uint32, minX, minY, maxX, maxY float64) error {
	_, err := c.DB.ExecContext(ctx, `
		INSERT INTO territories (territory_code, srid, min_x, min_y, max_x, max_y)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(territory_code) DO UPDATE SET
			srid = excluded.srid, min_x = excluded.min_x, min_y = excluded.min_y,
			max_x = excluded.max_x, max_y = excluded.max_y
	`, code, srid, minX, minY, maxX, maxY)
	if err != nil {
		return &ErrDatabaseUnavailable{Cause: err}
	}
	return nil
}

// exportRow is the JSON shape one record of the shapefile-export tool's
// stdout is expected to take: a single polygon ring plus table/nature tags
// used for the destroyed/restricted-category filtering in step 2 of §4.7.
type exportRow struct {
	Table     string      `json:"table"`
	Ring      [][2]float64 `json:"ring"`
	Destroyed bool        `json:"destroyed"`
	Nature    string      `json:"nature"`
}

// FetchBuildingsAndReservoirs implements §4.7: validate the bbox against a
// registered territory, shell out to export buildings and reservoirs
// intersecting it (excluding destroyed features and, for reservoirs,
// natures outside allowedReservoirNatures), and return a PRESENCE=1 layer.
// A fetch that yields no polygons returns a nil layer with ErrDatabaseEmpty,
// which callers treat as a valid "no overlay" outcome rather than a failure.
func (c *Client) FetchBuildingsAndReservoirs(ctx context.Context, bbox BBox, allowedReservoirNatures []string) ([]geo.Polygon, error) {
	territory, err := c.territoryFor(ctx, bbox)
	if err != nil {
		return nil, err
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := c.exportArgs(territory, bbox)
	done := make(chan struct {
		out []byte
		err error
	}, 1)
	go func() {
		out, err := c.CommandBuilder.BuildCommand(c.ShapefileTool, args...).Run()
		done <- struct {
			out []byte
			err error
		}{out, err}
	}()

	select {
	case <-fetchCtx.Done():
		return nil, &ErrDatabaseTimeout{TimeoutSecs: int(timeout.Seconds())}
	case res := <-done:
		if res.err != nil {
			if strings.Contains(res.err.Error(), "timeout") {
				return nil, &ErrDatabaseTimeout{TimeoutSecs: int(timeout.Seconds())}
			}
			return nil, &ErrDatabaseUnavailable{Cause: res.err}
		}
		return c.parseExport(res.out, allowedReservoirNatures)
	}
}

func (c *Client) exportArgs(territory string, bbox BBox) []string {
	return []string{
		"-f", "GeoJSONSeq",
		"/vsistdout/",
		fmt.Sprintf("PG:host=%s user=%s dbname=%s", deref(c.Cfg.Host), deref(c.Cfg.User), deref(c.Cfg.Database)),
		"-spat", fmt.Sprintf("%f", bbox.MinX), fmt.Sprintf("%f", bbox.MinY), fmt.Sprintf("%f", bbox.MaxX), fmt.Sprintf("%f", bbox.MaxY),
		"-where", fmt.Sprintf("territory_code = '%s' AND destroyed = false", territory),
	}
}

func (c *Client) parseExport(out []byte, allowedReservoirNatures []string) ([]geo.Polygon, error) {
	allowed := make(map[string]bool, len(allowedReservoirNatures))
	for _, n := range allowedReservoirNatures {
		allowed[n] = true
	}

	var polygons []geo.Polygon
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		var row exportRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, &ErrDatabaseUnavailable{Cause: fmt.Errorf("malformed export row: %w", err)}
		}
		if row.Destroyed {
			continue
		}
		if row.Table == "reservoirs" && len(allowed) > 0 && !allowed[row.Nature] {
			continue
		}
		ring := make([]geo.Point, len(row.Ring))
		for i, v := range row.Ring {
			ring[i] = geo.Point{X: v[0], Y: v[1]}
		}
		polygons = append(polygons, geo.Polygon{Ring: ring})
	}

	if len(polygons) == 0 {
		return nil, ErrDatabaseEmpty
	}
	return polygons, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// credentialsFromEnv lets an operator override VectorDB.Password with an
// environment variable rather than storing it in the config file, mirroring
// how the teacher's deploy package avoids embedding SSH secrets in JSON.
func credentialsFromEnv(key string) string {
	return os.Getenv(key)
}
