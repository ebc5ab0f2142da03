package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jgoulah/waterscraper/pkg/models"
)

const timeLayout = "2006-01-02 15:04:05"

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS water_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		gallons REAL NOT NULL,
		temperature_f REAL NOT NULL,
		precipitation_in REAL NOT NULL,
		humidity_percent REAL NOT NULL,
		created_at TEXT NOT NULL,
		published INTEGER DEFAULT 0,
		UNIQUE(period_start)
	);
	CREATE INDEX IF NOT EXISTS idx_water_period_start ON water_usage(period_start);
	CREATE INDEX IF NOT EXISTS idx_water_published ON water_usage(published);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// StoredRecord is a usage record with its database bookkeeping
type StoredRecord struct {
	ID        int
	Record    models.UsageRecord
	Published bool
}

// InsertRecord upserts a usage record. A re-scrape of the same hour replaces
// the earlier row, matching the normalizer's last-seen-wins rule.
func (db *DB) InsertRecord(rec models.UsageRecord) error {
	query := `
	INSERT INTO water_usage (period_start, period_end, gallons, temperature_f, precipitation_in, humidity_percent, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(period_start) DO UPDATE SET
		period_end = excluded.period_end,
		gallons = excluded.gallons,
		temperature_f = excluded.temperature_f,
		precipitation_in = excluded.precipitation_in,
		humidity_percent = excluded.humidity_percent
	`

	_, err := db.conn.Exec(query,
		rec.PeriodStart.Format(timeLayout),
		rec.PeriodEnd.Format(timeLayout),
		rec.Gallons,
		rec.TemperatureF,
		rec.PrecipitationIn,
		rec.HumidityPercent,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}

	return nil
}

// ListRecords retrieves all stored usage records ordered by period start
func (db *DB) ListRecords() ([]StoredRecord, error) {
	return db.list(`
	SELECT id, period_start, period_end, gallons, temperature_f, precipitation_in, humidity_percent, published
	FROM water_usage
	ORDER BY period_start
	`)
}

// ListUnpublished retrieves stored records not yet pushed to Home Assistant
func (db *DB) ListUnpublished() ([]StoredRecord, error) {
	return db.list(`
	SELECT id, period_start, period_end, gallons, temperature_f, precipitation_in, humidity_percent, published
	FROM water_usage
	WHERE published = 0
	ORDER BY period_start
	`)
}

func (db *DB) list(query string) ([]StoredRecord, error) {
	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("querying usage records: %w", err)
	}
	defer rows.Close()

	var results []StoredRecord
	for rows.Next() {
		var sr StoredRecord
		var startStr, endStr string
		var published int

		if err := rows.Scan(&sr.ID, &startStr, &endStr,
			&sr.Record.Gallons, &sr.Record.TemperatureF,
			&sr.Record.PrecipitationIn, &sr.Record.HumidityPercent,
			&published); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		sr.Record.PeriodStart, err = time.Parse(timeLayout, startStr)
		if err != nil {
			return nil, fmt.Errorf("parsing period_start: %w", err)
		}
		sr.Record.PeriodEnd, err = time.Parse(timeLayout, endStr)
		if err != nil {
			return nil, fmt.Errorf("parsing period_end: %w", err)
		}
		sr.Published = published != 0

		results = append(results, sr)
	}

	return results, rows.Err()
}

// LatestPeriod returns the most recent stored period start, or the zero time
// when the table is empty.
func (db *DB) LatestPeriod() (time.Time, error) {
	row := db.conn.QueryRow(`SELECT MAX(period_start) FROM water_usage`)

	var s sql.NullString
	if err := row.Scan(&s); err != nil {
		return time.Time{}, fmt.Errorf("querying latest period: %w", err)
	}
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing latest period: %w", err)
	}
	return t, nil
}

// MarkPublished marks a usage record as published
func (db *DB) MarkPublished(id int) error {
	_, err := db.conn.Exec(`UPDATE water_usage SET published = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking record as published: %w", err)
	}
	return nil
}
