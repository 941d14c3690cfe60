package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, err
	}

	// Create events table
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS events(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL,
		level TEXT,
		code TEXT,
		msg TEXT,
		meta TEXT
	)`); err != nil {
		db.Close()
		return nil, err
	}

	// Create tasks table holding the submitted command and its latest state
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tasks(
		task_id TEXT PRIMARY KEY,
		created_ts REAL,
		updated_ts REAL,
		task_name TEXT,
		operator TEXT,
		target_module TEXT,
		command_json TEXT,
		status TEXT,
		metrics_json TEXT,
		error TEXT
	)`); err != nil {
		db.Close()
		return nil, err
	}

	// Create campaigns table with the full research campaign outcome
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS campaigns(
		id TEXT PRIMARY KEY,
		ts REAL,
		goal TEXT,
		optimization_target TEXT,
		completed_steps INTEGER,
		goal_progress REAL,
		result_json TEXT
	)`); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

func (db *DB) Event(level, code, msg string, meta map[string]interface{}) {
	m := ""
	if meta != nil {
		b, _ := json.Marshal(meta)
		m = string(b)
	}
	_, _ = db.Exec(`INSERT INTO events(ts,level,code,msg,meta) VALUES(?,?,?,?,?)`,
		UnixSeconds(time.Now()), level, code, msg, m)
}

// UnixSeconds is the REAL timestamp format used by every table
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromUnixSeconds converts a stored timestamp back to time.Time
func FromUnixSeconds(ts float64) time.Time {
	return time.Unix(0, int64(ts*1e9))
}
