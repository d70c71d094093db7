package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/yourorg/tradesim/pkg/types"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.Init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS simulation_runs (
			id TEXT PRIMARY KEY,
			origin TEXT NOT NULL,
			destination TEXT NOT NULL,
			mode TEXT NOT NULL,
			parameters TEXT NOT NULL,
			active TEXT NOT NULL,
			response TEXT NOT NULL,
			completed_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_completed ON simulation_runs(completed_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Get(key string) ([]byte, bool, error) {
	row := s.db.QueryRow(`SELECT value FROM kv WHERE key=?`, key)
	var out []byte
	if err := row.Scan(&out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return out, true, nil
}

func (s *SQLiteStore) Put(key string, value []byte) error {
	_, err := s.db.Exec(`INSERT INTO kv(key,value,updated_at) VALUES(?,?,?)
	ON CONFLICT(key) DO UPDATE SET value=excluded.value,updated_at=excluded.updated_at`,
		key, value, time.Now().UTC())
	return err
}

func (s *SQLiteStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key=?`, key)
	return err
}

func (s *SQLiteStore) SaveRun(run *types.RunSnapshot) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CompletedAt.IsZero() {
		run.CompletedAt = time.Now().UTC()
	}
	params, err := json.Marshal(run.Parameters)
	if err != nil {
		return err
	}
	resp, err := json.Marshal(run.Response)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO simulation_runs(id,origin,destination,mode,parameters,active,response,completed_at) VALUES(?,?,?,?,?,?,?,?)
	ON CONFLICT(id) DO UPDATE SET active=excluded.active,response=excluded.response,completed_at=excluded.completed_at`,
		run.ID, run.Corridor.Origin, run.Corridor.Destination, string(run.Mode), string(params), string(run.Active), string(resp), run.CompletedAt)
	return err
}

func (s *SQLiteStore) ListRuns(limit int) ([]types.RunSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT id,origin,destination,mode,parameters,active,response,completed_at FROM simulation_runs ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.RunSnapshot, 0)
	for rows.Next() {
		var r types.RunSnapshot
		var mode, active, paramsS, respS string
		if err := rows.Scan(&r.ID, &r.Corridor.Origin, &r.Corridor.Destination, &mode, &paramsS, &active, &respS, &r.CompletedAt); err != nil {
			return nil, err
		}
		r.Mode = types.RouteMode(mode)
		r.Active = types.Alternative(active)
		if paramsS != "" {
			_ = json.Unmarshal([]byte(paramsS), &r.Parameters)
		}
		if respS != "" {
			_ = json.Unmarshal([]byte(respS), &r.Response)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return errors.New("store is nil")
	}
	return s.db.Close()
}
