// Package migrations applies the embedded SQLite schema scripts.
package migrations

import (
	"cmp"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
)

const scriptsDir = "scripts"

type script struct {
	version int
	name    string
	body    string
}

// Run applies every script newer than the recorded schema version. Each
// script and its bookkeeping row commit together.
func Run(db *sql.DB) error {
	if err := ensureTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	todo, err := pending(db)
	if err != nil {
		return err
	}

	for _, s := range todo {
		if err := apply(db, s); err != nil {
			return fmt.Errorf("apply %s: %w", s.name, err)
		}
	}
	return nil
}

// Version returns the highest applied script version, 0 for a fresh file.
func Version(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM _migrations").Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// Pending lists the versions that Run would apply, ascending.
func Pending(db *sql.DB) ([]int, error) {
	todo, err := pending(db)
	if err != nil {
		return nil, err
	}
	versions := make([]int, 0, len(todo))
	for _, s := range todo {
		versions = append(versions, s.version)
	}
	return versions, nil
}

func ensureTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func pending(db *sql.DB) ([]script, error) {
	rows, err := db.Query("SELECT version FROM _migrations")
	if err != nil {
		return nil, fmt.Errorf("read applied versions: %w", err)
	}
	defer rows.Close()

	done := make(map[int]struct{})
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	all, err := loadScripts()
	if err != nil {
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return slices.DeleteFunc(all, func(s script) bool {
		_, ok := done[s.version]
		return ok
	}), nil
}

func loadScripts() ([]script, error) {
	entries, err := fs.ReadDir(FS, scriptsDir)
	if err != nil {
		return nil, err
	}

	var scripts []script
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		v, err := parseVersion(e.Name())
		if err != nil {
			return nil, err
		}
		body, err := fs.ReadFile(FS, path.Join(scriptsDir, e.Name()))
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script{version: v, name: e.Name(), body: string(body)})
	}

	slices.SortFunc(scripts, func(a, b script) int { return cmp.Compare(a.version, b.version) })
	for i := 1; i < len(scripts); i++ {
		if scripts[i].version == scripts[i-1].version {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s",
				scripts[i].version, scripts[i-1].name, scripts[i].name)
		}
	}
	return scripts, nil
}

// parseVersion reads the numeric prefix of NNN_name.sql.
func parseVersion(filename string) (int, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("invalid migration filename: %s", filename)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid migration version in %s", filename)
	}
	return v, nil
}

func apply(db *sql.DB, s script) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(s.body); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO _migrations (version, name) VALUES (?, ?)", s.version, s.name); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
