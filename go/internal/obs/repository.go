package obs

import (
	"context"
	"database/sql"
	"fmt"
)

// settingsID keys the single settings row, mirroring the one-match model.
const settingsID = 1

// Mapping names the mixer objects the scoreboard overlay lives in.
type Mapping struct {
	ShowScene string `json:"show"`
	HideScene string `json:"hide"`
	Source    string `json:"source"`
}

// DefaultMapping returns the venue's stock scene layout.
func DefaultMapping() Mapping {
	return Mapping{ShowScene: "Partita", HideScene: "Partita", Source: "Scoreboard Display"}
}

// Repository persists bridge settings and the scene mapping.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repository over the given database handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the settings table when it does not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS obs_settings (
    id         INT PRIMARY KEY,
    host       TEXT NOT NULL,
    port       INT  NOT NULL,
    password   TEXT NOT NULL DEFAULT '',
    show_scene TEXT NOT NULL,
    hide_scene TEXT NOT NULL,
    source     TEXT NOT NULL
)`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure obs settings schema: %w", err)
	}
	return nil
}

// LoadSettings returns the stored connection settings, or nil when none
// have been saved yet.
func (r *Repository) LoadSettings(ctx context.Context) (*Settings, error) {
	var s Settings
	err := r.db.QueryRowContext(ctx,
		`SELECT host, port, password FROM obs_settings WHERE id = $1`, settingsID,
	).Scan(&s.Host, &s.Port, &s.Password)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load obs settings: %w", err)
	}
	return &s, nil
}

// SaveSettings upserts the connection settings, leaving the scene mapping
// untouched (or at defaults for a fresh row).
func (r *Repository) SaveSettings(ctx context.Context, s Settings) error {
	m := DefaultMapping()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO obs_settings (id, host, port, password, show_scene, hide_scene, source)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    host = EXCLUDED.host,
    port = EXCLUDED.port,
    password = EXCLUDED.password`,
		settingsID, s.Host, s.Port, s.Password, m.ShowScene, m.HideScene, m.Source)
	if err != nil {
		return fmt.Errorf("save obs settings: %w", err)
	}
	return nil
}

// LoadMapping returns the stored scene mapping, falling back to defaults
// when no row exists.
func (r *Repository) LoadMapping(ctx context.Context) (Mapping, error) {
	var m Mapping
	err := r.db.QueryRowContext(ctx,
		`SELECT show_scene, hide_scene, source FROM obs_settings WHERE id = $1`, settingsID,
	).Scan(&m.ShowScene, &m.HideScene, &m.Source)
	if err == sql.ErrNoRows {
		return DefaultMapping(), nil
	}
	if err != nil {
		return Mapping{}, fmt.Errorf("load obs mapping: %w", err)
	}
	if m.ShowScene == "" {
		m.ShowScene = DefaultMapping().ShowScene
	}
	if m.HideScene == "" {
		m.HideScene = DefaultMapping().HideScene
	}
	if m.Source == "" {
		m.Source = DefaultMapping().Source
	}
	return m, nil
}

// SaveMapping upserts the scene mapping, leaving connection settings
// untouched (or blank for a fresh row).
func (r *Repository) SaveMapping(ctx context.Context, m Mapping) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO obs_settings (id, host, port, password, show_scene, hide_scene, source)
VALUES ($1, '', 0, '', $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
    show_scene = EXCLUDED.show_scene,
    hide_scene = EXCLUDED.hide_scene,
    source = EXCLUDED.source`,
		settingsID, m.ShowScene, m.HideScene, m.Source)
	if err != nil {
		return fmt.Errorf("save obs mapping: %w", err)
	}
	return nil
}
