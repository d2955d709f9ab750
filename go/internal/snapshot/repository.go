package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sqlc-dev/pqtype"

	"github.com/marazzai/scoreboard/go/internal/match"
	"github.com/marazzai/scoreboard/go/internal/sqlutil"
)

// snapshotID keys the single snapshot row: the design assumes exactly one
// concurrent match per process.
const snapshotID = 1

// Repository persists match snapshots to Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repository over the given database handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the snapshot table when it does not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS match_snapshot (
    id                 INT PRIMARY KEY,
    home_goals         INT         NOT NULL,
    away_goals         INT         NOT NULL,
    period             INT         NOT NULL,
    time_seconds       INT         NOT NULL,
    timer_running      BOOLEAN     NOT NULL,
    team_home          TEXT        NOT NULL,
    team_guest         TEXT        NOT NULL,
    siren_every_minute BOOLEAN     NOT NULL,
    home_penalties     JSONB       NOT NULL,
    guest_penalties    JSONB       NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure snapshot schema: %w", err)
	}
	return nil
}

// Save upserts the snapshot row with the given state.
func (r *Repository) Save(ctx context.Context, s match.State) error {
	home, err := marshalSlots(s.HomePenalties)
	if err != nil {
		return fmt.Errorf("marshal home penalties: %w", err)
	}
	guest, err := marshalSlots(s.GuestPenalties)
	if err != nil {
		return fmt.Errorf("marshal guest penalties: %w", err)
	}

	const upsert = `
INSERT INTO match_snapshot (
    id, home_goals, away_goals, period, time_seconds, timer_running,
    team_home, team_guest, siren_every_minute, home_penalties,
    guest_penalties, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
ON CONFLICT (id) DO UPDATE SET
    home_goals = EXCLUDED.home_goals,
    away_goals = EXCLUDED.away_goals,
    period = EXCLUDED.period,
    time_seconds = EXCLUDED.time_seconds,
    timer_running = EXCLUDED.timer_running,
    team_home = EXCLUDED.team_home,
    team_guest = EXCLUDED.team_guest,
    siren_every_minute = EXCLUDED.siren_every_minute,
    home_penalties = EXCLUDED.home_penalties,
    guest_penalties = EXCLUDED.guest_penalties,
    updated_at = now()`

	return sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, upsert,
			snapshotID, s.HomeGoals, s.AwayGoals, s.Period, s.TimeSeconds,
			s.TimerRunning, s.TeamHome, s.TeamGuest, s.SirenEveryMinute,
			home.RawMessage, guest.RawMessage,
		)
		if err != nil {
			return fmt.Errorf("upsert snapshot: %w", err)
		}
		return nil
	})
}

// Load returns the stored snapshot, or nil when none has been saved yet.
func (r *Repository) Load(ctx context.Context) (*match.State, error) {
	const query = `
SELECT home_goals, away_goals, period, time_seconds, timer_running,
       team_home, team_guest, siren_every_minute, home_penalties,
       guest_penalties
FROM match_snapshot WHERE id = $1`

	var s match.State
	var home, guest pqtype.NullRawMessage
	err := r.db.QueryRowContext(ctx, query, snapshotID).Scan(
		&s.HomeGoals, &s.AwayGoals, &s.Period, &s.TimeSeconds,
		&s.TimerRunning, &s.TeamHome, &s.TeamGuest, &s.SirenEveryMinute,
		&home, &guest,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	if s.HomePenalties, err = unmarshalSlots(home); err != nil {
		return nil, fmt.Errorf("unmarshal home penalties: %w", err)
	}
	if s.GuestPenalties, err = unmarshalSlots(guest); err != nil {
		return nil, fmt.Errorf("unmarshal guest penalties: %w", err)
	}
	return &s, nil
}

func marshalSlots(slots [2]match.PenaltySlot) (pqtype.NullRawMessage, error) {
	b, err := json.Marshal(slots[:])
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: b, Valid: true}, nil
}

func unmarshalSlots(raw pqtype.NullRawMessage) ([2]match.PenaltySlot, error) {
	out := [2]match.PenaltySlot{match.FreeSlot(), match.FreeSlot()}
	if !raw.Valid {
		return out, nil
	}
	var slots []match.PenaltySlot
	if err := json.Unmarshal(raw.RawMessage, &slots); err != nil {
		return out, err
	}
	for i := 0; i < len(out) && i < len(slots); i++ {
		out[i] = slots[i]
	}
	return out, nil
}
