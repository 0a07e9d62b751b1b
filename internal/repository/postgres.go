package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nightcouncil/werewolf-server/internal/match"
)

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	id               TEXT PRIMARY KEY,
	phase            TEXT NOT NULL,
	day_number       INT NOT NULL,
	night_number     INT NOT NULL,
	phase_started_at TIMESTAMPTZ NOT NULL,
	phase_ends_at    TIMESTAMPTZ NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	ended_at         TIMESTAMPTZ,
	winner           TEXT NOT NULL DEFAULT '',
	public_summary   TEXT NOT NULL DEFAULT '',
	players_alive    INT NOT NULL
);

CREATE TABLE IF NOT EXISTS players (
	match_id                 TEXT NOT NULL REFERENCES matches(id),
	player_id                TEXT NOT NULL,
	display_name             TEXT NOT NULL,
	seat                     INT NOT NULL,
	role                     TEXT NOT NULL,
	alive                    BOOLEAN NOT NULL,
	ready                    BOOLEAN NOT NULL,
	missed_responses         INT NOT NULL,
	eliminated_at            TIMESTAMPTZ,
	revealed_role            TEXT NOT NULL DEFAULT '',
	doctor_last_protected    TEXT NOT NULL DEFAULT '',
	seer_history             JSONB NOT NULL DEFAULT '[]',
	opening_day              INT NOT NULL DEFAULT 0,
	vote_cast                BOOLEAN NOT NULL DEFAULT FALSE,
	vote_target              TEXT NOT NULL DEFAULT '',
	public_cooldown_until    TIMESTAMPTZ,
	wolf_chat_cooldown_until TIMESTAMPTZ,
	night_kill_target        TEXT NOT NULL DEFAULT '',
	night_inspect_target     TEXT NOT NULL DEFAULT '',
	night_protect_target     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (match_id, player_id)
);

CREATE TABLE IF NOT EXISTS events (
	match_id   TEXT NOT NULL REFERENCES matches(id),
	seq        BIGINT NOT NULL,
	id         TEXT NOT NULL,
	type       TEXT NOT NULL,
	scope      TEXT NOT NULL,
	scope_player TEXT NOT NULL DEFAULT '',
	at         TIMESTAMPTZ NOT NULL,
	payload    JSONB NOT NULL,
	PRIMARY KEY (match_id, seq)
);

CREATE TABLE IF NOT EXISTS round_reservations (
	match_id         TEXT NOT NULL,
	phase            TEXT NOT NULL,
	phase_started_at TIMESTAMPTZ NOT NULL,
	round_index      INT NOT NULL,
	reserved_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (match_id, phase, phase_started_at, round_index)
);

CREATE TABLE IF NOT EXISTS command_results (
	match_id  TEXT NOT NULL,
	player_id TEXT NOT NULL,
	scope     TEXT NOT NULL,
	key       TEXT NOT NULL,
	event_id  TEXT NOT NULL,
	detail    TEXT NOT NULL DEFAULT '',
	stored_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (match_id, player_id, scope, key)
);
`

// PGStore is the Postgres-backed Store.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPGStore wraps a pgx pool as a Store.
func NewPGStore(pool *pgxpool.Pool, logger *zap.Logger) *PGStore {
	return &PGStore{pool: pool, logger: logger}
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PGStore) CreateMatch(ctx context.Context, m match.Match) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := insertMatchRow(ctx, tx, m); err != nil {
			return err
		}
		for _, p := range m.Players {
			if err := upsertPlayerRow(ctx, tx, m.ID, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PGStore) LoadMatch(ctx context.Context, matchID string) (match.Match, error) {
	var m match.Match
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT id, phase, day_number, night_number, phase_started_at,
			       phase_ends_at, started_at, ended_at, winner,
			       public_summary, players_alive
			FROM matches WHERE id = $1`, matchID)
		var phase, winner string
		var endedAt *time.Time
		if err := row.Scan(&m.ID, &phase, &m.DayNumber, &m.NightNumber,
			&m.PhaseStartedAt, &m.PhaseEndsAt, &m.StartedAt, &endedAt,
			&winner, &m.PublicSummary, &m.PlayersAlive); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("load match %s: %w", matchID, err)
		}
		m.Phase = match.Phase(phase)
		m.Winner = match.Winner(winner)
		m.EndedAt = endedAt

		players, err := loadPlayerRows(ctx, tx, matchID)
		if err != nil {
			return err
		}
		m.Players = players
		return nil
	})
	return m, err
}

func (s *PGStore) WriteMatch(ctx context.Context, prev, next match.Match) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE matches SET
				phase = $1, day_number = $2, night_number = $3,
				phase_started_at = $4, phase_ends_at = $5, started_at = $6,
				ended_at = $7, winner = $8, public_summary = $9,
				players_alive = $10
			WHERE id = $11 AND phase = $12 AND phase_started_at = $13 AND phase_ends_at = $14`,
			string(next.Phase), next.DayNumber, next.NightNumber,
			next.PhaseStartedAt, next.PhaseEndsAt, next.StartedAt,
			next.EndedAt, string(next.Winner), next.PublicSummary,
			next.PlayersAlive,
			prev.ID, string(prev.Phase), prev.PhaseStartedAt, prev.PhaseEndsAt)
		if err != nil {
			return fmt.Errorf("write match %s: %w", prev.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStale
		}
		for _, p := range next.Players {
			if err := upsertPlayerRow(ctx, tx, next.ID, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PGStore) AppendEvents(ctx context.Context, matchID string, events []match.Event) ([]match.Event, error) {
	out := make([]match.Event, 0, len(events))
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Serialize appenders for the match so seq stays gapless and
		// monotonic.
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1))`, matchID); err != nil {
			return fmt.Errorf("lock event log for %s: %w", matchID, err)
		}
		var seq int64
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM events WHERE match_id = $1`,
			matchID).Scan(&seq); err != nil {
			return fmt.Errorf("next event seq for %s: %w", matchID, err)
		}
		for _, e := range events {
			seq++
			e.Seq = seq
			payload, err := match.MarshalPayload(e.Payload)
			if err != nil {
				return fmt.Errorf("marshal payload for %s: %w", e.Type, err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO events (match_id, seq, id, type, scope, scope_player, at, payload)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				matchID, e.Seq, e.ID, string(e.Type),
				string(e.Visibility.Scope), e.Visibility.PlayerID, e.At, payload); err != nil {
				return fmt.Errorf("append event %s: %w", e.ID, err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PGStore) ListEvents(ctx context.Context, matchID string, afterSeq int64, limit int) ([]match.Event, error) {
	q := `
		SELECT seq, id, type, scope, scope_player, at, payload
		FROM events WHERE match_id = $1 AND seq > $2 ORDER BY seq`
	args := []any{matchID, afterSeq}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", matchID, err)
	}
	defer rows.Close()

	var out []match.Event
	for rows.Next() {
		var e match.Event
		var typ, scope, scopePlayer string
		var payload []byte
		if err := rows.Scan(&e.Seq, &e.ID, &typ, &scope, &scopePlayer, &e.At, &payload); err != nil {
			return nil, err
		}
		e.MatchID = matchID
		e.Type = match.EventType(typ)
		e.Visibility = match.Visibility{Scope: match.VisibilityScope(scope), PlayerID: scopePlayer}
		decoded, err := match.UnmarshalPayload(e.Type, payload)
		if err != nil {
			return nil, err
		}
		e.Payload = decoded
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGStore) ReserveRound(ctx context.Context, key RoundKey) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO round_reservations (match_id, phase, phase_started_at, round_index)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`,
		key.MatchID, string(key.Phase), key.PhaseStartedAt, key.RoundIndex)
	if err != nil {
		return false, fmt.Errorf("reserve round: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) GetCommandResult(ctx context.Context, key CommandKey) (CommandResult, bool, error) {
	var r CommandResult
	err := s.pool.QueryRow(ctx, `
		SELECT event_id, detail FROM command_results
		WHERE match_id = $1 AND player_id = $2 AND scope = $3 AND key = $4`,
		key.MatchID, key.PlayerID, key.Scope, key.Key).Scan(&r.EventID, &r.Detail)
	if errors.Is(err, pgx.ErrNoRows) {
		return CommandResult{}, false, nil
	}
	if err != nil {
		return CommandResult{}, false, fmt.Errorf("get command result: %w", err)
	}
	return r, true, nil
}

func (s *PGStore) PutCommandResult(ctx context.Context, key CommandKey, result CommandResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO command_results (match_id, player_id, scope, key, event_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (match_id, player_id, scope, key) DO NOTHING`,
		key.MatchID, key.PlayerID, key.Scope, key.Key, result.EventID, result.Detail)
	if err != nil {
		return fmt.Errorf("put command result: %w", err)
	}
	return nil
}

func insertMatchRow(ctx context.Context, tx pgx.Tx, m match.Match) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO matches (id, phase, day_number, night_number,
			phase_started_at, phase_ends_at, started_at, ended_at, winner,
			public_summary, players_alive)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, string(m.Phase), m.DayNumber, m.NightNumber,
		m.PhaseStartedAt, m.PhaseEndsAt, m.StartedAt, m.EndedAt,
		string(m.Winner), m.PublicSummary, m.PlayersAlive)
	if err != nil {
		return fmt.Errorf("insert match %s: %w", m.ID, err)
	}
	return nil
}

func upsertPlayerRow(ctx context.Context, tx pgx.Tx, matchID string, p match.Player) error {
	history, err := marshalSeerHistory(p.SeerHistory)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO players (match_id, player_id, display_name, seat, role,
			alive, ready, missed_responses, eliminated_at, revealed_role,
			doctor_last_protected, seer_history, opening_day, vote_cast,
			vote_target, public_cooldown_until, wolf_chat_cooldown_until,
			night_kill_target, night_inspect_target, night_protect_target)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20)
		ON CONFLICT (match_id, player_id) DO UPDATE SET
			alive = EXCLUDED.alive,
			ready = EXCLUDED.ready,
			missed_responses = EXCLUDED.missed_responses,
			eliminated_at = EXCLUDED.eliminated_at,
			revealed_role = EXCLUDED.revealed_role,
			doctor_last_protected = EXCLUDED.doctor_last_protected,
			seer_history = EXCLUDED.seer_history,
			opening_day = EXCLUDED.opening_day,
			vote_cast = EXCLUDED.vote_cast,
			vote_target = EXCLUDED.vote_target,
			public_cooldown_until = EXCLUDED.public_cooldown_until,
			wolf_chat_cooldown_until = EXCLUDED.wolf_chat_cooldown_until,
			night_kill_target = EXCLUDED.night_kill_target,
			night_inspect_target = EXCLUDED.night_inspect_target,
			night_protect_target = EXCLUDED.night_protect_target`,
		matchID, p.ID, p.DisplayName, p.Seat, string(p.Role),
		p.Alive, p.Ready, p.MissedResponses, p.EliminatedAt, string(p.RevealedRole),
		p.DoctorLastProtectedID, history, p.OpeningDay, p.Vote.Cast,
		p.Vote.TargetID, nullableTime(p.PublicCooldownUntil), nullableTime(p.WolfChatCooldownUntil),
		p.Night.KillTargetID, p.Night.InspectTargetID, p.Night.ProtectTargetID)
	if err != nil {
		return fmt.Errorf("upsert player %s: %w", p.ID, err)
	}
	return nil
}

func loadPlayerRows(ctx context.Context, tx pgx.Tx, matchID string) ([]match.Player, error) {
	rows, err := tx.Query(ctx, `
		SELECT player_id, display_name, seat, role, alive, ready,
		       missed_responses, eliminated_at, revealed_role,
		       doctor_last_protected, seer_history, opening_day, vote_cast,
		       vote_target, public_cooldown_until, wolf_chat_cooldown_until,
		       night_kill_target, night_inspect_target, night_protect_target
		FROM players WHERE match_id = $1 ORDER BY seat`, matchID)
	if err != nil {
		return nil, fmt.Errorf("load players for %s: %w", matchID, err)
	}
	defer rows.Close()

	var out []match.Player
	for rows.Next() {
		var p match.Player
		var role, revealed string
		var history []byte
		var publicCooldown, wolfCooldown *time.Time
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Seat, &role, &p.Alive,
			&p.Ready, &p.MissedResponses, &p.EliminatedAt, &revealed,
			&p.DoctorLastProtectedID, &history, &p.OpeningDay, &p.Vote.Cast,
			&p.Vote.TargetID, &publicCooldown, &wolfCooldown,
			&p.Night.KillTargetID, &p.Night.InspectTargetID, &p.Night.ProtectTargetID); err != nil {
			return nil, err
		}
		p.Role = match.Role(role)
		p.RevealedRole = match.Role(revealed)
		if publicCooldown != nil {
			p.PublicCooldownUntil = *publicCooldown
		}
		if wolfCooldown != nil {
			p.WolfChatCooldownUntil = *wolfCooldown
		}
		if p.SeerHistory, err = unmarshalSeerHistory(history); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
