// Package presence tracks bot connection state: one row per bot with a
// connected flag and last-seen timestamp, mutated by heartbeats and by the
// delivery workers' connect/disconnect signals.
package presence

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberian/tulip/internal/db"
	"github.com/emberian/tulip/internal/events"
)

// Heartbeat statuses accepted from bots.
const (
	StatusConnected = "connected"
	StatusIdle      = "idle"
)

var ErrUnknownStatus = errors.New("status must be connected or idle")

// Presence is the connection state of one bot.
type Presence struct {
	BotID     string    `json:"bot_id"`
	Connected bool      `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// HeartbeatRequest is the body for POST /api/v1/bots/me/presence.
type HeartbeatRequest struct {
	Status string `json:"status"`
}

// Service provides bot presence tracking.
type Service struct {
	pool   *pgxpool.Pool
	stream *events.Registry
	logger *slog.Logger
}

// NewService creates a presence service.
func NewService(log *slog.Logger, pool *pgxpool.Pool, stream *events.Registry) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		stream: stream,
		logger: log.With(slog.String("service", "presence")),
	}
}

// Get returns the presence row for a bot; bots that never connected report
// as disconnected.
func (s *Service) Get(ctx context.Context, botID string) (Presence, error) {
	pgBot, err := db.ParseUUID(botID)
	if err != nil {
		return Presence{}, err
	}
	var (
		connected bool
		lastSeen  pgtype.Timestamptz
	)
	err = s.pool.QueryRow(ctx,
		`SELECT connected, last_seen FROM bot_presence WHERE bot_id = $1`, pgBot,
	).Scan(&connected, &lastSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Presence{BotID: botID}, nil
		}
		return Presence{}, err
	}
	return Presence{BotID: botID, Connected: connected, LastSeen: db.TimeFromPg(lastSeen)}, nil
}

// Heartbeat records a bot heartbeat, upserting its presence row. The
// connect/disconnect transition (if any) is announced realm-wide.
func (s *Service) Heartbeat(ctx context.Context, botID, realmID, status string) (Presence, error) {
	switch status {
	case StatusConnected, StatusIdle:
	default:
		return Presence{}, ErrUnknownStatus
	}
	return s.setConnected(ctx, botID, realmID, status == StatusConnected)
}

// MarkConnected is the queue workers' connect signal after a successful delivery.
func (s *Service) MarkConnected(ctx context.Context, botID, realmID string) error {
	_, err := s.setConnected(ctx, botID, realmID, true)
	return err
}

// MarkDisconnected is the queue workers' disconnect signal after delivery
// gives up on a bot.
func (s *Service) MarkDisconnected(ctx context.Context, botID, realmID string) error {
	_, err := s.setConnected(ctx, botID, realmID, false)
	return err
}

func (s *Service) setConnected(ctx context.Context, botID, realmID string, connected bool) (Presence, error) {
	pgBot, err := db.ParseUUID(botID)
	if err != nil {
		return Presence{}, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Presence{}, err
	}
	defer tx.Rollback(ctx)

	var wasConnected pgtype.Bool
	err = tx.QueryRow(ctx,
		`SELECT connected FROM bot_presence WHERE bot_id = $1 FOR UPDATE`, pgBot,
	).Scan(&wasConnected.Bool)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Presence{}, err
	}
	wasConnected.Valid = err == nil

	var lastSeen pgtype.Timestamptz
	err = tx.QueryRow(ctx, `
		INSERT INTO bot_presence (bot_id, connected, last_seen)
		VALUES ($1, $2, now())
		ON CONFLICT (bot_id) DO UPDATE SET connected = $2, last_seen = now()
		RETURNING last_seen`,
		pgBot, connected,
	).Scan(&lastSeen)
	if err != nil {
		return Presence{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Presence{}, err
	}

	p := Presence{BotID: botID, Connected: connected, LastSeen: db.TimeFromPg(lastSeen)}
	if !wasConnected.Valid || wasConnected.Bool != connected {
		s.announce(realmID, p)
	}
	return p, nil
}

// SweepIdle marks bots disconnected when their last heartbeat is older than
// idleTimeout, announcing each transition once. Returns how many bots were
// swept.
func (s *Service) SweepIdle(ctx context.Context, idleTimeout time.Duration) (int, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE bot_presence bp SET connected = FALSE
		FROM users u
		WHERE u.id = bp.bot_id
		  AND bp.connected
		  AND bp.last_seen < now() - make_interval(secs => $1)
		RETURNING bp.bot_id, u.realm_id, bp.last_seen`,
		idleTimeout.Seconds())
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	swept := 0
	for rows.Next() {
		var (
			botID, realmID pgtype.UUID
			lastSeen       pgtype.Timestamptz
		)
		if err := rows.Scan(&botID, &realmID, &lastSeen); err != nil {
			return swept, err
		}
		s.announce(db.UUIDToString(realmID), Presence{
			BotID:    db.UUIDToString(botID),
			LastSeen: db.TimeFromPg(lastSeen),
		})
		swept++
	}
	if swept > 0 {
		s.logger.Info("marked idle bots disconnected", slog.Int("count", swept))
	}
	return swept, rows.Err()
}

func (s *Service) announce(realmID string, p Presence) {
	if realmID == "" {
		return
	}
	s.stream.SendToRealm(realmID, events.NewPayload(events.TypeBotPresence, "", p))
}
