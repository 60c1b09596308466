// Package streams provides channel (stream) records and membership, the
// scope for puppet registration and message visibility.
package streams

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberian/tulip/internal/db"
)

var ErrStreamNotFound = errors.New("stream not found")

// Stream is a named channel within a realm.
type Stream struct {
	ID        string    `json:"id"`
	RealmID   string    `json:"realm_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Service provides stream CRUD and membership operations.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a stream service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "streams")),
	}
}

// Ensure returns the stream with the given name in a realm, creating it when absent.
func (s *Service) Ensure(ctx context.Context, realmID, name string) (Stream, error) {
	pgRealm, err := db.ParseUUID(realmID)
	if err != nil {
		return Stream{}, err
	}
	name = strings.TrimSpace(name)
	row := s.pool.QueryRow(ctx, `
		INSERT INTO streams (realm_id, name) VALUES ($1, $2)
		ON CONFLICT (realm_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, realm_id, name, created_at`,
		pgRealm, name,
	)
	return scanStream(row)
}

// ListRealm returns all streams in a realm, alphabetically.
func (s *Service) ListRealm(ctx context.Context, realmID string) ([]Stream, error) {
	pgRealm, err := db.ParseUUID(realmID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, realm_id, name, created_at FROM streams WHERE realm_id = $1 ORDER BY name`,
		pgRealm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	streams := []Stream{}
	for rows.Next() {
		st, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		streams = append(streams, st)
	}
	return streams, rows.Err()
}

// GetByID returns a stream by ID.
func (s *Service) GetByID(ctx context.Context, streamID string) (Stream, error) {
	id, err := db.ParseUUID(streamID)
	if err != nil {
		return Stream{}, err
	}
	st, err := scanStream(s.pool.QueryRow(ctx,
		`SELECT id, realm_id, name, created_at FROM streams WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stream{}, ErrStreamNotFound
		}
		return Stream{}, err
	}
	return st, nil
}

// Subscribe adds a user to a stream; subscribing twice is a no-op.
func (s *Service) Subscribe(ctx context.Context, streamID, userID string) error {
	pgStream, err := db.ParseUUID(streamID)
	if err != nil {
		return err
	}
	pgUser, err := db.ParseUUID(userID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO stream_members (stream_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		pgStream, pgUser,
	)
	return err
}

// IsMember reports whether the user is subscribed to the stream.
func (s *Service) IsMember(ctx context.Context, streamID, userID string) (bool, error) {
	pgStream, err := db.ParseUUID(streamID)
	if err != nil {
		return false, err
	}
	pgUser, err := db.ParseUUID(userID)
	if err != nil {
		return false, err
	}
	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM stream_members WHERE stream_id = $1 AND user_id = $2)`,
		pgStream, pgUser,
	).Scan(&exists)
	return exists, err
}

// MemberIDs returns the IDs of all users subscribed to the stream.
func (s *Service) MemberIDs(ctx context.Context, streamID string) ([]string, error) {
	pgStream, err := db.ParseUUID(streamID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM stream_members WHERE stream_id = $1`, pgStream)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, db.UUIDToString(id))
	}
	return ids, rows.Err()
}

func scanStream(row pgx.Row) (Stream, error) {
	var (
		id, realmID pgtype.UUID
		createdAt   pgtype.Timestamptz
		st          Stream
	)
	if err := row.Scan(&id, &realmID, &st.Name, &createdAt); err != nil {
		return Stream{}, err
	}
	st.ID = db.UUIDToString(id)
	st.RealmID = db.UUIDToString(realmID)
	st.CreatedAt = db.TimeFromPg(createdAt)
	return st, nil
}
