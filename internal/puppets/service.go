// Package puppets provides stream-scoped shared character identities,
// registered implicitly when a puppet message is sent, and the handler
// bookkeeping that routes puppet whispers to the humans behind them.
package puppets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberian/tulip/internal/db"
)

var (
	ErrPuppetNotFound    = errors.New("puppet not found")
	ErrWrongStream       = errors.New("puppet belongs to a different stream")
	ErrInvalidVisibility = errors.New("visibility mode must be open or claimed")
)

// Service provides puppet registration, handler tracking, and whisper
// recipient resolution.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a puppet service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "puppets")),
	}
}

const puppetColumns = "id, stream_id, name, avatar_url, color, visibility_mode, recent_handler_window_hours, created_by, last_used"

// Register upserts a puppet name in a stream when a puppet message is sent:
// it refreshes last_used, updates avatar/color when provided, and records
// the sender as a recent handler.
func (s *Service) Register(ctx context.Context, streamID, name, avatarURL, color, senderID string) (Puppet, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Puppet{}, fmt.Errorf("puppet name is required")
	}
	pgStream, err := db.ParseUUID(streamID)
	if err != nil {
		return Puppet{}, err
	}
	pgSender, err := db.ParseUUID(senderID)
	if err != nil {
		return Puppet{}, err
	}

	p, err := scanPuppet(s.pool.QueryRow(ctx, `
		INSERT INTO puppets (stream_id, name, avatar_url, color, created_by, last_used)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (stream_id, name) DO UPDATE SET
			last_used = now(),
			avatar_url = COALESCE($3, puppets.avatar_url),
			color = COALESCE($4, puppets.color),
			created_by = $5
		RETURNING `+puppetColumns,
		pgStream, name, db.ToPgText(avatarURL), db.ToPgText(color), pgSender,
	))
	if err != nil {
		return Puppet{}, err
	}

	pgPuppet, err := db.ParseUUID(p.ID)
	if err != nil {
		return Puppet{}, err
	}
	// The sender becomes a recent handler; a claimed handler keeps its type.
	_, err = s.pool.Exec(ctx, `
		INSERT INTO puppet_handlers (puppet_id, user_id, handler_type, last_used)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (puppet_id, user_id) DO UPDATE SET last_used = now()`,
		pgPuppet, pgSender, HandlerRecent,
	)
	if err != nil {
		return Puppet{}, err
	}
	return p, nil
}

// List returns all puppets registered in a stream, most recently used first.
func (s *Service) List(ctx context.Context, streamID string) ([]Puppet, error) {
	pgStream, err := db.ParseUUID(streamID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+puppetColumns+` FROM puppets WHERE stream_id = $1 ORDER BY last_used DESC`,
		pgStream)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	puppets := []Puppet{}
	for rows.Next() {
		p, err := scanPuppet(rows)
		if err != nil {
			return nil, err
		}
		puppets = append(puppets, p)
	}
	return puppets, rows.Err()
}

// GetByID returns a puppet by ID.
func (s *Service) GetByID(ctx context.Context, puppetID string) (Puppet, error) {
	pgID, err := db.ParseUUID(puppetID)
	if err != nil {
		return Puppet{}, err
	}
	p, err := scanPuppet(s.pool.QueryRow(ctx,
		`SELECT `+puppetColumns+` FROM puppets WHERE id = $1`, pgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Puppet{}, ErrPuppetNotFound
		}
		return Puppet{}, err
	}
	return p, nil
}

// ResolveWhisperRecipients maps puppet IDs to the user IDs that should
// receive whispers addressed to them. All puppets must belong to streamID.
// Claimed-mode puppets resolve to claimed handlers only; open-mode puppets
// resolve to handlers active within the puppet's recency window.
func (s *Service) ResolveWhisperRecipients(ctx context.Context, streamID string, puppetIDs []string) (map[string]struct{}, error) {
	userIDs := map[string]struct{}{}
	if len(puppetIDs) == 0 {
		return userIDs, nil
	}
	for _, puppetID := range puppetIDs {
		p, err := s.GetByID(ctx, puppetID)
		if err != nil {
			return nil, err
		}
		if p.StreamID != streamID {
			return nil, ErrWrongStream
		}
		handlers, err := s.handlers(ctx, puppetID)
		if err != nil {
			return nil, err
		}
		for _, id := range recipientsFor(p, handlers, time.Now()) {
			userIDs[id] = struct{}{}
		}
	}
	return userIDs, nil
}

// HandledPuppetIDs returns the IDs of puppets the user currently handles in
// one stream (empty streamID means all streams): claimed handlers always
// count, recent handlers only within the puppet's recency window for open
// puppets.
func (s *Service) HandledPuppetIDs(ctx context.Context, userID, streamID string) ([]string, error) {
	pgUser, err := db.ParseUUID(userID)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT h.puppet_id, h.handler_type, h.last_used,
		       p.visibility_mode, p.recent_handler_window_hours
		FROM puppet_handlers h
		JOIN puppets p ON p.id = h.puppet_id
		WHERE h.user_id = $1`
	args := []any{pgUser}
	if streamID != "" {
		pgStream, err := db.ParseUUID(streamID)
		if err != nil {
			return nil, err
		}
		query += ` AND p.stream_id = $2`
		args = append(args, pgStream)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now()
	var ids []string
	for rows.Next() {
		var (
			puppetID    pgtype.UUID
			handlerType string
			lastUsed    pgtype.Timestamptz
			visibility  string
			windowHours int
		)
		if err := rows.Scan(&puppetID, &handlerType, &lastUsed, &visibility, &windowHours); err != nil {
			return nil, err
		}
		switch {
		case handlerType == HandlerClaimed:
			ids = append(ids, db.UUIDToString(puppetID))
		case visibility == VisibilityOpen:
			cutoff := now.Add(-time.Duration(windowHours) * time.Hour)
			if !db.TimeFromPg(lastUsed).Before(cutoff) {
				ids = append(ids, db.UUIDToString(puppetID))
			}
		}
	}
	return ids, rows.Err()
}

// Claim explicitly claims a puppet for the user; an existing recent handler
// is upgraded to claimed.
func (s *Service) Claim(ctx context.Context, puppetID, userID string) error {
	if _, err := s.GetByID(ctx, puppetID); err != nil {
		return err
	}
	pgPuppet, _ := db.ParseUUID(puppetID)
	pgUser, err := db.ParseUUID(userID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO puppet_handlers (puppet_id, user_id, handler_type, last_used)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (puppet_id, user_id) DO UPDATE SET handler_type = $3, last_used = now()`,
		pgPuppet, pgUser, HandlerClaimed,
	)
	return err
}

// Unclaim removes the user's claimed handler row; recent handlers are left
// untouched. Reports whether a claim was removed.
func (s *Service) Unclaim(ctx context.Context, puppetID, userID string) (bool, error) {
	pgPuppet, err := db.ParseUUID(puppetID)
	if err != nil {
		return false, err
	}
	pgUser, err := db.ParseUUID(userID)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM puppet_handlers
		WHERE puppet_id = $1 AND user_id = $2 AND handler_type = $3`,
		pgPuppet, pgUser, HandlerClaimed,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetVisibility changes the puppet's visibility mode and optionally the
// recency window.
func (s *Service) SetVisibility(ctx context.Context, puppetID, mode string, windowHours *int) error {
	if mode != VisibilityOpen && mode != VisibilityClaimed {
		return ErrInvalidVisibility
	}
	if _, err := s.GetByID(ctx, puppetID); err != nil {
		return err
	}
	pgID, _ := db.ParseUUID(puppetID)
	if windowHours != nil {
		_, err := s.pool.Exec(ctx, `
			UPDATE puppets SET visibility_mode = $2, recent_handler_window_hours = $3
			WHERE id = $1`, pgID, mode, *windowHours)
		return err
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE puppets SET visibility_mode = $2 WHERE id = $1`, pgID, mode)
	return err
}

// CleanupStaleHandlers removes recent handlers of open puppets whose
// last_used fell outside the puppet's recency window. Claimed handlers are
// never removed. With dryRun it only counts.
func (s *Service) CleanupStaleHandlers(ctx context.Context, dryRun bool) (int64, error) {
	const staleWhere = `
		FROM puppet_handlers h
		JOIN puppets p ON p.id = h.puppet_id
		WHERE h.handler_type = 'recent'
		  AND p.visibility_mode = 'open'
		  AND h.last_used < now() - make_interval(hours => p.recent_handler_window_hours)`

	if dryRun {
		var count int64
		err := s.pool.QueryRow(ctx, `SELECT count(*) `+staleWhere).Scan(&count)
		return count, err
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM puppet_handlers WHERE id IN (SELECT h.id `+staleWhere+`)`)
	if err != nil {
		return 0, err
	}
	deleted := tag.RowsAffected()
	if deleted > 0 {
		s.logger.Info("removed stale puppet handlers", slog.Int64("count", deleted))
	}
	return deleted, nil
}

// recipientsFor applies the puppet's visibility rules to its handlers:
// claimed mode admits only claimed handlers; open mode admits any handler
// whose last use falls within the recency window.
func recipientsFor(p Puppet, handlers []Handler, now time.Time) []string {
	cutoff := now.Add(-time.Duration(p.RecentHandlerWindowHours) * time.Hour)
	var out []string
	for _, h := range handlers {
		switch p.VisibilityMode {
		case VisibilityClaimed:
			if h.HandlerType == HandlerClaimed {
				out = append(out, h.UserID)
			}
		default:
			if !h.LastUsed.Before(cutoff) {
				out = append(out, h.UserID)
			}
		}
	}
	return out
}

func scanPuppet(row pgx.Row) (Puppet, error) {
	var (
		id, streamID     pgtype.UUID
		avatarURL, color pgtype.Text
		createdBy        pgtype.UUID
		lastUsed         pgtype.Timestamptz
		p                Puppet
	)
	err := row.Scan(&id, &streamID, &p.Name, &avatarURL, &color,
		&p.VisibilityMode, &p.RecentHandlerWindowHours, &createdBy, &lastUsed)
	if err != nil {
		return Puppet{}, err
	}
	p.ID = db.UUIDToString(id)
	p.StreamID = db.UUIDToString(streamID)
	p.AvatarURL = db.TextToString(avatarURL)
	p.Color = db.TextToString(color)
	p.CreatedBy = db.UUIDToString(createdBy)
	p.LastUsed = db.TimeFromPg(lastUsed)
	return p, nil
}

func (s *Service) handlers(ctx context.Context, puppetID string) ([]Handler, error) {
	pgID, err := db.ParseUUID(puppetID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT puppet_id, user_id, handler_type, last_used
		FROM puppet_handlers WHERE puppet_id = $1`, pgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var handlers []Handler
	for rows.Next() {
		var (
			pID, uID pgtype.UUID
			lastUsed pgtype.Timestamptz
			h        Handler
		)
		if err := rows.Scan(&pID, &uID, &h.HandlerType, &lastUsed); err != nil {
			return nil, err
		}
		h.PuppetID = db.UUIDToString(pID)
		h.UserID = db.UUIDToString(uID)
		h.LastUsed = db.TimeFromPg(lastUsed)
		handlers = append(handlers, h)
	}
	return handlers, rows.Err()
}
