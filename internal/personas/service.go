// Package personas provides user-owned display identities ("post as X")
// with soft delete and owner-scoped realtime events.
package personas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberian/tulip/internal/db"
	"github.com/emberian/tulip/internal/events"
)

var (
	ErrPersonaNotFound = errors.New("persona does not exist")
	ErrDuplicateName   = errors.New("you already have a persona with this name")
	ErrPersonaLimit    = fmt.Errorf("you have reached the maximum number of personas (%d)", MaxPerUser)
	ErrInvalidPersona  = errors.New("invalid persona")
)

var colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Service provides persona lifecycle operations.
type Service struct {
	pool   *pgxpool.Pool
	stream *events.Registry
	logger *slog.Logger
}

// NewService creates a persona service.
func NewService(log *slog.Logger, pool *pgxpool.Pool, stream *events.Registry) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		stream: stream,
		logger: log.With(slog.String("service", "personas")),
	}
}

const personaColumns = "id, user_id, name, avatar_url, color, bio, is_active, created_at"

// List returns all active personas for a user, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Persona, error) {
	pgUser, err := db.ParseUUID(userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+personaColumns+` FROM personas
		 WHERE user_id = $1 AND is_active
		 ORDER BY created_at DESC`, pgUser)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	personas := []Persona{}
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		personas = append(personas, p)
	}
	return personas, rows.Err()
}

// GetByID returns a persona, verifying ownership.
func (s *Service) GetByID(ctx context.Context, personaID, userID string) (Persona, error) {
	pgID, err := db.ParseUUID(personaID)
	if err != nil {
		return Persona{}, err
	}
	pgUser, err := db.ParseUUID(userID)
	if err != nil {
		return Persona{}, err
	}
	p, err := scanPersona(s.pool.QueryRow(ctx,
		`SELECT `+personaColumns+` FROM personas WHERE id = $1 AND user_id = $2`,
		pgID, pgUser))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Persona{}, ErrPersonaNotFound
		}
		return Persona{}, err
	}
	return p, nil
}

// Create adds a new persona for a user, enforcing the per-user limit and
// name uniqueness, and emits a user_persona add event to the owner.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (Persona, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Bio = strings.TrimSpace(req.Bio)
	if err := validateFields(req.Name, req.AvatarURL, req.Color, req.Bio); err != nil {
		return Persona{}, fmt.Errorf("%w: %v", ErrInvalidPersona, err)
	}
	pgUser, err := db.ParseUUID(userID)
	if err != nil {
		return Persona{}, err
	}

	var activeCount int
	err = s.pool.QueryRow(ctx,
		`SELECT count(*) FROM personas WHERE user_id = $1 AND is_active`, pgUser,
	).Scan(&activeCount)
	if err != nil {
		return Persona{}, err
	}
	if activeCount >= MaxPerUser {
		return Persona{}, ErrPersonaLimit
	}

	p, err := scanPersona(s.pool.QueryRow(ctx, `
		INSERT INTO personas (user_id, name, avatar_url, color, bio)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+personaColumns,
		pgUser, req.Name, db.ToPgText(req.AvatarURL), db.ToPgText(req.Color), req.Bio,
	))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Persona{}, ErrDuplicateName
		}
		return Persona{}, err
	}

	s.stream.SendToUser(userID, events.NewPayload(events.TypeUserPersona, "add", map[string]any{"persona": p}))
	return p, nil
}

// Update applies a partial update, checking name uniqueness against the
// user's other personas, and emits a user_persona update event.
func (s *Service) Update(ctx context.Context, personaID, userID string, req UpdateRequest) (Persona, error) {
	p, err := s.GetByID(ctx, personaID, userID)
	if err != nil {
		return Persona{}, err
	}
	if req.Name == nil && req.AvatarURL == nil && req.Color == nil && req.Bio == nil {
		return p, nil
	}

	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
		p.Name = trimmed
	}
	if req.AvatarURL != nil {
		p.AvatarURL = strings.TrimSpace(*req.AvatarURL)
	}
	if req.Color != nil {
		p.Color = strings.TrimSpace(*req.Color)
	}
	if req.Bio != nil {
		p.Bio = strings.TrimSpace(*req.Bio)
	}
	if err := validateFields(p.Name, p.AvatarURL, p.Color, p.Bio); err != nil {
		return Persona{}, fmt.Errorf("%w: %v", ErrInvalidPersona, err)
	}

	pgID, _ := db.ParseUUID(personaID)
	pgUser, _ := db.ParseUUID(userID)
	updated, err := scanPersona(s.pool.QueryRow(ctx, `
		UPDATE personas SET name = $3, avatar_url = $4, color = $5, bio = $6
		WHERE id = $1 AND user_id = $2
		RETURNING `+personaColumns,
		pgID, pgUser, p.Name, db.ToPgText(p.AvatarURL), db.ToPgText(p.Color), p.Bio,
	))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Persona{}, ErrDuplicateName
		}
		return Persona{}, err
	}

	s.stream.SendToUser(userID, events.NewPayload(events.TypeUserPersona, "update", map[string]any{"persona": updated}))
	return updated, nil
}

// Delete soft-deletes a persona; past messages keep referencing it. Emits a
// user_persona remove event.
func (s *Service) Delete(ctx context.Context, personaID, userID string) error {
	if _, err := s.GetByID(ctx, personaID, userID); err != nil {
		return err
	}
	pgID, _ := db.ParseUUID(personaID)
	pgUser, _ := db.ParseUUID(userID)
	_, err := s.pool.Exec(ctx,
		`UPDATE personas SET is_active = FALSE WHERE id = $1 AND user_id = $2`,
		pgID, pgUser)
	if err != nil {
		return err
	}

	s.stream.SendToUser(userID, events.NewPayload(events.TypeUserPersona, "remove", map[string]any{"persona_id": personaID}))
	return nil
}

// ListRealm returns all active personas of active users in a realm for
// @-mention typeahead.
func (s *Service) ListRealm(ctx context.Context, realmID string) ([]RealmPersona, error) {
	pgRealm, err := db.ParseUUID(realmID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, p.avatar_url, p.color, u.id, u.full_name
		FROM personas p
		JOIN users u ON u.id = p.user_id
		WHERE u.realm_id = $1 AND u.is_active AND p.is_active
		ORDER BY p.name`, pgRealm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RealmPersona{}
	for rows.Next() {
		var (
			id, userID        pgtype.UUID
			avatarURL, color  pgtype.Text
			rp                RealmPersona
		)
		if err := rows.Scan(&id, &rp.Name, &avatarURL, &color, &userID, &rp.UserFullName); err != nil {
			return nil, err
		}
		rp.ID = db.UUIDToString(id)
		rp.UserID = db.UUIDToString(userID)
		rp.AvatarURL = db.TextToString(avatarURL)
		rp.Color = db.TextToString(color)
		out = append(out, rp)
	}
	return out, rows.Err()
}

func validateFields(name, avatarURL, color, bio string) error {
	if name == "" {
		return fmt.Errorf("persona name is required")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("persona name is too long (limit: %d characters)", MaxNameLength)
	}
	if len(avatarURL) > MaxAvatarURLLength {
		return fmt.Errorf("avatar URL is too long (limit: %d characters)", MaxAvatarURLLength)
	}
	if color != "" && !colorPattern.MatchString(color) {
		return fmt.Errorf("color must be a hex value like #fff or #a0b1c2")
	}
	if len(bio) > MaxBioLength {
		return fmt.Errorf("bio is too long (limit: %d characters)", MaxBioLength)
	}
	return nil
}

func scanPersona(row pgx.Row) (Persona, error) {
	var (
		id, userID       pgtype.UUID
		avatarURL, color pgtype.Text
		createdAt        pgtype.Timestamptz
		p                Persona
	)
	err := row.Scan(&id, &userID, &p.Name, &avatarURL, &color, &p.Bio, &p.IsActive, &createdAt)
	if err != nil {
		return Persona{}, err
	}
	p.ID = db.UUIDToString(id)
	p.UserID = db.UUIDToString(userID)
	p.AvatarURL = db.TextToString(avatarURL)
	p.Color = db.TextToString(color)
	p.CreatedAt = db.TimeFromPg(createdAt)
	return p, nil
}
