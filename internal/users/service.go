// Package users provides accounts and realms: user lookup, bcrypt login,
// and API-key resolution for bot authentication.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/emberian/tulip/internal/db"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrRealmNotFound      = errors.New("realm not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service provides account and realm operations.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a user service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "users")),
	}
}

const userColumns = "id, realm_id, email, full_name, role, is_bot, webhook_url, is_active, created_at"

func (s *Service) scanUser(row pgx.Row) (User, error) {
	var (
		id, realmID pgtype.UUID
		webhookURL  pgtype.Text
		createdAt   pgtype.Timestamptz
		u           User
	)
	err := row.Scan(&id, &realmID, &u.Email, &u.FullName, &u.Role, &u.IsBot, &webhookURL, &u.IsActive, &createdAt)
	if err != nil {
		return User{}, err
	}
	u.ID = db.UUIDToString(id)
	u.RealmID = db.UUIDToString(realmID)
	u.WebhookURL = db.TextToString(webhookURL)
	u.CreatedAt = db.TimeFromPg(createdAt)
	return u, nil
}

// EnsureRealm returns the realm with the given name, creating it when absent.
func (s *Service) EnsureRealm(ctx context.Context, name, host string) (Realm, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Realm{}, fmt.Errorf("realm name is required")
	}
	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
		realm     Realm
	)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO realms (name, host) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET host = EXCLUDED.host
		RETURNING id, name, host, created_at`,
		name, host,
	).Scan(&id, &realm.Name, &realm.Host, &createdAt)
	if err != nil {
		return Realm{}, err
	}
	realm.ID = db.UUIDToString(id)
	realm.CreatedAt = db.TimeFromPg(createdAt)
	return realm, nil
}

// GetRealmByName returns a realm by its unique name.
func (s *Service) GetRealmByName(ctx context.Context, name string) (Realm, error) {
	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
		realm     Realm
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, host, created_at FROM realms WHERE name = $1`, strings.TrimSpace(name),
	).Scan(&id, &realm.Name, &realm.Host, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Realm{}, ErrRealmNotFound
		}
		return Realm{}, err
	}
	realm.ID = db.UUIDToString(id)
	realm.CreatedAt = db.TimeFromPg(createdAt)
	return realm, nil
}

// Create inserts a new user account.
func (s *Service) Create(ctx context.Context, params CreateUserParams) (User, error) {
	realmID, err := db.ParseUUID(params.RealmID)
	if err != nil {
		return User{}, err
	}
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" {
		return User{}, fmt.Errorf("email is required")
	}
	role := params.Role
	if role == "" {
		role = RoleMember
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (realm_id, email, full_name, role, is_bot, webhook_url, api_key, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+userColumns,
		realmID, email, strings.TrimSpace(params.FullName), role, params.IsBot,
		db.ToPgText(params.WebhookURL), db.ToPgText(params.APIKey), db.ToPgText(params.PasswordHash),
	)
	return s.scanUser(row)
}

// GetByID returns a user by ID.
func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	id, err := db.ParseUUID(userID)
	if err != nil {
		return User{}, err
	}
	u, err := s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

// GetByEmail returns a user by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	u, err := s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

// Login verifies email/password credentials and returns the account.
func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	var hash pgtype.Text
	err := s.pool.QueryRow(ctx,
		`SELECT password_hash FROM users WHERE email = $1 AND is_active`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if !hash.Valid || bcrypt.CompareHashAndPassword([]byte(hash.String), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return s.GetByEmail(ctx, email)
}

// IsAdmin reports whether the user has the admin role.
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u.Role == RoleAdmin, nil
}

// ResolveAPIKey maps an API key to an active bot user ID. Implements
// auth.APIKeyResolver.
func (s *Service) ResolveAPIKey(ctx context.Context, apiKey string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", ErrInvalidCredentials
	}
	var id pgtype.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM users WHERE api_key = $1 AND is_active`, apiKey,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	return db.UUIDToString(id), nil
}

// Count returns the number of user accounts.
func (s *Service) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&count)
	return count, err
}

// EnsureAdmin creates the initial admin account when no users exist yet.
func (s *Service) EnsureAdmin(ctx context.Context, realmID, email, password, fullName string) error {
	count, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	email = strings.TrimSpace(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("admin email/password required in config.toml")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if fullName == "" {
		fullName = "Administrator"
	}
	_, err = s.Create(ctx, CreateUserParams{
		RealmID:      realmID,
		Email:        email,
		FullName:     fullName,
		Role:         RoleAdmin,
		PasswordHash: string(hashed),
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	s.logger.Info("admin user created", slog.String("email", email))
	return nil
}
