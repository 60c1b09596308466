// Package commands provides slash commands registered by bots and surfaced
// in the compose typeahead, with JSON-schema argument validation.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberian/tulip/internal/db"
	"github.com/emberian/tulip/internal/events"
)

var (
	ErrCommandNotFound  = errors.New("command not found")
	ErrInvalidCommand   = errors.New("invalid command registration")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Service provides bot command registration and lookup.
type Service struct {
	pool   *pgxpool.Pool
	stream *events.Registry
	logger *slog.Logger
}

// NewService creates a command service.
func NewService(log *slog.Logger, pool *pgxpool.Pool, stream *events.Registry) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		stream: stream,
		logger: log.With(slog.String("service", "commands")),
	}
}

const commandColumns = "id, bot_id, realm_id, name, description, options, created_at, updated_at"

// Register creates a command for a bot, or updates description and options
// in place when the bot re-registers the same name. Emits a bot_commands
// event to the realm.
func (s *Service) Register(ctx context.Context, botID, realmID string, req RegisterRequest) (Command, error) {
	name := NormalizeName(req.Name)
	if err := ValidateRegistration(name, req.Options); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	// Compile once here so malformed option sets are rejected at
	// registration, not at first invocation.
	if _, err := ArgumentSchema(req.Options); err != nil {
		return Command{}, fmt.Errorf("%w: invalid option schema: %v", ErrInvalidCommand, err)
	}
	pgBot, err := db.ParseUUID(botID)
	if err != nil {
		return Command{}, err
	}
	pgRealm, err := db.ParseUUID(realmID)
	if err != nil {
		return Command{}, err
	}
	options := req.Options
	if options == nil {
		options = []Option{}
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return Command{}, err
	}

	cmd, err := scanCommand(s.pool.QueryRow(ctx, `
		INSERT INTO bot_commands (bot_id, realm_id, name, description, options)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (bot_id, realm_id, name) DO UPDATE SET
			description = EXCLUDED.description,
			options = EXCLUDED.options,
			updated_at = now()
		RETURNING `+commandColumns,
		pgBot, pgRealm, name, strings.TrimSpace(req.Description), optionsJSON,
	))
	if err != nil {
		return Command{}, err
	}

	s.stream.SendToRealm(realmID, events.NewPayload(events.TypeBotCommands, registrationOp(cmd), map[string]any{"command": cmd}))
	return cmd, nil
}

// registrationOp distinguishes a first registration from a re-registration.
// A fresh insert stamps created_at and updated_at in the same statement;
// the upsert moves only updated_at forward.
func registrationOp(cmd Command) string {
	if cmd.UpdatedAt.After(cmd.CreatedAt) {
		return "update"
	}
	return "add"
}

// Get returns one command by bot and name.
func (s *Service) Get(ctx context.Context, botID, realmID, name string) (Command, error) {
	pgBot, err := db.ParseUUID(botID)
	if err != nil {
		return Command{}, err
	}
	pgRealm, err := db.ParseUUID(realmID)
	if err != nil {
		return Command{}, err
	}
	cmd, err := scanCommand(s.pool.QueryRow(ctx,
		`SELECT `+commandColumns+` FROM bot_commands
		 WHERE bot_id = $1 AND realm_id = $2 AND name = $3`,
		pgBot, pgRealm, NormalizeName(name)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Command{}, ErrCommandNotFound
		}
		return Command{}, err
	}
	return cmd, nil
}

// ListRealm returns every command registered in a realm (typeahead source).
func (s *Service) ListRealm(ctx context.Context, realmID string) ([]Command, error) {
	pgRealm, err := db.ParseUUID(realmID)
	if err != nil {
		return nil, err
	}
	return s.list(ctx,
		`SELECT `+commandColumns+` FROM bot_commands WHERE realm_id = $1 ORDER BY name`,
		pgRealm)
}

// ListBot returns a bot's commands in a realm.
func (s *Service) ListBot(ctx context.Context, botID, realmID string) ([]Command, error) {
	pgBot, err := db.ParseUUID(botID)
	if err != nil {
		return nil, err
	}
	pgRealm, err := db.ParseUUID(realmID)
	if err != nil {
		return nil, err
	}
	return s.list(ctx,
		`SELECT `+commandColumns+` FROM bot_commands
		 WHERE bot_id = $1 AND realm_id = $2 ORDER BY name`,
		pgBot, pgRealm)
}

// Autocomplete returns the bot's commands whose names start with prefix.
func (s *Service) Autocomplete(ctx context.Context, botID, realmID, prefix string) ([]Command, error) {
	pgBot, err := db.ParseUUID(botID)
	if err != nil {
		return nil, err
	}
	pgRealm, err := db.ParseUUID(realmID)
	if err != nil {
		return nil, err
	}
	prefix = NormalizeName(prefix)
	return s.list(ctx,
		`SELECT `+commandColumns+` FROM bot_commands
		 WHERE bot_id = $1 AND realm_id = $2 AND name LIKE $3 || '%'
		 ORDER BY name`,
		pgBot, pgRealm, prefix)
}

// Delete removes a command by bot and name. Emits a bot_commands remove
// event to the realm.
func (s *Service) Delete(ctx context.Context, botID, realmID, name string) error {
	pgBot, err := db.ParseUUID(botID)
	if err != nil {
		return err
	}
	pgRealm, err := db.ParseUUID(realmID)
	if err != nil {
		return err
	}
	name = NormalizeName(name)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM bot_commands WHERE bot_id = $1 AND realm_id = $2 AND name = $3`,
		pgBot, pgRealm, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCommandNotFound
	}

	s.stream.SendToRealm(realmID, events.NewPayload(events.TypeBotCommands, "remove", map[string]any{
		"bot_id": botID,
		"name":   name,
	}))
	return nil
}

func (s *Service) list(ctx context.Context, query string, args ...any) ([]Command, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cmds := []Command{}
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func scanCommand(row pgx.Row) (Command, error) {
	var (
		id, botID, realmID   pgtype.UUID
		optionsJSON          []byte
		createdAt, updatedAt pgtype.Timestamptz
		cmd                  Command
	)
	err := row.Scan(&id, &botID, &realmID, &cmd.Name, &cmd.Description, &optionsJSON, &createdAt, &updatedAt)
	if err != nil {
		return Command{}, err
	}
	cmd.ID = db.UUIDToString(id)
	cmd.BotID = db.UUIDToString(botID)
	cmd.RealmID = db.UUIDToString(realmID)
	cmd.CreatedAt = db.TimeFromPg(createdAt)
	cmd.UpdatedAt = db.TimeFromPg(updatedAt)
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &cmd.Options); err != nil {
			return Command{}, fmt.Errorf("decode command options: %w", err)
		}
	}
	if cmd.Options == nil {
		cmd.Options = []Option{}
	}
	return cmd, nil
}
