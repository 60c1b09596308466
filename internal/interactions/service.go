package interactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberian/tulip/internal/commands"
	"github.com/emberian/tulip/internal/db"
	"github.com/emberian/tulip/internal/queue"
	"github.com/emberian/tulip/internal/users"
)

// Service validates incoming interactions and persists them to the
// delivery queue. Delivery itself is the Dispatcher's job.
type Service struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	users    *users.Service
	commands *commands.Service
	queue    *queue.Service
}

// NewService creates an interaction service.
func NewService(log *slog.Logger, pool *pgxpool.Pool, usersSvc *users.Service, commandsSvc *commands.Service, queueSvc *queue.Service) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:     pool,
		logger:   log.With(slog.String("service", "interactions")),
		users:    usersSvc,
		commands: commandsSvc,
		queue:    queueSvc,
	}
}

// Submit validates req against the target bot's registration and enqueues
// it for delivery. Command arguments are checked against the command's
// declared options before anything is persisted.
func (s *Service) Submit(ctx context.Context, userID, realmID string, req SubmitRequest) (*SubmitResponse, error) {
	if req.Type != TypeCommandInvocation && req.Type != TypeWidgetClick {
		return nil, ErrUnknownType
	}

	bot, err := s.users.GetByID(ctx, req.BotID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, ErrBotNotFound
		}
		return nil, err
	}
	if !bot.IsBot || bot.RealmID != realmID {
		return nil, ErrBotNotFound
	}

	in := Interaction{
		ID:        uuid.NewString(),
		Type:      req.Type,
		BotID:     bot.ID,
		UserID:    userID,
		RealmID:   realmID,
		StreamID:  req.StreamID,
		Arguments: req.Arguments,
		CreatedAt: time.Now().UTC(),
	}

	switch req.Type {
	case TypeCommandInvocation:
		name := commands.NormalizeName(req.Command)
		cmd, err := s.commands.Get(ctx, bot.ID, realmID, name)
		if err != nil {
			if errors.Is(err, commands.ErrCommandNotFound) {
				return nil, ErrUnknownCommand
			}
			return nil, err
		}
		if err := commands.ValidateArguments(cmd.Options, req.Arguments); err != nil {
			return nil, err
		}
		in.Command = name
	case TypeWidgetClick:
		if req.WidgetID == "" {
			return nil, ErrMissingWidgetID
		}
		in.WidgetID = req.WidgetID
	}

	// The issuance record is what Consume later checks responses against.
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO interactions (id, type, bot_id, user_id, realm_id, stream_id, command, widget_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		in.ID, in.Type, in.BotID, in.UserID, in.RealmID,
		db.ToPgUUID(in.StreamID), in.Command, in.WidgetID, in.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("record interaction: %w", err)
	}

	if _, err := s.queue.Enqueue(ctx, queue.TopicBotInteraction, bot.ID, in); err != nil {
		return nil, fmt.Errorf("enqueue interaction: %w", err)
	}
	s.logger.Info("interaction accepted",
		slog.String("interaction_id", in.ID),
		slog.String("type", in.Type),
		slog.String("bot_id", bot.ID))
	return &SubmitResponse{InteractionID: in.ID}, nil
}

// Consume records that botID acted on interactionID. Only interactions
// that were actually issued to the bot can be consumed, and each
// interaction ID can be consumed exactly once; a second attempt returns
// ErrAlreadyConsumed so duplicate webhook deliveries and replayed
// responses cannot double-apply.
func (s *Service) Consume(ctx context.Context, interactionID, botID string) error {
	pgID, err := db.ParseUUID(interactionID)
	if err != nil {
		return ErrBadInteractionID
	}
	var issued bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM interactions WHERE id = $1 AND bot_id = $2)`,
		pgID, botID,
	).Scan(&issued)
	if err != nil {
		return err
	}
	if !issued {
		return ErrInteractionNotFound
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO consumed_interactions (interaction_id, bot_id)
		VALUES ($1, $2)
		ON CONFLICT (interaction_id) DO NOTHING`,
		pgID, botID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyConsumed
	}
	return nil
}
