package messages

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberian/tulip/internal/db"
	"github.com/emberian/tulip/internal/events"
	"github.com/emberian/tulip/internal/personas"
	"github.com/emberian/tulip/internal/puppets"
	"github.com/emberian/tulip/internal/streams"
	"github.com/emberian/tulip/internal/users"
)

// Service stores messages and fans them out over the event stream.
type Service struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	stream   *events.Registry
	users    *users.Service
	streams  *streams.Service
	personas *personas.Service
	puppets  *puppets.Service
}

// NewService creates a message service.
func NewService(
	log *slog.Logger,
	pool *pgxpool.Pool,
	stream *events.Registry,
	usersSvc *users.Service,
	streamsSvc *streams.Service,
	personasSvc *personas.Service,
	puppetsSvc *puppets.Service,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:     pool,
		logger:   log.With(slog.String("service", "messages")),
		stream:   stream,
		users:    usersSvc,
		streams:  streamsSvc,
		personas: personasSvc,
		puppets:  puppetsSvc,
	}
}

// Send stores a message and delivers it to the stream's members. A
// persona_id that no longer resolves falls back to the sender's real
// identity rather than failing the send. A puppet name registers the
// puppet on first use and refreshes its recency window. Whisper fields
// restrict delivery to the sender plus the named users and the resolved
// handlers of the named puppets.
func (s *Service) Send(ctx context.Context, senderID string, req SendRequest) (Message, error) {
	if strings.TrimSpace(req.Content) == "" {
		return Message{}, ErrEmptyContent
	}
	if err := validateRecipientIDs(req.WhisperToUserIDs); err != nil {
		return Message{}, err
	}
	st, err := s.streams.GetByID(ctx, req.StreamID)
	if err != nil {
		return Message{}, err
	}
	member, err := s.streams.IsMember(ctx, st.ID, senderID)
	if err != nil {
		return Message{}, err
	}
	if !member {
		return Message{}, ErrNotMember
	}
	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		RealmID:     st.RealmID,
		StreamID:    st.ID,
		SenderID:    sender.ID,
		DisplayName: sender.FullName,
		Topic:       req.Topic,
		Content:     req.Content,
	}

	if req.PersonaID != "" {
		p, err := s.personas.GetByID(ctx, req.PersonaID, senderID)
		switch {
		case err == nil:
			msg.PersonaID = p.ID
			msg.DisplayName = p.Name
			msg.AvatarURL = p.AvatarURL
			msg.Color = p.Color
		case errors.Is(err, personas.ErrPersonaNotFound):
			s.logger.Warn("persona unavailable, sending as real identity",
				slog.String("persona_id", req.PersonaID),
				slog.String("user_id", senderID))
		default:
			return Message{}, err
		}
	}

	if req.PuppetName != "" {
		p, err := s.puppets.Register(ctx, st.ID, req.PuppetName, req.PuppetAvatar, req.PuppetColor, senderID)
		if err != nil {
			return Message{}, err
		}
		msg.PuppetID = p.ID
		msg.DisplayName = p.Name
		msg.AvatarURL = p.AvatarURL
		msg.Color = p.Color
	}

	recipients := map[string]struct{}{}
	msg.IsWhisper = len(req.WhisperToUserIDs) > 0 || len(req.WhisperToPuppetIDs) > 0
	if msg.IsWhisper {
		recipients[senderID] = struct{}{}
		for _, id := range req.WhisperToUserIDs {
			recipients[id] = struct{}{}
		}
		if len(req.WhisperToPuppetIDs) > 0 {
			handlers, err := s.puppets.ResolveWhisperRecipients(ctx, st.ID, req.WhisperToPuppetIDs)
			if err != nil {
				return Message{}, err
			}
			for id := range handlers {
				recipients[id] = struct{}{}
			}
		}
	}

	// The message row and its recipient rows land together or not at all,
	// so a whisper can never commit with a partial recipient set.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Message{}, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (realm_id, stream_id, sender_id, persona_id, puppet_id, topic, content, is_whisper)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		st.RealmID, st.ID, sender.ID,
		db.ToPgUUID(msg.PersonaID), db.ToPgUUID(msg.PuppetID),
		msg.Topic, msg.Content, msg.IsWhisper,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return Message{}, err
	}

	if msg.IsWhisper {
		batch := &pgx.Batch{}
		for id := range recipients {
			batch.Queue(`
				INSERT INTO whisper_recipients (message_id, user_id)
				VALUES ($1, $2) ON CONFLICT DO NOTHING`, msg.ID, id)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return Message{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}

	s.fanOut(ctx, msg, recipients)
	return msg, nil
}

// validateRecipientIDs rejects whisper recipient ids that are not UUIDs
// before any row is written.
func validateRecipientIDs(ids []string) error {
	for _, id := range ids {
		if _, err := db.ParseUUID(id); err != nil {
			return ErrBadRecipient
		}
	}
	return nil
}

// fanOut delivers the message event: to every stream member, or for a
// whisper only to the members in the recipient set.
func (s *Service) fanOut(ctx context.Context, msg Message, recipients map[string]struct{}) {
	members, err := s.streams.MemberIDs(ctx, msg.StreamID)
	if err != nil {
		s.logger.Error("resolve stream members", slog.String("err", err.Error()))
		return
	}
	targets := visibleTargets(members, msg.IsWhisper, recipients)
	s.stream.SendToUsers(targets, events.NewPayload(events.TypeMessage, "add", msg))
}

// visibleTargets filters stream members down to whisper recipients when
// the message is a whisper.
func visibleTargets(members []string, isWhisper bool, recipients map[string]struct{}) []string {
	if !isWhisper {
		return members
	}
	var targets []string
	for _, id := range members {
		if _, ok := recipients[id]; ok {
			targets = append(targets, id)
		}
	}
	return targets
}

// PostBotResponse delivers a bot's interaction response. With a stream it
// is stored and fanned out like a normal message; the widget payload rides
// the event for clients to render. Without a stream it goes as an
// ephemeral event straight to the invoking user.
func (s *Service) PostBotResponse(ctx context.Context, botID, streamID, userID, content string, widget json.RawMessage) error {
	if streamID == "" {
		bot, err := s.users.GetByID(ctx, botID)
		if err != nil {
			return err
		}
		s.stream.SendToUser(userID, events.NewPayload(events.TypeMessage, "add", Message{
			RealmID:     bot.RealmID,
			SenderID:    bot.ID,
			DisplayName: bot.FullName,
			Content:     content,
			Widget:      widget,
		}))
		return nil
	}
	st, err := s.streams.GetByID(ctx, streamID)
	if err != nil {
		return err
	}
	bot, err := s.users.GetByID(ctx, botID)
	if err != nil {
		return err
	}
	msg := Message{
		RealmID:     st.RealmID,
		StreamID:    st.ID,
		SenderID:    bot.ID,
		DisplayName: bot.FullName,
		Content:     content,
		Widget:      widget,
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO messages (realm_id, stream_id, sender_id, topic, content)
		VALUES ($1, $2, $3, '', $4)
		RETURNING id, created_at`,
		st.RealmID, st.ID, bot.ID, content,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return err
	}
	s.fanOut(ctx, msg, nil)
	return nil
}

// Recent returns the newest messages in a stream visible to userID:
// non-whispers plus whispers the user sent or received. The caller must
// be subscribed to the stream.
func (s *Service) Recent(ctx context.Context, streamID, userID string, limit int) ([]Message, error) {
	member, err := s.streams.IsMember(ctx, streamID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotMember
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.realm_id, m.stream_id, m.sender_id,
		       COALESCE(m.persona_id::text, ''), COALESCE(m.puppet_id::text, ''),
		       COALESCE(p.name, COALESCE(pp.name, u.full_name)),
		       m.topic, m.content, m.is_whisper, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		LEFT JOIN personas p ON p.id = m.persona_id
		LEFT JOIN puppets pp ON pp.id = m.puppet_id
		WHERE m.stream_id = $1
		  AND (NOT m.is_whisper
		       OR m.sender_id = $2
		       OR EXISTS (
			   SELECT 1 FROM whisper_recipients wr
			   WHERE wr.message_id = m.id AND wr.user_id = $2))
		ORDER BY m.created_at DESC
		LIMIT $3`,
		streamID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID, &m.RealmID, &m.StreamID, &m.SenderID,
			&m.PersonaID, &m.PuppetID, &m.DisplayName,
			&m.Topic, &m.Content, &m.IsWhisper, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
