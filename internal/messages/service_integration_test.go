package messages_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberian/tulip/internal/events"
	"github.com/emberian/tulip/internal/messages"
	"github.com/emberian/tulip/internal/personas"
	"github.com/emberian/tulip/internal/puppets"
	"github.com/emberian/tulip/internal/streams"
	"github.com/emberian/tulip/internal/users"
)

type messagesFixture struct {
	pool    *pgxpool.Pool
	svc     *messages.Service
	users   *users.Service
	streams *streams.Service
	realmID string
}

func setupMessagesIntegration(t *testing.T) *messagesFixture {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skip integration test: TEST_POSTGRES_DSN is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("skip integration test: cannot connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test: database ping failed: %v", err)
	}
	t.Cleanup(pool.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	usersSvc := users.NewService(logger, pool)
	streamsSvc := streams.NewService(logger, pool)
	registry := events.NewRegistry(logger, time.Minute)
	personasSvc := personas.NewService(logger, pool, registry)
	puppetsSvc := puppets.NewService(logger, pool)
	svc := messages.NewService(logger, pool, registry, usersSvc, streamsSvc, personasSvc, puppetsSvc)

	realm, err := usersSvc.EnsureRealm(ctx, fmt.Sprintf("msg-it-%d", time.Now().UnixNano()), "it.example.com")
	if err != nil {
		t.Fatalf("ensure realm: %v", err)
	}
	return &messagesFixture{
		pool:    pool,
		svc:     svc,
		users:   usersSvc,
		streams: streamsSvc,
		realmID: realm.ID,
	}
}

func (f *messagesFixture) newUser(t *testing.T, name string) users.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), users.CreateUserParams{
		RealmID:  f.realmID,
		Email:    fmt.Sprintf("%s-%d@it.example.com", name, time.Now().UnixNano()),
		FullName: name,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func (f *messagesFixture) newStream(t *testing.T, name string, members ...users.User) streams.Stream {
	t.Helper()
	ctx := context.Background()
	st, err := f.streams.Ensure(ctx, f.realmID, name)
	if err != nil {
		t.Fatalf("ensure stream: %v", err)
	}
	for _, m := range members {
		if err := f.streams.Subscribe(ctx, st.ID, m.ID); err != nil {
			t.Fatalf("subscribe %s: %v", m.FullName, err)
		}
	}
	return st
}

func TestIntegrationWhisperCommitsAtomically(t *testing.T) {
	f := setupMessagesIntegration(t)
	ctx := context.Background()
	sender := f.newUser(t, "sender")
	st := f.newStream(t, "atomic", sender)

	// A well-formed recipient id with no matching user row must fail the
	// whole send, never leave a recipient-less whisper behind.
	_, err := f.svc.Send(ctx, sender.ID, messages.SendRequest{
		StreamID:         st.ID,
		Content:          "psst",
		WhisperToUserIDs: []string{"6ba7b810-9dad-11d1-80b4-00c04fd430c8"},
	})
	if err == nil {
		t.Fatal("send with unknown recipient succeeded")
	}

	var count int
	if err := f.pool.QueryRow(ctx,
		`SELECT count(*) FROM messages WHERE stream_id = $1`, st.ID,
	).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("found %d committed messages after failed whisper, want 0", count)
	}
}

func TestIntegrationSendRejectsMalformedRecipient(t *testing.T) {
	f := setupMessagesIntegration(t)
	sender := f.newUser(t, "sender")
	st := f.newStream(t, "malformed", sender)

	_, err := f.svc.Send(context.Background(), sender.ID, messages.SendRequest{
		StreamID:         st.ID,
		Content:          "psst",
		WhisperToUserIDs: []string{"not-a-uuid"},
	})
	if !errors.Is(err, messages.ErrBadRecipient) {
		t.Fatalf("err = %v, want ErrBadRecipient", err)
	}
}

func TestIntegrationRecentRequiresMembership(t *testing.T) {
	f := setupMessagesIntegration(t)
	ctx := context.Background()
	member := f.newUser(t, "member")
	outsider := f.newUser(t, "outsider")
	st := f.newStream(t, "private-ish", member)

	if _, err := f.svc.Send(ctx, member.ID, messages.SendRequest{StreamID: st.ID, Content: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := f.svc.Recent(ctx, st.ID, outsider.ID, 10); !errors.Is(err, messages.ErrNotMember) {
		t.Fatalf("outsider Recent err = %v, want ErrNotMember", err)
	}

	got, err := f.svc.Recent(ctx, st.ID, member.ID, 10)
	if err != nil {
		t.Fatalf("member Recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("member saw %d messages, want 1", len(got))
	}
}
