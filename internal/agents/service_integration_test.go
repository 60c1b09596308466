package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberian/tulip/internal/users"
)

func setupAgentsIntegration(t *testing.T) (*Service, *pgxpool.Pool) {
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
	realmName := fmt.Sprintf("agents-it-%d", time.Now().UnixNano())
	if _, err := usersSvc.EnsureRealm(ctx, realmName, "it.example.com"); err != nil {
		t.Fatalf("ensure realm: %v", err)
	}
	svc := NewService(logger, pool, usersSvc,
		NewTweetFetcher(5*time.Second), NewMoltbookVerifier(5*time.Second),
		true, realmName)
	return svc, pool
}

func TestIntegrationMarkClaimedWinsOnce(t *testing.T) {
	svc, pool := setupAgentsIntegration(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterRequest{AgentName: fmt.Sprintf("racer-%d", time.Now().UnixNano())})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	var claimID string
	if err := pool.QueryRow(ctx,
		`SELECT ac.id FROM agent_claims ac WHERE ac.user_id = $1`, reg.UserID,
	).Scan(&claimID); err != nil {
		t.Fatalf("look up claim: %v", err)
	}

	if err := svc.markClaimed(ctx, claimID, "https://x.com/a/status/1", "a"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	// A claim that verified concurrently must lose the update.
	if err := svc.markClaimed(ctx, claimID, "https://x.com/b/status/2", "b"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim err = %v, want ErrAlreadyClaimed", err)
	}

	var handle string
	if err := pool.QueryRow(ctx,
		`SELECT twitter_handle FROM agent_claims WHERE id = $1`, claimID,
	).Scan(&handle); err != nil {
		t.Fatalf("read claim: %v", err)
	}
	if handle != "a" {
		t.Fatalf("twitter_handle = %q, want first claimer", handle)
	}
}
