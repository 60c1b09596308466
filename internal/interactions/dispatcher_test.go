package interactions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/emberian/tulip/internal/queue"
	"github.com/emberian/tulip/internal/users"
)

type fakeQueue struct {
	mu        sync.Mutex
	jobs      []*queue.Job
	completed []int64
	failed    map[int64]string
	released  int
}

func newFakeQueue(jobs ...*queue.Job) *fakeQueue {
	return &fakeQueue{jobs: jobs, failed: map[int64]string{}}
}

func (q *fakeQueue) Claim(_ context.Context, topic string, _ time.Duration) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, job := range q.jobs {
		if job.Topic == topic {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			return job, nil
		}
	}
	return nil, nil
}

func (q *fakeQueue) Complete(_ context.Context, jobID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, jobID)
	return nil
}

func (q *fakeQueue) Fail(_ context.Context, jobID int64, deliveryErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[jobID] = deliveryErr
	return nil
}

func (q *fakeQueue) ReleaseExpired(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.released++
	return 0, nil
}

type fakeConsumer struct {
	mu   sync.Mutex
	err  error
	seen []string
}

func (c *fakeConsumer) Consume(_ context.Context, interactionID, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, interactionID)
	return c.err
}

type fakeDirectory struct {
	users map[string]users.User
}

func (d *fakeDirectory) GetByID(_ context.Context, id string) (users.User, error) {
	u, ok := d.users[id]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return u, nil
}

type fakePresence struct {
	mu           sync.Mutex
	connected    []string
	disconnected []string
}

func (p *fakePresence) MarkConnected(_ context.Context, botID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = append(p.connected, botID)
	return nil
}

func (p *fakePresence) MarkDisconnected(_ context.Context, botID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = append(p.disconnected, botID)
	return nil
}

type postedResponse struct {
	botID    string
	streamID string
	userID   string
	content  string
}

type fakePoster struct {
	mu     sync.Mutex
	posted []postedResponse
}

func (p *fakePoster) PostBotResponse(_ context.Context, botID, streamID, userID, content string, _ json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posted = append(p.posted, postedResponse{botID, streamID, userID, content})
	return nil
}

type dispatcherFixture struct {
	queue    *fakeQueue
	consumer *fakeConsumer
	presence *fakePresence
	poster   *fakePoster
	registry *HandlerRegistry
	d        *Dispatcher
}

func newDispatcherFixture(t *testing.T, opts DispatcherOptions, jobs ...*queue.Job) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		queue:    newFakeQueue(jobs...),
		consumer: &fakeConsumer{},
		presence: &fakePresence{},
		poster:   &fakePoster{},
		registry: NewHandlerRegistry(),
	}
	dir := &fakeDirectory{users: map[string]users.User{
		"bot-1":  {ID: "bot-1", RealmID: "realm-1", FullName: "Helper Bot", IsBot: true},
		"user-1": {ID: "user-1", RealmID: "realm-1", Email: "u@example.com", FullName: "User One"},
	}}
	f.d = NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), opts,
		f.queue, f.consumer, dir, f.presence, f.poster,
		NewWebhookClient(time.Second), f.registry)
	return f
}

func interactionJob(t *testing.T, id int64, in Interaction) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal interaction: %v", err)
	}
	return &queue.Job{ID: id, Topic: queue.TopicBotInteraction, Key: in.BotID, Payload: payload}
}

func TestProcessDeliversAndPostsResponse(t *testing.T) {
	in := Interaction{
		ID: "int-1", Type: TypeCommandInvocation,
		BotID: "bot-1", UserID: "user-1", StreamID: "stream-1", Command: "roll",
	}
	f := newDispatcherFixture(t, DispatcherOptions{MaxAttempts: 1})
	f.registry.Register("bot-1", func(context.Context, Interaction) (*BotResponse, error) {
		return &BotResponse{Content: "you rolled a 4"}, nil
	})

	f.d.process(context.Background(), interactionJob(t, 7, in))

	if got := f.poster.posted; len(got) != 1 || got[0].content != "you rolled a 4" {
		t.Fatalf("posted = %+v, want one response", got)
	}
	if got := f.poster.posted[0]; got.botID != "bot-1" || got.streamID != "stream-1" || got.userID != "user-1" {
		t.Fatalf("response routing = %+v", got)
	}
	if len(f.consumer.seen) != 1 || f.consumer.seen[0] != "int-1" {
		t.Fatalf("consumed = %v, want [int-1]", f.consumer.seen)
	}
	if len(f.presence.connected) != 1 {
		t.Fatalf("connected marks = %v", f.presence.connected)
	}
	if len(f.queue.completed) != 1 || f.queue.completed[0] != 7 {
		t.Fatalf("completed = %v, want [7]", f.queue.completed)
	}
	if len(f.queue.failed) != 0 {
		t.Fatalf("failed = %v, want none", f.queue.failed)
	}
}

func TestProcessDeadLettersUnroutableBot(t *testing.T) {
	// bot-1 has no webhook URL and no embedded handler.
	in := Interaction{ID: "int-2", Type: TypeCommandInvocation, BotID: "bot-1", UserID: "user-1"}
	f := newDispatcherFixture(t, DispatcherOptions{MaxAttempts: 3})

	f.d.process(context.Background(), interactionJob(t, 8, in))

	if _, ok := f.queue.failed[8]; !ok {
		t.Fatalf("job 8 not dead-lettered: %v", f.queue.failed)
	}
	if len(f.queue.completed) != 0 {
		t.Fatalf("completed = %v, want none", f.queue.completed)
	}
	if len(f.presence.disconnected) != 1 || f.presence.disconnected[0] != "bot-1" {
		t.Fatalf("disconnected marks = %v, want [bot-1]", f.presence.disconnected)
	}
	if len(f.poster.posted) != 0 {
		t.Fatalf("posted = %+v, want none", f.poster.posted)
	}
}

func TestProcessDeadLettersMalformedPayload(t *testing.T) {
	f := newDispatcherFixture(t, DispatcherOptions{})
	job := &queue.Job{ID: 9, Topic: queue.TopicBotInteraction, Payload: json.RawMessage(`{"bot_id":`)}

	f.d.process(context.Background(), job)

	if _, ok := f.queue.failed[9]; !ok {
		t.Fatalf("malformed job not dead-lettered: %v", f.queue.failed)
	}
	if len(f.queue.completed) != 0 {
		t.Fatalf("completed = %v, want none", f.queue.completed)
	}
}

func TestProcessDropsResponseWhenAlreadyConsumed(t *testing.T) {
	in := Interaction{ID: "int-3", Type: TypeCommandInvocation, BotID: "bot-1", UserID: "user-1"}
	f := newDispatcherFixture(t, DispatcherOptions{MaxAttempts: 1})
	f.consumer.err = ErrAlreadyConsumed
	f.registry.Register("bot-1", func(context.Context, Interaction) (*BotResponse, error) {
		return &BotResponse{Content: "late answer"}, nil
	})

	f.d.process(context.Background(), interactionJob(t, 10, in))

	if len(f.poster.posted) != 0 {
		t.Fatalf("posted = %+v, want duplicate dropped", f.poster.posted)
	}
	// The job itself still completes; only the response is discarded.
	if len(f.queue.completed) != 1 || f.queue.completed[0] != 10 {
		t.Fatalf("completed = %v, want [10]", f.queue.completed)
	}
	if len(f.queue.failed) != 0 {
		t.Fatalf("failed = %v, want none", f.queue.failed)
	}
}

func TestProcessRetriesBeforeSucceeding(t *testing.T) {
	in := Interaction{ID: "int-4", Type: TypeCommandInvocation, BotID: "bot-1", UserID: "user-1"}
	f := newDispatcherFixture(t, DispatcherOptions{MaxAttempts: 3})

	var calls int
	f.registry.Register("bot-1", func(context.Context, Interaction) (*BotResponse, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("transient")
		}
		return nil, nil
	})

	f.d.process(context.Background(), interactionJob(t, 11, in))

	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2", calls)
	}
	if len(f.queue.completed) != 1 {
		t.Fatalf("completed = %v, want [11]", f.queue.completed)
	}
	if len(f.presence.connected) != 1 {
		t.Fatalf("connected marks = %v", f.presence.connected)
	}
}

func TestRunDrainsQueuedJobs(t *testing.T) {
	in := Interaction{ID: "int-5", Type: TypeCommandInvocation, BotID: "bot-1", UserID: "user-1"}
	f := newDispatcherFixture(t,
		DispatcherOptions{Workers: 1, MaxAttempts: 1, PollInterval: 5 * time.Millisecond},
		interactionJob(t, 12, in))

	handled := make(chan struct{})
	f.registry.Register("bot-1", func(context.Context, Interaction) (*BotResponse, error) {
		close(handled)
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.d.Run(ctx)
		close(done)
	}()

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("queued job was never delivered")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop on cancel")
	}
}
