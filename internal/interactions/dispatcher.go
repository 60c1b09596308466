package interactions

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/emberian/tulip/internal/queue"
	"github.com/emberian/tulip/internal/users"
)

// JobQueue is the queue surface the dispatcher drives, satisfied by
// *queue.Service.
type JobQueue interface {
	Claim(ctx context.Context, topic string, claimTTL time.Duration) (*queue.Job, error)
	Complete(ctx context.Context, jobID int64) error
	Fail(ctx context.Context, jobID int64, deliveryErr string) error
	ReleaseExpired(ctx context.Context) (int64, error)
}

// Consumer records an interaction's single consumption, satisfied by
// *Service.
type Consumer interface {
	Consume(ctx context.Context, interactionID, botID string) error
}

// UserDirectory resolves user and bot records during delivery, satisfied
// by *users.Service.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (users.User, error)
}

// PresenceMarker receives delivery outcomes: a successful delivery marks
// the bot connected, a dead-lettered one marks it disconnected.
type PresenceMarker interface {
	MarkConnected(ctx context.Context, botID, realmID string) error
	MarkDisconnected(ctx context.Context, botID, realmID string) error
}

// ResponsePoster fans a bot's synchronous response back out to users.
type ResponsePoster interface {
	PostBotResponse(ctx context.Context, botID, streamID, userID, content string, widget json.RawMessage) error
}

// DispatcherOptions tunes the worker pool.
type DispatcherOptions struct {
	Workers      int
	MaxAttempts  int
	PollInterval time.Duration
	ClaimTTL     time.Duration
}

func (o *DispatcherOptions) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.ClaimTTL <= 0 {
		o.ClaimTTL = 5 * time.Minute
	}
}

// Dispatcher drains the interaction queue and delivers each interaction to
// its bot, via the embedded handler registry when one is installed and the
// bot's webhook otherwise. Failed deliveries are retried with exponential
// backoff inside the claim; a delivery that exhausts its attempts is
// dead-lettered and the bot is marked disconnected.
type Dispatcher struct {
	logger   *slog.Logger
	opts     DispatcherOptions
	queue    JobQueue
	consumer Consumer
	users    UserDirectory
	presence PresenceMarker
	poster   ResponsePoster
	webhook  *WebhookClient
	registry *HandlerRegistry
}

// NewDispatcher wires a dispatcher. Call Run to start delivering.
func NewDispatcher(
	log *slog.Logger,
	opts DispatcherOptions,
	queueSvc JobQueue,
	consumer Consumer,
	usersSvc UserDirectory,
	presence PresenceMarker,
	poster ResponsePoster,
	webhook *WebhookClient,
	registry *HandlerRegistry,
) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	opts.applyDefaults()
	return &Dispatcher{
		logger:   log.With(slog.String("service", "dispatcher")),
		opts:     opts,
		queue:    queueSvc,
		consumer: consumer,
		users:    usersSvc,
		presence: presence,
		poster:   poster,
		webhook:  webhook,
		registry: registry,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.workerLoop(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.reclaimLoop(ctx)
	}()
	wg.Wait()
}

func (d *Dispatcher) workerLoop(ctx context.Context) {
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()
	for {
		// Drain available jobs before parking on the ticker.
		for {
			job, err := d.queue.Claim(ctx, queue.TopicBotInteraction, d.opts.ClaimTTL)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				d.logger.Error("claim interaction job", slog.String("err", err.Error()))
				break
			}
			if job == nil {
				break
			}
			d.process(ctx, job)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// reclaimLoop periodically returns claims abandoned by crashed workers.
func (d *Dispatcher) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(d.opts.ClaimTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.queue.ReleaseExpired(ctx); err != nil {
				d.logger.Error("release expired claims", slog.String("err", err.Error()))
			}
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, job *queue.Job) {
	var in Interaction
	if err := json.Unmarshal(job.Payload, &in); err != nil {
		d.logger.Error("malformed interaction payload",
			slog.Int64("job_id", job.ID), slog.String("err", err.Error()))
		d.deadLetter(ctx, job, "malformed payload: "+err.Error())
		return
	}
	log := d.logger.With(
		slog.String("interaction_id", in.ID),
		slog.String("bot_id", in.BotID))

	bot, err := d.users.GetByID(ctx, in.BotID)
	if err != nil {
		log.Error("resolve bot", slog.String("err", err.Error()))
		d.deadLetter(ctx, job, "resolve bot: "+err.Error())
		return
	}

	resp, err := d.deliver(ctx, bot, in)
	if err != nil {
		log.Error("delivery failed, dead-lettering", slog.String("err", err.Error()))
		d.deadLetter(ctx, job, err.Error())
		if perr := d.presence.MarkDisconnected(ctx, bot.ID, bot.RealmID); perr != nil {
			log.Error("mark bot disconnected", slog.String("err", perr.Error()))
		}
		return
	}

	if perr := d.presence.MarkConnected(ctx, bot.ID, bot.RealmID); perr != nil {
		log.Error("mark bot connected", slog.String("err", perr.Error()))
	}

	if resp != nil {
		// A synchronous response consumes the interaction. If the bot
		// already consumed it through the response endpoint, drop this
		// one rather than apply it twice.
		switch cerr := d.consumer.Consume(ctx, in.ID, bot.ID); {
		case cerr == nil:
			if perr := d.poster.PostBotResponse(ctx, bot.ID, in.StreamID, in.UserID, resp.Content, resp.Widget); perr != nil {
				log.Error("post bot response", slog.String("err", perr.Error()))
			}
		case errors.Is(cerr, ErrAlreadyConsumed):
			log.Warn("interaction already consumed, dropping duplicate response")
		default:
			log.Error("consume interaction", slog.String("err", cerr.Error()))
		}
	}

	if err := d.queue.Complete(ctx, job.ID); err != nil {
		log.Error("complete job", slog.String("err", err.Error()))
	}
	log.Info("interaction delivered", slog.Int("attempts", job.Attempts))
}

// deliver attempts delivery with exponential backoff up to MaxAttempts.
func (d *Dispatcher) deliver(ctx context.Context, bot users.User, in Interaction) (*BotResponse, error) {
	var resp *BotResponse
	op := func() error {
		var err error
		resp, err = d.deliverOnce(ctx, bot, in)
		return err
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(d.opts.MaxAttempts-1)),
		ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return resp, nil
}

func (d *Dispatcher) deliverOnce(ctx context.Context, bot users.User, in Interaction) (*BotResponse, error) {
	if fn, ok := d.registry.Lookup(bot.ID); ok {
		return fn(ctx, in)
	}
	if bot.WebhookURL == "" {
		return nil, backoff.Permanent(errors.New("bot has no webhook url and no embedded handler"))
	}
	user, err := d.users.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	payload := OutgoingPayload{
		Type:          in.Type,
		Command:       in.Command,
		WidgetID:      in.WidgetID,
		Arguments:     in.Arguments,
		InteractionID: in.ID,
		User:          UserRef{ID: user.ID, Email: user.Email, Name: user.FullName},
		StreamID:      in.StreamID,
	}
	return d.webhook.Deliver(ctx, bot.WebhookURL, payload)
}

func (d *Dispatcher) deadLetter(ctx context.Context, job *queue.Job, reason string) {
	if err := d.queue.Fail(ctx, job.ID, reason); err != nil {
		d.logger.Error("dead-letter job",
			slog.Int64("job_id", job.ID), slog.String("err", err.Error()))
	}
}
