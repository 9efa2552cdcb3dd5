// Package app builds the bridge's object graph from configuration: stores,
// queues, the chat client, the services and the background loops that drain
// the queues. Everything is constructed once in New and passed explicitly;
// nothing is reached through package-level singletons.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/pollcord/internal/config"
	"github.com/tbourn/pollcord/internal/discord"
	"github.com/tbourn/pollcord/internal/dispatch"
	"github.com/tbourn/pollcord/internal/email"
	httpapi "github.com/tbourn/pollcord/internal/http"
	"github.com/tbourn/pollcord/internal/queue"
	"github.com/tbourn/pollcord/internal/repo"
	"github.com/tbourn/pollcord/internal/services"
	"github.com/tbourn/pollcord/internal/session"
)

const (
	reconcileInterval = 5 * time.Minute
	reconcileBatch    = 100
	sweepInterval     = 10 * time.Minute
)

// Queues holds the three task queues, named for the configured region.
type Queues struct {
	Interactions  *queue.Queue
	Cards         *queue.Queue
	Notifications *queue.Queue
}

// App is the wired application.
type App struct {
	Config config.Config
	DB     *gorm.DB
	Redis  *redis.Client

	Queues   Queues
	Sessions *session.RedisStore
	Chat     *discord.Client
	Verifier *discord.Verifier

	Interactions  *services.InteractionService
	Cards         *services.CardSyncService
	Notifications *services.NotificationService
	Links         *services.LinkFlow
	Votes         *services.VoteFlow

	// Mail is nil when SMTP is not configured; queued mail stays pending.
	Mail *email.Dispatcher
}

// New wires an App on top of an open database and redis client.
func New(cfg config.Config, db *gorm.DB, rdb *redis.Client) (*App, error) {
	if db == nil || rdb == nil {
		return nil, errors.New("app: database and redis client are required")
	}
	verifier, err := discord.NewVerifier(cfg.Discord.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	qname := func(name string) string {
		return queue.QualifiedName(cfg.Queue.Region, cfg.Queue.PrimaryRegion, name)
	}
	a := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Queues: Queues{
			// An interaction comes back only once its lock can be reclaimed.
			Interactions:  queue.New(rdb, qname(queue.Interactions)).WithLease(max(cfg.Queue.Lease, cfg.LockTTL)),
			Cards:         queue.New(rdb, qname(queue.CardSync)).WithLease(cfg.Queue.Lease),
			Notifications: queue.New(rdb, qname(queue.Notifications)).WithLease(cfg.Queue.Lease),
		},
		Sessions: session.NewRedisStoreWithClient(rdb, cfg.VoteSessionTTL),
		Chat:     discord.NewClient(cfg.Discord.APIBase, cfg.Discord.BotToken, cfg.Discord.APIRPS),
		Verifier: verifier,
	}

	a.Cards = &services.CardSyncService{
		DB:         db,
		Chat:       a.Chat,
		Queue:      a.Queues.Cards,
		Debounce:   cfg.CardSyncDebounce,
		AppBaseURL: cfg.AppBaseURL,
	}
	a.Notifications = &services.NotificationService{
		DB:         db,
		Chat:       a.Chat,
		Queue:      a.Queues.Notifications,
		AppName:    cfg.SMTP.FromName,
		AppBaseURL: cfg.AppBaseURL,
	}
	a.Links = &services.LinkFlow{DB: db, MaxAttempts: cfg.LinkCodeMaxAttempts, CodeTTL: cfg.LinkCodeTTL}
	a.Votes = &services.VoteFlow{DB: db, Sessions: a.Sessions, Cards: a.Cards}

	router := dispatch.NewRouter()
	a.Links.Register(router)
	a.Votes.Register(router)
	a.Interactions = services.NewInteractionService(db, a.Chat, router, cfg.Discord.ApplicationID)
	a.Interactions.LockTTL = cfg.LockTTL
	a.Interactions.TokenTTL = cfg.Discord.TokenTTL

	if cfg.EmailEnabled() {
		a.Mail = &email.Dispatcher{
			DB: db,
			Sender: email.NewService(email.Config{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				Username: cfg.SMTP.Username,
				Password: cfg.SMTP.Password,
				From:     cfg.SMTP.From,
				FromName: cfg.SMTP.FromName,
			}),
			MaxAttempts: cfg.Queue.MaxAttempts,
		}
	}
	return a, nil
}

// Deps returns the HTTP route dependencies.
func (a *App) Deps() httpapi.Deps {
	return httpapi.Deps{
		Verifier:     a.Verifier,
		Interactions: a.Queues.Interactions,
		Cards:        a.Cards,
		Events:       a.Notifications,
		Links:        a.Links,
		Ready:        a.Ready,
	}
}

// Ready pings the database and redis.
func (a *App) Ready(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := a.Sessions.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func (a *App) runnerConfig() queue.RunnerConfig {
	return queue.RunnerConfig{
		Concurrency:  a.Config.Queue.Concurrency,
		PollInterval: a.Config.Queue.PollInterval,
		MaxAttempts:  a.Config.Queue.MaxAttempts,
		BackoffMin:   a.Config.Queue.BackoffMin,
		BackoffMax:   a.Config.Queue.BackoffMax,
	}
}

// Run drains every queue and runs the periodic loops until ctx is cancelled.
// It returns once all workers have stopped.
func (a *App) Run(ctx context.Context) {
	rc := a.runnerConfig()
	loops := []func(context.Context){
		queue.NewRunner(a.Queues.Interactions, a.Interactions.HandleTask, rc).Run,
		queue.NewRunner(a.Queues.Cards, a.Cards.HandleTask, rc).Run,
		queue.NewRunner(a.Queues.Notifications, a.Notifications.HandleTask, rc).Run,
		func(ctx context.Context) { every(ctx, reconcileInterval, a.reconcileCards) },
		func(ctx context.Context) { every(ctx, sweepInterval, a.sweepLocks) },
	}
	if a.Mail != nil {
		loops = append(loops, a.Mail.Run)
	} else {
		log.Warn().Msg("SMTP not configured; email notifications stay queued")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, run := range loops {
		g.Go(func() error {
			run(gctx)
			return nil
		})
	}
	_ = g.Wait()
}

func (a *App) reconcileCards(ctx context.Context) {
	n, err := a.Cards.ReconcilePending(ctx, reconcileBatch)
	if err != nil {
		log.Error().Err(err).Msg("card reconcile failed")
		return
	}
	if n > 0 {
		log.Info().Int("scheduled", n).Msg("pending cards rescheduled")
	}
}

// sweepLocks drops done interaction locks older than the token window.
func (a *App) sweepLocks(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-a.Config.Discord.TokenTTL)
	n, err := repo.SweepInteractionLocks(ctx, a.DB, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("interaction lock sweep failed")
		return
	}
	if n > 0 {
		log.Debug().Int64("deleted", n).Msg("interaction locks swept")
	}
}

// every runs fn after each interval tick until ctx is cancelled.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn(ctx)
		}
	}
}
