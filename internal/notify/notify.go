// Package notify fans out operational events (locked ticks, unavailable
// nodes, reached/auto-renewal/auto-delete transitions, first client hit) to
// an admin's configured sinks plus the always-on system log. Every send is
// fire-and-forget onto a bounded channel drained by a single dispatcher
// goroutine that delivers to every sink, matching the teacher's
// scheduler/notification split: the
// component that observes the event never blocks on delivery.
package notify

import (
	"context"

	"github.com/moguard/panel/internal/domain/admin"
	"github.com/moguard/panel/internal/shared/logger"
	"go.uber.org/zap"
)

// Level classifies an event for the system log: Notify picks the log level
// from it. It is not passed on to the Telegram or Discord sinks.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is one notifiable occurrence. AdminID is zero for process-wide
// events (LockedTask, UnavailableNode) that have no single owning admin.
type Event struct {
	AdminID int64
	Level   Level
	Title   string
	Body    string
}

// Dispatcher owns the shared event queue and the one goroutine that delivers
// it to every sink. Construct once at process start; Close stops that
// goroutine without draining pending jobs.
type Dispatcher struct {
	telegram *telegramSink
	discord  *discordSink
	admins   AdminLookup
	queue    chan dispatchJob
	done     chan struct{}
}

// AdminLookup resolves an admin's notification sink configuration; backed by
// internal/cache.AdminCache in production.
type AdminLookup interface {
	ByID(id int64) (*admin.Admin, bool)
}

type dispatchJob struct {
	event Event
}

// New constructs a Dispatcher with the given bounded queue size (§5: a
// bounded channel consumed by a single dispatcher goroutine) and starts its
// background loop.
func New(queueSize int, admins AdminLookup) *Dispatcher {
	d := &Dispatcher{
		telegram: newTelegramSink(),
		discord:  newDiscordSink(),
		admins:   admins,
		queue:    make(chan dispatchJob, queueSize),
		done:     make(chan struct{}),
	}
	go d.loop()
	return d
}

// Notify enqueues an event; it never blocks the caller beyond a full queue
// (a full queue drops the event and logs a warning for each dropped event,
// matching "may be reordered /
// best-effort" semantics from §5).
func (d *Dispatcher) Notify(e Event) {
	logFields := []zap.Field{zap.String("title", e.Title), zap.String("body", e.Body), zap.Int64("admin_id", e.AdminID)}
	switch e.Level {
	case LevelError:
		logger.Get().Error("notify", logFields...)
	case LevelWarning:
		logger.Get().Warn("notify", logFields...)
	default:
		logger.Get().Info("notify", logFields...)
	}

	select {
	case d.queue <- dispatchJob{event: e}:
	default:
		logger.Get().Warn("notify: queue full, dropping event", zap.String("title", e.Title))
	}
}

func (d *Dispatcher) loop() {
	for {
		select {
		case job, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(job.event)
		case <-d.done:
			return
		}
	}
}

func (d *Dispatcher) deliver(e Event) {
	if e.AdminID == 0 || d.admins == nil {
		return
	}
	a, ok := d.admins.ByID(e.AdminID)
	if !ok {
		return
	}
	sinks := a.Notify()
	text := e.Title + "\n" + e.Body

	ctx, cancel := context.WithTimeout(context.Background(), TelegramTimeout)
	if sinks.TelegramEnabled && sinks.TelegramToken != "" && sinks.TelegramChatID != "" {
		if err := d.telegram.send(ctx, sinks.TelegramToken, sinks.TelegramChatID, sinks.TelegramTopicID, text); err != nil {
			logger.Get().Warn("notify: telegram delivery failed", zap.Error(err))
		}
	}
	cancel()

	ctx2, cancel2 := context.WithTimeout(context.Background(), DiscordTimeout)
	if sinks.DiscordEnabled && sinks.DiscordWebhookURL != "" {
		if err := d.discord.send(ctx2, sinks.DiscordWebhookURL, htmlToDiscordMarkdown(text)); err != nil {
			logger.Get().Warn("notify: discord delivery failed", zap.Error(err))
		}
	}
	cancel2()
}

// Close stops the dispatcher loop without draining pending jobs; callers
// give the loop a short grace period before process exit (§5).
func (d *Dispatcher) Close() {
	close(d.done)
}
