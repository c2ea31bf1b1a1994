package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"jetpredict-notifier/internal/dispatcher/config"
	"jetpredict-notifier/internal/dispatcher/dto"
	"jetpredict-notifier/internal/dispatcher/repository"
	"jetpredict-notifier/internal/entity"
	"jetpredict-notifier/pkg/logger"
	"jetpredict-notifier/pkg/push"
	"jetpredict-notifier/pkg/telegram"
	"jetpredict-notifier/pkg/utils"

	"github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
)

const (
	defaultWindowOffset       = 30 * time.Second
	defaultWindowWidth        = 1 * time.Second
	defaultRunTimeout         = 55 * time.Second
	defaultMarkerTTL          = 10 * time.Minute
	defaultMaxConcurrentSends = 8
	defaultAlertTitle         = "JetPredict Alert"
	defaultAlertSound         = "default"
)

// DispatcherService runs the prediction-alert dispatch loop.
type DispatcherService interface {
	Start(ctx context.Context) error
	Stop()
	Dispatch(ctx context.Context) (*dto.DispatchSummary, error)
}

type dispatcherService struct {
	cfg              *config.Config
	logger           *logger.Logger
	predictionRepo   repository.PredictionRepository
	userRepo         repository.UserRepository
	markerRepo       repository.AlertMarkerRepository
	runRepo          repository.DispatchRunRepository
	pushNotifier     push.Notifier
	telegramNotifier telegram.Notifier
	userCache        *cache.Cache
	sendLimiter      *rate.Limiter
	cron             *cron.Cron

	loc                *time.Location
	windowOffset       time.Duration
	windowWidth        time.Duration
	runTimeout         time.Duration
	maxConcurrentSends int
	alertTitle         string
	alertSound         string
}

// NewDispatcherService creates a new dispatcher service. Window geometry,
// timezone and fan-out limits come from configuration; invalid values fail
// construction rather than the first run.
func NewDispatcherService(
	cfg *config.Config,
	log *logger.Logger,
	predictionRepo repository.PredictionRepository,
	userRepo repository.UserRepository,
	markerRepo repository.AlertMarkerRepository,
	runRepo repository.DispatchRunRepository,
	pushNotifier push.Notifier,
	telegramNotifier telegram.Notifier,
) (DispatcherService, error) {
	loc := time.UTC
	if cfg.Dispatcher.TimeZone != "" {
		l, err := time.LoadLocation(cfg.Dispatcher.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("invalid dispatcher time_zone: %w", err)
		}
		loc = l
	}

	windowOffset, err := durationOrDefault(cfg.Dispatcher.WindowOffset, defaultWindowOffset)
	if err != nil {
		return nil, fmt.Errorf("invalid window_offset: %w", err)
	}
	windowWidth, err := durationOrDefault(cfg.Dispatcher.WindowWidth, defaultWindowWidth)
	if err != nil {
		return nil, fmt.Errorf("invalid window_width: %w", err)
	}
	runTimeout, err := durationOrDefault(cfg.Dispatcher.RunTimeout, defaultRunTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid run_timeout: %w", err)
	}

	maxConcurrentSends := cfg.Dispatcher.MaxConcurrentSends
	if maxConcurrentSends <= 0 {
		maxConcurrentSends = defaultMaxConcurrentSends
	}

	sendLimit := rate.Inf
	burst := maxConcurrentSends
	if cfg.Dispatcher.SendsPerSecond > 0 {
		sendLimit = rate.Limit(cfg.Dispatcher.SendsPerSecond)
		burst = cfg.Dispatcher.SendsPerSecond
	}

	alertTitle := cfg.Dispatcher.AlertTitle
	if alertTitle == "" {
		alertTitle = defaultAlertTitle
	}
	alertSound := cfg.Dispatcher.AlertSound
	if alertSound == "" {
		alertSound = defaultAlertSound
	}

	return &dispatcherService{
		cfg:                cfg,
		logger:             log,
		predictionRepo:     predictionRepo,
		userRepo:           userRepo,
		markerRepo:         markerRepo,
		runRepo:            runRepo,
		pushNotifier:       pushNotifier,
		telegramNotifier:   telegramNotifier,
		userCache:          cache.New(5*time.Minute, 10*time.Minute),
		sendLimiter:        rate.NewLimiter(sendLimit, burst),
		cron:               cron.New(),
		loc:                loc,
		windowOffset:       windowOffset,
		windowWidth:        windowWidth,
		runTimeout:         runTimeout,
		maxConcurrentSends: maxConcurrentSends,
		alertTitle:         alertTitle,
		alertSound:         alertSound,
	}, nil
}

// Start registers the dispatch tick on the cron schedule and starts the runner.
func (s *dispatcherService) Start(ctx context.Context) error {
	schedule := s.cfg.Dispatcher.Schedule
	if schedule == "" {
		schedule = "* * * * *"
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("invalid dispatcher schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info("Dispatcher started", logger.StringField("schedule", schedule), logger.StringField("time_zone", s.loc.String()))
	return nil
}

// Stop halts the cron runner and waits for an in-flight run to finish.
func (s *dispatcherService) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("Dispatcher stopped")
}

func (s *dispatcherService) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	if _, err := s.Dispatch(runCtx); err != nil {
		s.logger.Error("Dispatch run failed", logger.ErrorField(err))
	}
}

// Dispatch executes one run: match due entries, resolve recipients and fan
// out notification sends, waiting for all of them before returning.
func (s *dispatcherService) Dispatch(ctx context.Context) (*dto.DispatchSummary, error) {
	now := utils.TimeNowIn(s.loc)
	windowStart := now.Add(s.windowOffset)
	windowEnd := windowStart.Add(s.windowWidth)

	run := &entity.DispatchRun{Status: entity.RunStatusRunning, StartedAt: now}
	if err := s.runRepo.Create(ctx, run); err != nil {
		s.logger.Error("Failed to create dispatch run record", logger.ErrorField(err))
	}

	due, err := s.predictionRepo.FindDue(ctx, windowStart, windowEnd)
	if err != nil {
		s.logger.Error("Failed to query due prediction entries", logger.ErrorField(err))
		s.finishRun(ctx, run, entity.RunStatusFailed, 0, 0, 0, 0, err)
		return nil, err
	}

	if len(due) == 0 {
		s.logger.Info("No prediction entries due in window",
			logger.Field("window_start", windowStart),
			logger.Field("window_end", windowEnd))
		s.finishRun(ctx, run, entity.RunStatusCompleted, 0, 0, 0, 0, nil)
		return s.summary(run, windowStart, windowEnd), nil
	}

	var sent, failed, skipped atomic.Int64
	sem := make(chan struct{}, s.maxConcurrentSends)
	var wg sync.WaitGroup

	for _, e := range due {
		user, skipReason := s.resolveRecipient(ctx, e.OwnerID)
		if user == nil {
			s.logger.Info("Skipping prediction alert",
				logger.StringField("reason", skipReason),
				logger.StringField("owner_id", e.OwnerID),
				logger.Field("batch_id", e.BatchID))
			skipped.Add(1)
			continue
		}

		acquired, err := s.markerRepo.Acquire(ctx, e.BatchID, e.EntryIndex, e.At)
		if err != nil {
			// Marker store down: fall through and send. A possible duplicate
			// beats a silently dropped alert.
			s.logger.Warn("Failed to acquire alert marker", logger.ErrorField(err), logger.Field("batch_id", e.BatchID))
		} else if !acquired {
			s.logger.Debug("Alert already dispatched by a neighboring run",
				logger.Field("batch_id", e.BatchID),
				logger.IntField("entry_index", e.EntryIndex))
			skipped.Add(1)
			continue
		}

		entry := e
		recipient := user
		wg.Add(1)
		sem <- struct{}{}
		utils.GoSafe(func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.sendLimiter.Wait(ctx); err != nil {
				s.logger.Warn("Send aborted before reaching the gateway",
					logger.ErrorField(err),
					logger.StringField("owner_id", entry.OwnerID),
					logger.Field("batch_id", entry.BatchID))
				failed.Add(1)
				return
			}
			if err := s.send(ctx, recipient, entry); err != nil {
				s.logger.Error("Failed to send prediction alert",
					logger.ErrorField(err),
					logger.StringField("owner_id", entry.OwnerID),
					logger.Field("batch_id", entry.BatchID),
					logger.StringField("time", entry.Time))
				failed.Add(1)
				return
			}
			sent.Add(1)
		})
	}

	wg.Wait()

	status := entity.RunStatusCompleted
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		status = entity.RunStatusTimeout
		s.logger.Error("Dispatch run exceeded its timeout", logger.Field("run_id", run.ID))
	}

	s.finishRun(ctx, run, status, len(due), int(sent.Load()), int(failed.Load()), int(skipped.Load()), nil)

	statsCtx, cancelStats := terminalWriteContext(ctx)
	defer cancelStats()
	if err := s.markerRepo.RecordLastRun(statsCtx, len(due), int(sent.Load()), int(failed.Load()), now); err != nil {
		s.logger.Warn("Failed to record last run stats", logger.ErrorField(err))
	}

	s.logger.Info("Dispatch run finished",
		logger.Field("run_id", run.ID),
		logger.StringField("status", string(status)),
		logger.IntField("matched", len(due)),
		logger.IntField("sent", int(sent.Load())),
		logger.IntField("failed", int(failed.Load())),
		logger.IntField("skipped", int(skipped.Load())))

	return s.summary(run, windowStart, windowEnd), nil
}

// resolveRecipient looks up the owning user and applies the preference and
// delivery-channel gates. A nil user means the entry is skipped, with the
// reason as the second return.
func (s *dispatcherService) resolveRecipient(ctx context.Context, ownerID string) (*entity.User, string) {
	var user *entity.User
	if cached, found := s.userCache.Get(ownerID); found {
		user = cached.(*entity.User)
	} else {
		u, err := s.userRepo.FindByID(ctx, ownerID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, "user not found"
			}
			s.logger.Error("Failed to look up user", logger.ErrorField(err), logger.StringField("owner_id", ownerID))
			return nil, "user lookup failed"
		}
		s.userCache.Set(ownerID, u, cache.DefaultExpiration)
		user = u
	}

	if !user.AlertsEnabled() {
		return nil, "alerts disabled"
	}
	if !user.HasPushToken() && !(s.telegramNotifier != nil && user.HasTelegramChat()) {
		return nil, "no delivery channel"
	}

	return user, ""
}

// send delivers a single alert, preferring the push channel and falling back
// to a linked Telegram chat.
func (s *dispatcherService) send(ctx context.Context, user *entity.User, e dto.DueEntry) error {
	if user.HasPushToken() {
		return s.pushNotifier.Send(ctx, push.Notification{
			Token:    *user.PushToken,
			Title:    s.alertTitle,
			Body:     s.alertBody(e),
			Icon:     s.cfg.Push.IconURL,
			Sound:    s.alertSound,
			Tag:      e.Time,
			Renotify: true,
		})
	}
	return s.telegramNotifier.SendMessageUser(telegram.FormatPredictionAlertForTelegram(e.PredictedValue, e.Time), *user.TelegramChatID)
}

func (s *dispatcherService) alertBody(e dto.DueEntry) string {
	return fmt.Sprintf("Predicted %.2fx at %s. The round starts in about %d seconds!",
		e.PredictedValue, e.Time, int(s.windowOffset.Seconds()))
}

func (s *dispatcherService) finishRun(ctx context.Context, run *entity.DispatchRun, status entity.RunStatus, matched, sent, failed, skipped int, runErr error) {
	run.Status = status
	run.Matched = matched
	run.Sent = sent
	run.Failed = failed
	run.Skipped = skipped
	run.CompletedAt = sql.NullTime{Time: utils.TimeNowIn(s.loc), Valid: true}
	if runErr != nil {
		run.ErrorMessage = sql.NullString{String: runErr.Error(), Valid: true}
	}

	// The run context may already be past its deadline (that is how a run
	// ends up with RunStatusTimeout); the terminal status must still land.
	writeCtx, cancel := terminalWriteContext(ctx)
	defer cancel()
	if err := s.runRepo.Update(writeCtx, run); err != nil {
		s.logger.Error("Failed to update dispatch run record", logger.ErrorField(err), logger.Field("run_id", run.ID))
	}
}

// terminalWriteContext detaches from the run context's deadline while keeping
// its values, with a fresh cap so a terminal write cannot hang shutdown.
func terminalWriteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

func (s *dispatcherService) summary(run *entity.DispatchRun, windowStart, windowEnd time.Time) *dto.DispatchSummary {
	return &dto.DispatchSummary{
		RunID:       run.ID,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		Matched:     run.Matched,
		Sent:        run.Sent,
		Failed:      run.Failed,
		Skipped:     run.Skipped,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}
}

func durationOrDefault(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	return time.ParseDuration(raw)
}
