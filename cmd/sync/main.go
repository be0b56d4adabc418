package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	stdSync "sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"calsync/config"
	"calsync/internal/engine"
	"calsync/internal/httpserver"
	"calsync/internal/model"
	caldavProvider "calsync/internal/provider/caldav"
	googleProvider "calsync/internal/provider/google"
	syncDomain "calsync/internal/sync"
	"calsync/internal/sync/usecase"
	"calsync/internal/webhook"
	"calsync/pkg/log"
	"calsync/pkg/obfuscate"
)

func main() {
	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Failed to load config: ", err)
		return
	}

	// 2. Logger
	logger := log.Init(log.ZapConfig{
		Level:        cfg.Logger.Level,
		Mode:         cfg.Logger.Mode,
		Encoding:     cfg.Logger.Encoding,
		ColorEnabled: cfg.Logger.ColorEnabled,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "Starting calsync...")
	logger.Infof(ctx, "Environment: %s", cfg.Environment.Name)

	settings, err := buildSettings(cfg.Sync)
	if err != nil {
		logger.Fatalf(ctx, "Invalid sync configuration: %v", err)
	}
	obf := buildObfuscator(ctx, cfg.Sync.Obfuscation, settings.Direction, logger)

	// 3. Left side: CalDAV
	left, err := caldavProvider.New(caldavProvider.Config{
		Endpoint:     cfg.CalDAV.Endpoint,
		Username:     cfg.CalDAV.Username,
		Password:     cfg.CalDAV.Password,
		CalendarPath: cfg.CalDAV.CalendarPath,
	}, logger)
	if err != nil {
		logger.Fatalf(ctx, "CalDAV client: %v", err)
	}
	if err := left.Discover(ctx); err != nil {
		logger.Fatalf(ctx, "CalDAV discovery: %v", err)
	}

	// 4. Right side: Google Calendar
	right, err := googleProvider.NewFromCredentialsFile(ctx, googleProvider.Config{
		CredentialsFile:   cfg.Google.CredentialsPath,
		TokenFile:         cfg.Google.TokenPath,
		CalendarID:        cfg.Google.CalendarID,
		RequestsPerSecond: cfg.Google.RequestsPerSecond,
	}, logger)
	if err != nil {
		logger.Fatalf(ctx, "Google Calendar client: %v", err)
		return
	}
	logger.Infof(ctx, "Syncing %s (right) %s %s (left)",
		right.CollectionID(), settings.Direction, left.CollectionID())

	var prompter syncDomain.Prompter
	if cfg.Sync.ConfirmDeletes {
		prompter = newConsolePrompter()
	}
	win := syncDomain.Window{DaysPast: cfg.Sync.DaysPast, DaysFuture: cfg.Sync.DaysFuture}

	// 5. Pass runner. Passes never overlap; LastSyncAt advances only on
	// a pass that finished without a fatal error.
	var passMu stdSync.Mutex
	var lastSyncAt time.Time
	runPass := func(trigger string) {
		if !passMu.TryLock() {
			logger.Warnf(ctx, "Pass already running, dropping %s trigger", trigger)
			return
		}
		defer passMu.Unlock()

		st := settings
		st.LastSyncAt = lastSyncAt
		uc := usecase.New(logger, st, left, right, win, obf, prompter)

		started := time.Now()
		res, err := uc.RunPass(ctx)
		if err != nil {
			logger.Errorf(ctx, "Pass (%s trigger) failed: %v", trigger, err)
			return
		}
		lastSyncAt = started
		logger.Infof(ctx, "Pass (%s trigger): %d created, %d updated, %d deleted, %d skipped, %d errors",
			trigger, res.Created, res.Updated, res.Deleted, res.Skipped, len(res.Errors))
	}

	// 6. Push notifications (optional)
	if cfg.Webhook.Enabled {
		handler := webhook.NewHandler(cfg.Webhook.ChannelToken, logger)

		srv, err := httpserver.New(logger, httpserver.Config{
			Logger:         logger,
			Port:           cfg.HTTPServer.Port,
			Mode:           cfg.HTTPServer.Mode,
			WebhookHandler: handler,
		})
		if err != nil {
			logger.Fatalf(ctx, "HTTP server: %v", err)
		}
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Errorf(ctx, "HTTP server stopped: %v", err)
			}
		}()

		if cfg.Webhook.CallbackURL != "" {
			ch, err := right.Watch(ctx, cfg.Webhook.CallbackURL+"/webhook/google", cfg.Webhook.ChannelToken)
			if err != nil {
				logger.Warnf(ctx, "Push channel registration failed, staying on schedule only: %v", err)
			} else {
				logger.Infof(ctx, "Push channel %s registered", ch.Id)
				defer func() {
					if err := right.StopWatch(context.Background(), ch); err != nil {
						logger.Warnf(ctx, "Push channel teardown: %v", err)
					}
				}()
			}
		}

		// Drain the notification counter into early passes.
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := handler.Reset(); n > 0 {
						logger.Infof(ctx, "%d change notifications pending, running early pass", n)
						runPass("push")
					}
				}
			}
		}()
	}

	// 7. Schedule
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Sync.Schedule, func() { runPass("schedule") }); err != nil {
		logger.Fatalf(ctx, "Invalid schedule %q: %v", cfg.Sync.Schedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	runPass("startup")

	<-ctx.Done()
	logger.Info(ctx, "Shutting down calsync...")
}

// buildSettings maps the file configuration onto engine settings.
func buildSettings(sc config.SyncConfig) (engine.Settings, error) {
	st := engine.DefaultSettings()

	st.Direction = model.Direction(sc.Direction)
	if !st.Direction.Valid() {
		return st, fmt.Errorf("unknown sync direction %q", sc.Direction)
	}
	st.MergeItems = sc.MergeItems
	st.DisableDelete = sc.DisableDelete
	st.SyncDescriptions = sc.SyncDescriptions
	st.DescriptionsToRightOnly = sc.DescriptionsToRightOnly
	st.SyncAttendees = sc.SyncAttendees
	st.SyncReminders = sc.SyncReminders
	if sc.MaxAttendees > 0 {
		st.MaxAttendees = sc.MaxAttendees
	}
	st.EnforcePrivate = sc.EnforcePrivate
	st.EnforceAvailable = sc.EnforceAvailable
	if sc.EnforcementSide == "right" {
		st.EnforcementSide = engine.SideRight
	} else {
		st.EnforcementSide = engine.SideLeft
	}
	st.CreatedItemsOnly = sc.CreatedItemsOnly

	st.ReminderDND = sc.ReminderDND
	var err error
	if st.DNDStart, err = parseClock(sc.DNDStart); err != nil {
		return st, fmt.Errorf("sync.dnd_start: %w", err)
	}
	if st.DNDEnd, err = parseClock(sc.DNDEnd); err != nil {
		return st, fmt.Errorf("sync.dnd_end: %w", err)
	}
	return st, nil
}

// parseClock converts a wall-clock "15:04" string to a start-of-day
// offset.
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func buildObfuscator(ctx context.Context, oc config.ObfuscationConfig, syncDirection model.Direction, logger log.Logger) *obfuscate.Engine {
	if !oc.Enabled {
		return obfuscate.New(syncDirection, nil, nil)
	}
	direction := syncDirection
	if oc.Direction != "" {
		direction = model.Direction(oc.Direction)
	}
	rules := make([]obfuscate.Rule, 0, len(oc.Rules))
	for _, r := range oc.Rules {
		rules = append(rules, obfuscate.Rule{Find: r.Find, Replace: r.Replace})
	}
	return obfuscate.New(direction, rules, func(pattern string, err error) {
		logger.Warnf(ctx, "Obfuscation rule %q dropped: %v", pattern, err)
	})
}
