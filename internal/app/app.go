// Package app wires configuration, storage and services into a running bot.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"sharebot/internal/bot"
	"sharebot/internal/broadcast"
	"sharebot/internal/config"
	"sharebot/internal/delivery"
	"sharebot/internal/eventbus"
	"sharebot/internal/events"
	"sharebot/internal/observability/ops"
	rtsup "sharebot/internal/runtime/supervisor"
	"sharebot/internal/session"
	"sharebot/internal/settings"
	"sharebot/internal/storage"
	"sharebot/internal/sweeper"
	kit "sharebot/internal/transport"
	telegram "sharebot/internal/transport/telegram/adapter"
	"sharebot/internal/vault"
	"sharebot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    vault.Store
	sessions session.Store
	pub      events.Publisher
	fwd      *events.Forwarder

	adapter   *telegram.Adapter
	vault     *vault.Service
	settings  *settings.Store
	sweeper   *sweeper.Service
	broadcast *broadcast.Service
	ops       *ops.Server
	bot       *bot.Bot

	startedAt time.Time
	updates   chan kit.Update
}

// NewApp loads the config and builds every component. Nothing runs until Start.
func NewApp(ctx context.Context, cfgPath string) (_ *App, err error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		APIURL:      cfg.Telegram.APIURL,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg), nil)
	appLog := log.With(logx.String("comp", "app"))

	a := &App{
		cfgm:      cfgm,
		log:       appLog,
		logs:      logSvc,
		bus:       eventbus.New(),
		adapter:   ad,
		startedAt: time.Now(),
		updates:   make(chan kit.Update, 256),
	}
	// Release whatever was opened if a later step fails.
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	sc, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	a.store, err = storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	appLog.Info("storage opened", logx.String("driver", sc.Driver))

	a.sessions, err = session.Open(ctx, mapSession(cfg), log.With(logx.String("comp", "session")))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	a.settings = settings.New(a.store, log.With(logx.String("comp", "settings")))
	if _, err := a.settings.Init(ctx, mapDefaults(cfg)); err != nil {
		return nil, fmt.Errorf("init settings: %w", err)
	}

	a.vault = vault.NewService(a.store, ad,
		vault.WithDefaults(a.settings),
		vault.WithBus(a.bus),
		vault.WithCodes(cfg.Vault.CodeLength, cfg.Vault.CodeAttempts),
		vault.WithLogger(log.With(logx.String("comp", "vault"))),
	)

	dc, err := mapDelivery(cfg)
	if err != nil {
		return nil, err
	}
	links := delivery.NewService(a.vault, delivery.NewEngine(ad, dc, log.With(logx.String("comp", "delivery"))))

	swc, err := mapSweeper(cfg)
	if err != nil {
		return nil, err
	}
	a.sweeper = sweeper.New(swc, a.store, a.bus, log.With(logx.String("comp", "sweeper")))

	bcc, err := mapBroadcast(cfg)
	if err != nil {
		return nil, err
	}
	a.broadcast = broadcast.New(bcc, ad, a.vault, a.sessions, log.With(logx.String("comp", "broadcast")), broadcast.WithBus(a.bus))

	if cfg.Events.Enabled {
		a.pub, err = events.NewAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange, log.With(logx.String("comp", "events")))
		if err != nil {
			return nil, err
		}
	} else {
		a.pub = events.NewLogPublisher(log.With(logx.String("comp", "events")))
	}
	a.fwd = events.NewForwarder(a.bus, a.pub, log.With(logx.String("comp", "events")))

	oc, err := mapOps(cfg)
	if err != nil {
		return nil, err
	}
	a.ops = ops.New(oc, a.health, log.With(logx.String("comp", "ops")))

	bc, err := mapBot(cfg)
	if err != nil {
		return nil, err
	}
	a.bot = bot.New(bc, bot.Deps{
		Adapter:   ad,
		Vault:     a.vault,
		Links:     links,
		Settings:  a.settings,
		Broadcast: a.broadcast,
		Sessions:  a.sessions,
		Log:       log.With(logx.String("comp", "bot")),
		StartedAt: a.startedAt,
	})
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health(ctx context.Context) (map[string]any, error) {
	st, err := a.store.Stats(ctx)
	if err != nil {
		return map[string]any{"storage": err.Error()}, err
	}
	return map[string]any{
		"storage":   "ok",
		"items":     st.Items,
		"batches":   st.Batches,
		"consumers": st.Consumers,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		for _, fn := range []func(*config.Config) error{
			func(c *config.Config) error { _, err := mapBroadcast(c); return err },
			func(c *config.Config) error { _, err := mapSweeper(c); return err },
			func(c *config.Config) error { _, err := mapOps(c); return err },
			func(c *config.Config) error { _, err := mapBot(c); return err },
		} {
			if err := fn(cfg); err != nil {
				return err
			}
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	// The log chat sink stays silent until the adapter is up.
	a.logs.SetSender(a.adapter)

	if err := a.bot.UpdateMenu(a.sup.Context()); err != nil {
		a.log.Warn("command menu update failed", logx.Err(err))
	}

	a.broadcast.Start(a.sup.Context())
	a.sweeper.Start(a.sup.Context())
	a.ops.Start(a.sup.Context())

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.bot.Run(c, a.updates)
	})
	a.sup.Go("events.forward", a.fwd.Run)

	evs, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-evs:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	a.log.Info("app started", logx.String("bot", a.adapter.Username()))
	return nil
}

// applyConfig hot-applies the reloadable sections of newCfg.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.NeedsRestart(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogging(newCfg))
	a.bot.SetOwners(newCfg.Telegram.OwnerUserIDs)

	if bc, err := mapBroadcast(newCfg); err != nil {
		a.log.Warn("invalid broadcast config; keeping previous", logx.Err(err))
	} else {
		a.broadcast.Apply(bc)
	}
	if sc, err := mapSweeper(newCfg); err != nil {
		a.log.Warn("invalid sweeper config; keeping previous", logx.Err(err))
	} else {
		a.sweeper.Apply(sc)
	}
	if oc, err := mapOps(newCfg); err != nil {
		a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
	} else {
		a.ops.Reconfigure(ctx, oc)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", reason.String()))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context)) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer func() {
				if r := recover(); r != nil {
					a.log.Error("panic in stop step", logx.String("name", name), logx.Any("panic", r))
				}
			}()
			fn(stepCtx)
		}()
		select {
		case <-done:
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("adapter", 3*time.Second, func(c context.Context) { _ = a.adapter.Stop(c) })
	step("broadcast", 3*time.Second, a.broadcast.Stop)
	step("sweeper", 2*time.Second, a.sweeper.Stop)
	step("ops", 2*time.Second, a.ops.Stop)
	step("supervisor", 3*time.Second, func(c context.Context) { _ = a.sup.Wait(c) })

	a.closeResources()
	a.log.Info("stopped", logx.String("reason", string(reason)))
	_ = a.logs.Close()
	return nil
}

func (a *App) closeResources() {
	if a.pub != nil {
		if err := a.pub.Close(); err != nil {
			a.log.Warn("event publisher close failed", logx.Err(err))
		}
	}
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			a.log.Warn("session store close failed", logx.Err(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
}
