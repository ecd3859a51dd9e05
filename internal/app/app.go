// Package app wires config, storage, the chat backend and the monitor
// pipeline into one process lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dayzmon/internal/commands"
	"dayzmon/internal/config"
	"dayzmon/internal/eventbus"
	"dayzmon/internal/monitor"
	"dayzmon/internal/observability/ops"
	rtsup "dayzmon/internal/runtime/supervisor"
	"dayzmon/internal/storage"
	kit "dayzmon/internal/transport"
	"dayzmon/internal/transport/discord"
	"dayzmon/internal/transport/telegram"
	"dayzmon/pkg/logx"
	"dayzmon/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	sup   *rtsup.Supervisor
	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	cache  *monitor.Cache
	stats  *monitor.Stats
	poller *monitor.Poller
	router *commands.Router
	ops    *ops.Service
	sd     *systemd.Notifier

	messages chan kit.Message
}

// New loads the config and builds every component. Config errors wrap
// config.ErrInvalid; the Telegram backend verifies its token here (ErrAuth).
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogConfig(cfg), nil)
	log := root.With(logx.String("comp", "app"))
	bus := eventbus.New()

	var store storage.Store
	if sc, enabled := mapStorageConfig(cfg); enabled {
		st, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
		if err != nil {
			logSvc.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	ad, err := newAdapter(cfg, store, root)
	if err != nil {
		closeStore(store)
		logSvc.Close()
		return nil, err
	}
	if s, ok := ad.(logx.Sender); ok {
		logSvc.SetSender(s)
	}

	pcfg, err := mapPollerConfig(cfg)
	if err != nil {
		closeStore(store)
		logSvc.Close()
		return nil, err
	}

	var syncStore monitor.SyncStore
	if store != nil {
		syncStore = store
	}
	cache := monitor.NewCache()
	stats := &monitor.Stats{}
	syncer := monitor.NewSynchronizer(mapSyncConfig(cfg), ad, syncStore, root.With(logx.String("comp", "sync")), bus, stats)
	src := mapSource(cfg, nil, root.With(logx.String("comp", "source")))
	poller := monitor.NewPoller(pcfg, src, cache, syncer, root.With(logx.String("comp", "poller")), bus, stats)

	router := commands.New(mapCommandsConfig(cfg), cache, poller, ad, root.With(logx.String("comp", "commands")))

	opsSvc := ops.New(mapOpsConfig(cfg), cache, ops.NewCollector(cache, stats), root.With(logx.String("comp", "ops")))
	if err := opsSvc.Check(); err != nil {
		closeStore(store)
		logSvc.Close()
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	return &App{
		cfgm:     cfgm,
		cfg:      cfg,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		cache:    cache,
		stats:    stats,
		poller:   poller,
		router:   router,
		ops:      opsSvc,
		sd:       systemd.NewNotifier(root.With(logx.String("comp", "systemd"))),
		messages: make(chan kit.Message, 256),
	}, nil
}

func newAdapter(cfg *config.Config, store storage.Store, root logx.Logger) (kit.Adapter, error) {
	switch p := platform(cfg); p {
	case config.PlatformDiscord:
		ad, err := discord.New(mapDiscordConfig(cfg), root.With(logx.String("comp", "discord")))
		if err != nil {
			return nil, err
		}
		return ad, nil
	case config.PlatformTelegram:
		var topics telegram.TopicStore
		if store != nil {
			topics = store
		}
		ad, err := telegram.New(mapTelegramConfig(cfg), topics, root.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		return ad, nil
	default:
		return nil, fmt.Errorf("%w: chat.platform: unknown platform %q", config.ErrInvalid, p)
	}
}

func closeStore(st storage.Store) {
	if st != nil {
		_ = st.Close()
	}
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

// Start connects the chat backend and launches the supervised loops.
// A rejected chat credential is returned wrapped in transport.ErrAuth.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.messages); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("start %s: %w", a.adapter.Name(), err)
	}
	a.router.SetUsername(a.adapter.Username())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.messages)
	})
	a.sup.GoRestart("monitor.poller", a.poller.Run,
		rtsup.WithRestartBackoff(time.Second, 30*time.Second),
	)
	if err := a.ops.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}

	events, unsub := a.bus.Subscribe(16)
	a.sup.Go0("monitor.presence", func(c context.Context) {
		defer unsub()
		a.presenceLoop(c, events)
	})

	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", a.sd.Watchdog)

	a.sd.Ready()
	a.log.Info("app started",
		logx.String("platform", a.adapter.Name()),
		logx.String("server", a.cfg.Monitor.DisplayName),
		logx.String("source", config.SourceOf(a.cfg.Monitor)),
	)
	return nil
}

// presenceLoop mirrors snapshots into the bot presence (where supported)
// and the systemd status line.
func (a *App) presenceLoop(ctx context.Context, events <-chan eventbus.Event) {
	pu, _ := a.adapter.(kit.PresenceUpdater)
	last := ""
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Type != eventbus.TypeSnapshot {
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				continue
			}
			snap, _ := e.Data.(*monitor.Snapshot)
			if snap == nil {
				continue
			}
			text := presenceText(snap)
			if text == last {
				continue
			}
			a.sd.Status(monitor.DisplayName(a.cfg.Monitor.DisplayName, snap))
			if pu == nil {
				last = text
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := pu.SetPresence(pctx, text)
			cancel()
			if err != nil {
				a.log.Debug("presence update failed", logx.Err(err))
				continue
			}
			last = text
		}
	}
}

// presenceText renders "40(+5)/60 players | 12:34".
func presenceText(s *monitor.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", s.Players)
	if s.PlayersInQueue != nil {
		fmt.Fprintf(&b, "(+%d)", *s.PlayersInQueue)
	}
	fmt.Fprintf(&b, "/%d players", s.MaxPlayers)
	if s.ServerTime != nil {
		b.WriteString(" | " + *s.ServerTime)
	}
	return b.String()
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	applied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			sections, attrs := config.SummarizeChange(applied, next)
			applied = next
			if len(sections) == 0 {
				a.log.Info("config reloaded (no changes)")
				continue
			}
			a.logs.Apply(mapLogConfig(next))
			a.router.SetOwners(next.Chat.OwnerIDs)

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
			if pending := config.RestartRequired(sections); len(pending) > 0 {
				a.log.Warn("config changed; restart required for changes to take effect",
					logx.String("sections", strings.Join(pending, ",")))
			}
		}
	}
}

// Stop shuts components down in reverse start order, bounding each step.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		closeStore(a.store)
		a.logs.Close()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("supervisor", 3*time.Second, a.sup.Stop)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	c := a.sup.Counters()
	a.log.Info("stopped", logx.Int64("tasks_active", c.Active), logx.Uint64("tasks_started", c.Started))
	a.logs.Close()
	return nil
}
