package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dayzmon/internal/eventbus"
	"dayzmon/pkg/logx"
)

// Syncer is what the Poller hands each new snapshot to.
type Syncer interface {
	Sync(ctx context.Context, prev, next *Snapshot) error
}

type PollerConfig struct {
	Schedule cron.Schedule
	// CycleTimeout bounds query + sync of one cycle. 0 means no bound.
	CycleTimeout time.Duration
}

// Poller drives the pipeline: Source -> Extract -> Cache -> Syncer.
type Poller struct {
	cfg   PollerConfig
	src   Source
	cache *Cache
	sync  Syncer
	log   logx.Logger
	bus   eventbus.Bus
	stats *Stats
	now   func() time.Time

	cycleMu sync.Mutex
}

func NewPoller(cfg PollerConfig, src Source, cache *Cache, syncer Syncer, log logx.Logger, bus eventbus.Bus, stats *Stats) *Poller {
	if cfg.Schedule == nil {
		cfg.Schedule = cron.Every(time.Minute)
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Poller{
		cfg:   cfg,
		src:   src,
		cache: cache,
		sync:  syncer,
		log:   log,
		bus:   bus,
		stats: stats,
		now:   time.Now,
	}
}

// Run executes one cycle immediately and then one per schedule tick until
// ctx is canceled. Cycle errors are logged, never returned.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poller started", logx.String("source", p.src.Name()), logx.Duration("cycle_timeout", p.cfg.CycleTimeout))
	for {
		_ = p.RunOnce(ctx)

		next := p.cfg.Schedule.Next(p.now())
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			p.log.Info("poller stopped")
			return nil
		case <-t.C:
		}
	}
}

// RunOnce executes a single cycle. The returned error has already been
// logged and counted; it is exposed for callers that report it (tests, the
// refresh command). Concurrent calls are serialized.
func (p *Poller) RunOnce(ctx context.Context) error {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	cctx := ctx
	if p.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, p.cfg.CycleTimeout)
		defer cancel()
	}

	start := p.now()
	raw, err := p.src.Query(cctx)
	if err != nil {
		result := classifyPollError(err)
		p.stats.notePoll(result)
		p.bus.Publish(eventbus.Event{Type: eventbus.TypePollError, Data: result})
		p.log.Warn("server query failed", logx.String("source", p.src.Name()), logx.String("result", result), logx.Err(err))
		return err
	}

	if p.log.Enabled(logx.LevelTrace) {
		kw := "<absent>"
		if raw.Keywords != nil {
			kw = *raw.Keywords
		}
		p.log.Trace("raw status", logx.String("source", p.src.Name()), logx.String("name", raw.Name), logx.String("keywords", kw))
	}

	snap, err := Extract(raw)
	if err != nil {
		p.stats.notePoll(ResultMissingKeywords)
		p.bus.Publish(eventbus.Event{Type: eventbus.TypePollError, Data: ResultMissingKeywords})
		p.log.Warn("status extraction failed", logx.String("source", p.src.Name()), logx.Err(err))
		return err
	}
	snap.Source = raw.Source
	if snap.Source == "" {
		snap.Source = p.src.Name()
	}
	snap.Observed = p.now()
	if snap.OverCapacity() {
		p.log.Warn("server reports more players than slots", logx.Uint32("players", snap.Players), logx.Uint32("max_players", snap.MaxPlayers))
	}

	next := &snap
	prev := p.cache.Swap(next)
	p.stats.notePoll(ResultOK)
	p.bus.Publish(eventbus.Event{Type: eventbus.TypeSnapshot, Data: next})

	fields := []logx.Field{
		logx.Uint32("players", snap.Players),
		logx.Uint32("max_players", snap.MaxPlayers),
		logx.Duration("took", p.now().Sub(start)),
	}
	if snap.PlayersInQueue != nil {
		fields = append(fields, logx.Uint32("queue", *snap.PlayersInQueue))
	}
	if snap.ServerTime != nil {
		fields = append(fields, logx.String("server_time", *snap.ServerTime))
	}
	p.log.Debug("snapshot updated", fields...)

	if p.sync == nil {
		return nil
	}
	if err := p.sync.Sync(cctx, prev, next); err != nil {
		if errors.Is(err, ErrRateLimited) {
			return nil
		}
		p.log.Warn("display sync failed", logx.Err(err))
		return err
	}
	return nil
}

func classifyPollError(err error) string {
	switch {
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return ResultNetworkError
	case errors.Is(err, ErrProtocol):
		return ResultProtocolError
	case errors.Is(err, ErrMissingKeywords):
		return ResultMissingKeywords
	default:
		return ResultError
	}
}
