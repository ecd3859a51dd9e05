package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dayzmon/internal/eventbus"
	"dayzmon/internal/storage"
	"dayzmon/pkg/logx"
)

// Channel is a display channel (Discord channel, Telegram forum topic).
type Channel struct {
	ID   string
	Name string
}

// Directory is the narrow slice of the chat platform the Synchronizer needs.
type Directory interface {
	Channels(ctx context.Context) ([]Channel, error)
	CreateChannel(ctx context.Context, name string) (Channel, error)
	RenameChannel(ctx context.Context, id, name string) error
}

// SyncStore persists the channel binding and the audit trail. Optional.
type SyncStore interface {
	GetBinding(ctx context.Context, key string) (storage.Binding, bool, error)
	PutBinding(ctx context.Context, key string, b storage.Binding) error
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type SyncConfig struct {
	// DisplayName prefixes the derived name and identifies existing channels.
	DisplayName string
	// ChannelID pins the target channel; empty means scan by prefix.
	ChannelID string
	// RenameEvery/RenameBurst form a token bucket for external calls.
	// RenameEvery <= 0 disables limiting.
	RenameEvery time.Duration
	RenameBurst int
}

// Synchronizer renames (or creates) the display channel when the derived
// name changes.
//
// The baseline is the last name that was successfully applied. A failed or
// rate limited call leaves it pinned, so the next cycle tries again.
type Synchronizer struct {
	cfg     SyncConfig
	dir     Directory
	store   SyncStore
	limiter *rate.Limiter
	log     logx.Logger
	bus     eventbus.Bus
	stats   *Stats
	now     func() time.Time

	runMu sync.Mutex // serializes Sync

	mu      sync.Mutex
	loaded  bool
	applied string
	boundID string
}

func NewSynchronizer(cfg SyncConfig, dir Directory, store SyncStore, log logx.Logger, bus eventbus.Bus, stats *Stats) *Synchronizer {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	s := &Synchronizer{
		cfg:   cfg,
		dir:   dir,
		store: store,
		log:   log,
		bus:   bus,
		stats: stats,
		now:   time.Now,
	}
	if cfg.RenameEvery > 0 {
		s.limiter = rate.NewLimiter(rate.Every(cfg.RenameEvery), max(1, cfg.RenameBurst))
	}
	return s
}

func (s *Synchronizer) bindingKey() string { return "sync." + s.cfg.DisplayName }

// Applied returns the last display name that reached the backend.
func (s *Synchronizer) Applied() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}

// Sync brings the display in line with next. prev is the snapshot next
// replaced (nil on the first cycle); it is only used for logging.
func (s *Synchronizer) Sync(ctx context.Context, prev, next *Snapshot) error {
	if next == nil || s.dir == nil {
		return nil
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.loadBinding(ctx)

	want := DisplayName(s.cfg.DisplayName, next)
	s.mu.Lock()
	applied, boundID := s.applied, s.boundID
	s.mu.Unlock()

	if want == applied {
		s.stats.noteSync(ResultUnchanged)
		return nil
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.stats.noteSync(ResultRateLimited)
		s.log.Debug("display sync deferred (rate limited)", logx.String("want", want))
		return ErrRateLimited
	}

	s.log.Debug("display changed",
		logx.String("from", DisplayName(s.cfg.DisplayName, prev)),
		logx.String("applied", applied),
		logx.String("to", want),
	)

	start := s.now()
	action, id, err := s.apply(ctx, boundID, want)
	s.audit(ctx, action, id, want, start, err)
	if err != nil {
		s.stats.noteSync(ResultError)
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeSyncError, Data: want})
		// Forget a remembered (not configured) channel so the next cycle rescans.
		if boundID != "" && s.cfg.ChannelID == "" {
			s.mu.Lock()
			s.boundID = ""
			s.mu.Unlock()
		}
		return fmt.Errorf("%w: %s %q: %w", ErrSync, action, want, err)
	}

	s.mu.Lock()
	s.applied = want
	s.boundID = id
	s.mu.Unlock()
	s.stats.noteSync(ResultOK)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeSynced, Data: want})
	s.log.Info("display synced", logx.String("action", action), logx.String("channel", id), logx.String("name", want))

	if s.store != nil {
		b := storage.Binding{ChannelID: id, Display: want, SyncedAt: s.now()}
		if err := s.store.PutBinding(ctx, s.bindingKey(), b); err != nil {
			s.log.Warn("persist sync binding failed", logx.Err(err))
		}
	}
	return nil
}

// apply resolves the target channel and issues exactly one external call.
func (s *Synchronizer) apply(ctx context.Context, boundID, want string) (action, id string, err error) {
	if id := s.cfg.ChannelID; id != "" {
		return "rename", id, s.dir.RenameChannel(ctx, id, want)
	}
	if boundID != "" {
		return "rename", boundID, s.dir.RenameChannel(ctx, boundID, want)
	}

	chans, err := s.dir.Channels(ctx)
	if err != nil {
		return "list", "", err
	}
	for _, ch := range chans {
		if strings.HasPrefix(ch.Name, s.cfg.DisplayName) {
			return "rename", ch.ID, s.dir.RenameChannel(ctx, ch.ID, want)
		}
	}

	ch, err := s.dir.CreateChannel(ctx, want)
	if err != nil {
		return "create", "", err
	}
	return "create", ch.ID, nil
}

func (s *Synchronizer) loadBinding(ctx context.Context) {
	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return
	}
	s.loaded = true
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	b, ok, err := s.store.GetBinding(ctx, s.bindingKey())
	if err != nil {
		if !errors.Is(err, storage.ErrDisabled) {
			s.log.Warn("load sync binding failed", logx.Err(err))
		}
		return
	}
	if !ok {
		return
	}
	// A pinned channel that differs from the remembered one invalidates the baseline.
	if s.cfg.ChannelID != "" && b.ChannelID != s.cfg.ChannelID {
		return
	}
	s.mu.Lock()
	s.applied = b.Display
	s.boundID = b.ChannelID
	s.mu.Unlock()
	s.log.Debug("sync binding restored", logx.String("channel", b.ChannelID), logx.String("name", b.Display))
}

func (s *Synchronizer) audit(ctx context.Context, action, id, want string, start time.Time, err error) {
	if s.store == nil {
		return
	}
	e := storage.AuditEntry{
		At:      start,
		Action:  action,
		Channel: id,
		Display: want,
		OK:      err == nil,
		TookMS:  s.now().Sub(start).Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := s.store.AppendAudit(ctx, e); aerr != nil {
		s.log.Debug("append sync audit failed", logx.Err(aerr))
	}
}
