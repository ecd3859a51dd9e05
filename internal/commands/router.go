package commands

import (
	"context"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"dayzmon/internal/monitor"
	rtsup "dayzmon/internal/runtime/supervisor"
	kit "dayzmon/internal/transport"
	"dayzmon/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

// Request is one parsed command invocation.
type Request struct {
	Msg     kit.Message
	Name    string
	Args    []string
	IsOwner bool
}

type HandlerFunc func(ctx context.Context, req *Request) (string, error)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Access      Access
	Handle      HandlerFunc
}

// SnapshotReader is the read side of monitor.Cache.
type SnapshotReader interface {
	Load() *monitor.Snapshot
}

// Refresher runs one poll cycle on demand.
type Refresher interface {
	RunOnce(ctx context.Context) error
}

// Replier sends a reply back to where the command came from.
type Replier interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string) error
}

type Config struct {
	// DisplayName names the server when the query reports no name.
	DisplayName string
	OwnerIDs    []string
	// Username of the bot, for "/cmd@bot" handling. May be set later with SetUsername.
	Username string
	Timeout  time.Duration
	Workers  int
}

const (
	deniedText        = "This command is restricted to the bot owner."
	refreshFailedText = "Refresh failed. Try again later."
)

// Router turns chat messages into command replies. It never blocks the
// backend's receive loop; work runs on a small supervised worker pool.
type Router struct {
	cfg     Config
	cache   SnapshotReader
	refresh Refresher
	reply   Replier
	log     logx.Logger
	now     func() time.Time

	mu       sync.RWMutex
	owners   map[string]struct{}
	username string
	byName   map[string]*Command
	ordered  []*Command
}

func New(cfg Config, cache SnapshotReader, refresh Refresher, reply Replier, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	r := &Router{
		cfg:      cfg,
		cache:    cache,
		refresh:  refresh,
		reply:    reply,
		log:      log,
		now:      time.Now,
		username: cfg.Username,
	}
	r.SetOwners(cfg.OwnerIDs)
	r.register(r.builtin())
	return r
}

// SetOwners replaces the owner list used for AccessOwnerOnly checks.
func (r *Router) SetOwners(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	r.mu.Lock()
	r.owners = set
	r.mu.Unlock()
}

func (r *Router) SetUsername(u string) {
	r.mu.Lock()
	r.username = u
	r.mu.Unlock()
}

func (r *Router) register(cmds []Command) {
	byName := map[string]*Command{}
	ordered := make([]*Command, 0, len(cmds))
	for i := range cmds {
		c := &cmds[i]
		if c.Name == "" || c.Handle == nil {
			continue
		}
		ordered = append(ordered, c)
		byName[c.Name] = c
		for _, a := range c.Aliases {
			if _, exists := byName[a]; !exists {
				byName[a] = c
			}
		}
	}
	r.mu.Lock()
	r.byName = byName
	r.ordered = ordered
	r.mu.Unlock()
}

func (r *Router) builtin() []Command {
	return []Command{
		{Name: "time", Aliases: []string{"t"}, Description: "in-game time", Handle: func(context.Context, *Request) (string, error) {
			return FormatTime(r.cache.Load()), nil
		}},
		{Name: "count", Aliases: []string{"c"}, Description: "players online and queue", Handle: func(context.Context, *Request) (string, error) {
			return FormatCount(r.cache.Load()), nil
		}},
		{Name: "status", Aliases: []string{"s"}, Description: "server status", Handle: func(context.Context, *Request) (string, error) {
			return FormatStatus(r.cache.Load(), r.cfg.DisplayName, r.now()), nil
		}},
		{Name: "info", Aliases: []string{"i"}, Description: "full server summary", Handle: func(context.Context, *Request) (string, error) {
			return FormatInfo(r.cache.Load(), r.cfg.DisplayName, r.now()), nil
		}},
		{Name: "refresh", Description: "poll the server now", Access: AccessOwnerOnly, Handle: r.handleRefresh},
		{Name: "help", Aliases: []string{"h"}, Description: "this list", Handle: func(_ context.Context, req *Request) (string, error) {
			return r.helpText(req.IsOwner), nil
		}},
	}
}

func (r *Router) handleRefresh(ctx context.Context, _ *Request) (string, error) {
	if r.refresh == nil {
		return "Refresh is not available.", nil
	}
	if err := r.refresh.RunOnce(ctx); err != nil {
		r.log.Warn("manual refresh failed", logx.Err(err))
		return refreshFailedText, nil
	}
	return FormatCount(r.cache.Load()), nil
}

func (r *Router) helpText(owner bool) string {
	r.mu.RLock()
	cmds := append([]*Command(nil), r.ordered...)
	r.mu.RUnlock()
	sort.SliceStable(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

	var b strings.Builder
	b.WriteString("Commands (prefix ! . or /):")
	for _, c := range cmds {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		b.WriteString("\n")
		b.WriteString(c.Name)
		if len(c.Aliases) > 0 {
			b.WriteString(" (")
			b.WriteString(strings.Join(c.Aliases, ", "))
			b.WriteString(")")
		}
		b.WriteString(": ")
		b.WriteString(c.Description)
	}
	return b.String()
}

// Handle runs one message to completion and returns the reply text ("" when
// the message is not a known command).
func (r *Router) Handle(ctx context.Context, m kit.Message) string {
	r.mu.RLock()
	username := r.username
	r.mu.RUnlock()

	name, args, ok := Parse(m.Text, username)
	if !ok {
		return ""
	}
	r.mu.RLock()
	cmd := r.byName[name]
	_, owner := r.owners[m.FromID]
	r.mu.RUnlock()
	if cmd == nil {
		return ""
	}
	if cmd.Access == AccessOwnerOnly && !owner {
		r.log.Info("owner-only command denied", logx.String("cmd", cmd.Name), logx.String("from", m.FromID))
		return deniedText
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	start := r.now()
	text, err := cmd.Handle(ctx, &Request{Msg: m, Name: name, Args: args, IsOwner: owner})
	if err != nil {
		r.log.Warn("command failed", logx.String("cmd", cmd.Name), logx.Err(err))
		return "Something went wrong, try again later."
	}
	r.log.Debug("command handled", logx.String("cmd", cmd.Name), logx.String("from", m.FromID), logx.Duration("took", r.now().Sub(start)))
	return text
}

// DispatchLoop consumes messages until ctx is done or in is closed.
func (r *Router) DispatchLoop(ctx context.Context, in <-chan kit.Message) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	jobs := make(chan kit.Message, 64)
	r.log.Info("command dispatcher started", logx.Int("workers", r.cfg.Workers))

	for i := 0; i < r.cfg.Workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case m, ok := <-jobs:
					if !ok {
						return nil
					}
					r.serve(c, idx, m)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		close(jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-in:
			if !ok {
				return nil
			}
			select {
			case jobs <- m:
			default:
				r.log.Warn("command queue full, dropping message", logx.String("chat", m.ChatID))
			}
		}
	}
}

func (r *Router) serve(ctx context.Context, worker int, m kit.Message) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		}
	}()
	text := r.Handle(ctx, m)
	if text == "" || r.reply == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	if err := r.reply.SendText(sctx, kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}, text); err != nil {
		r.log.Warn("reply failed", logx.String("chat", m.ChatID), logx.Err(err))
	}
}
