// Package telegram is the Telegram backend. The display is a forum topic in
// the configured group.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"dayzmon/internal/monitor"
	rtsup "dayzmon/internal/runtime/supervisor"
	"dayzmon/internal/storage"
	kit "dayzmon/internal/transport"
	"dayzmon/pkg/logx"
)

type Config struct {
	Token string
	// APIURL overrides https://api.telegram.org (local Bot API server).
	APIURL      string
	GroupID     int64
	PollTimeout time.Duration
	// LogTarget receives forwarded log lines; zero ChatID disables.
	LogTarget kit.ChatTarget
}

// TopicStore remembers topics the bot created; the Bot API cannot list them.
type TopicStore interface {
	GetBinding(ctx context.Context, key string) (storage.Binding, bool, error)
	PutBinding(ctx context.Context, key string, b storage.Binding) error
}

type Adapter struct {
	cfg    Config
	log    logx.Logger
	store  TopicStore
	bot    *tele.Bot
	group  *tele.Chat
	out    atomic.Value // stores (chan<- kit.Message)
	runMu  sync.Mutex
	sup    *rtsup.Supervisor
	active bool

	// droppedUpdates counts messages dropped because the consumer was slower than the poll loop.
	droppedUpdates atomic.Uint64

	topicMu      sync.Mutex
	topicsLoaded bool
	topics       map[int]string // thread id -> name
}

func New(cfg Config, store TopicStore, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("%w: telegram token is empty", kit.ErrAuth)
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:    cfg.APIURL,
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: telegram: %w", kit.ErrAuth, err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg:    cfg,
		log:    log,
		store:  store,
		bot:    b,
		group:  &tele.Chat{ID: cfg.GroupID},
		topics: map[int]string{},
	}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Message
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) Name() string { return "telegram" }

func (a *Adapter) Username() string {
	if a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		msg := kit.Message{
			ID:       strconv.Itoa(m.ID),
			ChatID:   strconv.FormatInt(m.Chat.ID, 10),
			ThreadID: m.ThreadID,
			Text:     m.Text,
			IsGroup:  m.Chat.Type != tele.ChatPrivate,
		}
		if m.Sender != nil {
			msg.FromID = strconv.FormatInt(m.Sender.ID, 10)
			msg.FromUsername = m.Sender.Username
		}
		a.deliver(msg)
		return nil
	})
}

func (a *Adapter) deliver(m kit.Message) {
	out, _ := a.out.Load().(chan<- kit.Message)
	if out == nil {
		return
	}
	select {
	case out <- m:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Message) error {
	a.runMu.Lock()
	if a.active {
		a.runMu.Unlock()
		return nil
	}
	a.active = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		// adapter errors should not take down the whole app.
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-ticker.C:
				a.reportDropped(cap(out))
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// telebot's Start blocks until Stop; restart it if it returns early.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.droppedUpdates.Swap(0); n > 0 {
		a.log.Warn("incoming messages dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", capacity))
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasActive := a.active
	a.active = false
	var nilOut chan<- kit.Message
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasActive || sup == nil {
		return nil
	}
	a.log.Info("stopping")
	sup.Cancel()

	// Keep shutdown snappy even if getUpdates is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string) error {
	id, err := strconv.ParseInt(to.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", to.ChatID, err)
	}
	chat := &tele.Chat{ID: id}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.bot.Send(chat, chunk, &tele.SendOptions{ThreadID: to.ThreadID, DisableWebPagePreview: true}); err != nil {
			return err
		}
	}
	return nil
}

// SendLog implements logx.Sender.
func (a *Adapter) SendLog(ctx context.Context, text string) error {
	if a.cfg.LogTarget.ChatID == "" {
		return nil
	}
	return a.SendText(ctx, a.cfg.LogTarget, text)
}

func (a *Adapter) topicKey() string {
	return "telegram.topic." + strconv.FormatInt(a.cfg.GroupID, 10)
}

// Channels lists forum topics this bot created or renamed.
func (a *Adapter) Channels(ctx context.Context) ([]monitor.Channel, error) {
	a.topicMu.Lock()
	defer a.topicMu.Unlock()
	if !a.topicsLoaded {
		if err := a.loadTopicsLocked(ctx); err != nil {
			return nil, err
		}
	}
	out := make([]monitor.Channel, 0, len(a.topics))
	for id, name := range a.topics {
		out = append(out, monitor.Channel{ID: strconv.Itoa(id), Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *Adapter) loadTopicsLocked(ctx context.Context) error {
	if a.store != nil {
		b, ok, err := a.store.GetBinding(ctx, a.topicKey())
		if err != nil && !errors.Is(err, storage.ErrDisabled) {
			return fmt.Errorf("load topics: %w", err)
		}
		if ok {
			if id, err := strconv.Atoi(b.ChannelID); err == nil {
				a.topics[id] = b.Display
			}
		}
	}
	a.topicsLoaded = true
	return nil
}

func (a *Adapter) CreateChannel(ctx context.Context, name string) (monitor.Channel, error) {
	if err := ctx.Err(); err != nil {
		return monitor.Channel{}, err
	}
	t, err := a.bot.CreateTopic(a.group, &tele.Topic{Name: name})
	if err != nil {
		return monitor.Channel{}, fmt.Errorf("createForumTopic: %w", err)
	}
	a.rememberTopic(ctx, t.ThreadID, name)
	return monitor.Channel{ID: strconv.Itoa(t.ThreadID), Name: name}, nil
}

func (a *Adapter) RenameChannel(ctx context.Context, id, name string) error {
	tid, err := strconv.Atoi(id)
	if err != nil {
		return fmt.Errorf("telegram topic id %q: %w", id, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.bot.EditTopic(a.group, &tele.Topic{Name: name, ThreadID: tid}); err != nil {
		return fmt.Errorf("editForumTopic: %w", err)
	}
	a.rememberTopic(ctx, tid, name)
	return nil
}

func (a *Adapter) rememberTopic(ctx context.Context, id int, name string) {
	a.topicMu.Lock()
	a.topics[id] = name
	a.topicMu.Unlock()
	if a.store == nil {
		return
	}
	b := storage.Binding{ChannelID: strconv.Itoa(id), Display: name, SyncedAt: time.Now()}
	if err := a.store.PutBinding(ctx, a.topicKey(), b); err != nil && !errors.Is(err, storage.ErrDisabled) {
		a.log.Warn("persist topic failed", logx.Int("thread_id", id), logx.Err(err))
	}
}

const textLimit = 4000

// splitText splits long messages into chunks Telegram accepts, preferring
// newline boundaries.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
