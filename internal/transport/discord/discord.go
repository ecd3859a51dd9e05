// Package discord is the Discord backend. The display is a voice channel in
// the configured guild; text commands arrive as guild messages.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"net/http"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"

	"dayzmon/internal/monitor"
	kit "dayzmon/internal/transport"
	"dayzmon/pkg/logx"
)

type Config struct {
	Token   string
	GuildID string
	// LogChannelID receives forwarded log lines; empty disables.
	LogChannelID string
}

// session is the slice of *discordgo.Session the adapter uses.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	GuildChannelCreate(guildID, name string, ctype discordgo.ChannelType, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelEdit(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UpdateGameStatus(idle int, name string) error
}

type Adapter struct {
	cfg Config
	log logx.Logger
	s   session

	out     atomic.Value // stores (chan<- kit.Message)
	dropped atomic.Uint64

	runMu   sync.Mutex
	active  bool
	unhook  func()
	selfID  atomic.Value // string
	selfTag atomic.Value // string
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("%w: discord token is empty", kit.ErrAuth)
	}
	if strings.TrimSpace(cfg.GuildID) == "" {
		return nil, errors.New("discord guild_id is required")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: discord: %w", kit.ErrAuth, err)
	}
	s.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent
	return newWithSession(cfg, s, log), nil
}

func newWithSession(cfg Config, s session, log logx.Logger) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, s: s}
	var nilOut chan<- kit.Message
	a.out.Store(nilOut)
	a.selfID.Store("")
	a.selfTag.Store("")
	return a
}

func (a *Adapter) Name() string { return "discord" }

func (a *Adapter) Username() string { return a.selfTag.Load().(string) }

// Start opens the gateway. A rejected token surfaces here as ErrAuth.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Message) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.active {
		return nil
	}
	a.out.Store(out)
	a.unhook = a.s.AddHandler(a.onMessage)
	removeReady := a.s.AddHandler(a.onReady)

	if err := a.s.Open(); err != nil {
		a.unhook()
		removeReady()
		var nilOut chan<- kit.Message
		a.out.Store(nilOut)
		if isAuthError(err) {
			return fmt.Errorf("%w: discord gateway: %w", kit.ErrAuth, err)
		}
		return fmt.Errorf("discord gateway: %w", err)
	}
	prev := a.unhook
	a.unhook = func() { prev(); removeReady() }
	a.active = true
	a.log.Info("gateway connected", logx.String("guild", a.cfg.GuildID))
	return nil
}

// gatewayAuthFailed is the close code Discord sends for a rejected token.
const gatewayAuthFailed = 4004

// isAuthError reports a rejected token: HTTP 401 from the gateway lookup or
// close 4004 on identify. Everything else is transient.
func isAuthError(err error) bool {
	if errors.Is(err, discordgo.ErrUnauthorized) {
		return true
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusUnauthorized {
		return true
	}
	var closed *websocket.CloseError
	return errors.As(err, &closed) && closed.Code == gatewayAuthFailed
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.active {
		return nil
	}
	a.active = false
	var nilOut chan<- kit.Message
	a.out.Store(nilOut)
	if a.unhook != nil {
		a.unhook()
		a.unhook = nil
	}
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("incoming messages dropped (channel full)", logx.Uint64("count", n))
	}
	a.log.Info("stopping")
	return a.s.Close()
}

func (a *Adapter) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r == nil || r.User == nil {
		return
	}
	a.selfID.Store(r.User.ID)
	a.selfTag.Store(r.User.Username)
	a.log.Info("discord ready", logx.String("user", r.User.Username))
}

func (a *Adapter) onMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	if m.Author.Bot || m.Author.ID == a.selfID.Load().(string) {
		return
	}
	a.deliver(kit.Message{
		ID:           m.ID,
		ChatID:       m.ChannelID,
		FromID:       m.Author.ID,
		FromUsername: m.Author.Username,
		Text:         m.Content,
		IsGroup:      m.GuildID != "",
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
		a.dropped.Add(1)
	}
}

// textLimit is Discord's message length cap.
const textLimit = 2000

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string) error {
	if r := []rune(text); len(r) > textLimit {
		text = string(r[:textLimit-1]) + "…"
	}
	_, err := a.s.ChannelMessageSend(to.ChatID, text, discordgo.WithContext(ctx))
	return err
}

// SendLog implements logx.Sender.
func (a *Adapter) SendLog(ctx context.Context, text string) error {
	if a.cfg.LogChannelID == "" {
		return nil
	}
	return a.SendText(ctx, kit.ChatTarget{ChatID: a.cfg.LogChannelID}, text)
}

// SetPresence shows text as the bot's "Playing" status.
func (a *Adapter) SetPresence(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.s.UpdateGameStatus(0, text)
}

// Channels lists the guild's voice channels; only those can carry the display.
func (a *Adapter) Channels(ctx context.Context) ([]monitor.Channel, error) {
	chans, err := a.s.GuildChannels(a.cfg.GuildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list guild channels: %w", err)
	}
	out := make([]monitor.Channel, 0, len(chans))
	for _, c := range chans {
		if c == nil || c.Type != discordgo.ChannelTypeGuildVoice {
			continue
		}
		out = append(out, monitor.Channel{ID: c.ID, Name: c.Name})
	}
	return out, nil
}

func (a *Adapter) CreateChannel(ctx context.Context, name string) (monitor.Channel, error) {
	c, err := a.s.GuildChannelCreate(a.cfg.GuildID, name, discordgo.ChannelTypeGuildVoice, discordgo.WithContext(ctx))
	if err != nil {
		return monitor.Channel{}, fmt.Errorf("create channel: %w", err)
	}
	return monitor.Channel{ID: c.ID, Name: c.Name}, nil
}

func (a *Adapter) RenameChannel(ctx context.Context, id, name string) error {
	if _, err := a.s.ChannelEdit(id, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("edit channel %s: %w", id, err)
	}
	return nil
}
