package transport

import (
	"context"
	"errors"

	"dayzmon/internal/monitor"
)

// ErrAuth marks a rejected chat credential. It is fatal at startup.
var ErrAuth = errors.New("chat backend authentication failed")

// Message is an incoming chat message, normalized across backends.
// IDs are strings because Discord snowflakes do not fit a common integer type.
type Message struct {
	ID           string
	ChatID       string
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       string
	FromUsername string
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID   string
	ThreadID int
}

// Adapter is a chat backend: it delivers commands, sends replies and hosts
// the display channel.
type Adapter interface {
	Name() string
	// Username is the bot's own handle, used to strip "/cmd@bot" suffixes.
	Username() string

	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string) error

	monitor.Directory
}

// PresenceUpdater is implemented by backends that can show a status line
// next to the bot (Discord "Playing ...").
type PresenceUpdater interface {
	SetPresence(ctx context.Context, text string) error
}
