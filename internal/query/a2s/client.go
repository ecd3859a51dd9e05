package a2s

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"dayzmon/internal/monitor"
)

// DefaultTimeout bounds one query when neither the Client nor ctx sets a deadline.
const DefaultTimeout = 3 * time.Second

const (
	headerSingle = 0xFFFFFFFF
	headerSplit  = 0xFFFFFFFE

	typeInfoRequest = 'T'
	typeInfo        = 0x49
	typeChallenge   = 0x41

	maxPacket = 1400
	// Servers may answer every request with a fresh challenge; give up after this many.
	maxChallenges = 2
)

var infoPayload = []byte("Source Engine Query\x00")

// Client queries one server. The zero value is not usable; set Addr.
type Client struct {
	// Addr is host:port of the query port.
	Addr    string
	Timeout time.Duration

	dialer net.Dialer
}

func NewClient(addr string, timeout time.Duration) *Client {
	return &Client{Addr: addr, Timeout: timeout}
}

// Info performs one A2S_INFO exchange, following a challenge if the server
// issues one. Transport failures wrap monitor.ErrNetwork, malformed replies
// wrap monitor.ErrProtocol.
func (c *Client) Info(ctx context.Context) (ServerInfo, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "udp", c.Addr)
	if err != nil {
		return ServerInfo{}, fmt.Errorf("%w: dial %s: %w", monitor.ErrNetwork, c.Addr, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	// Unblock reads on cancellation, not just on the deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	req := buildRequest(nil)
	buf := make([]byte, maxPacket)
	for attempt := 0; ; attempt++ {
		if _, err := conn.Write(req); err != nil {
			return ServerInfo{}, fmt.Errorf("%w: write %s: %w", monitor.ErrNetwork, c.Addr, ctxErr(ctx, err))
		}
		n, err := conn.Read(buf)
		if err != nil {
			return ServerInfo{}, fmt.Errorf("%w: read %s: %w", monitor.ErrNetwork, c.Addr, ctxErr(ctx, err))
		}

		kind, body, err := splitPacket(buf[:n])
		if err != nil {
			return ServerInfo{}, fmt.Errorf("%w: %w", monitor.ErrProtocol, err)
		}
		switch kind {
		case typeInfo:
			info, err := decodeInfo(body)
			if err != nil {
				return ServerInfo{}, fmt.Errorf("%w: info: %w", monitor.ErrProtocol, err)
			}
			return info, nil
		case typeChallenge:
			if len(body) < 4 {
				return ServerInfo{}, fmt.Errorf("%w: challenge: %w", monitor.ErrProtocol, errShortPacket)
			}
			if attempt >= maxChallenges {
				return ServerInfo{}, fmt.Errorf("%w: server kept issuing challenges", monitor.ErrProtocol)
			}
			req = buildRequest(body[:4])
		default:
			return ServerInfo{}, fmt.Errorf("%w: unexpected response type 0x%02x", monitor.ErrProtocol, kind)
		}
	}
}

func buildRequest(challenge []byte) []byte {
	b := make([]byte, 0, 5+len(infoPayload)+len(challenge))
	b = append(b, 0xFF, 0xFF, 0xFF, 0xFF, typeInfoRequest)
	b = append(b, infoPayload...)
	return append(b, challenge...)
}

// splitPacket checks the single-packet header and returns the type byte and body.
func splitPacket(p []byte) (byte, []byte, error) {
	r := &reader{b: p}
	h := r.u32()
	kind := r.u8()
	if r.err != nil {
		return 0, nil, r.err
	}
	switch h {
	case headerSingle:
		return kind, p[r.off:], nil
	case headerSplit:
		return 0, nil, errors.New("split responses are not supported for A2S_INFO")
	default:
		return 0, nil, fmt.Errorf("bad header 0x%08x", h)
	}
}

// ctxErr prefers the context's error once it is done so callers can match
// context.DeadlineExceeded. A socket timeout at the context deadline can
// surface before ctx.Err is set.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
			return context.DeadlineExceeded
		}
	}
	return err
}

// Source adapts a Client to monitor.Source.
type Source struct {
	c *Client
}

func NewSource(c *Client) *Source { return &Source{c: c} }

func (s *Source) Name() string { return "a2s" }

func (s *Source) Query(ctx context.Context) (monitor.RawStatus, error) {
	info, err := s.c.Info(ctx)
	if err != nil {
		return monitor.RawStatus{}, err
	}
	return monitor.RawStatus{
		Name:       info.Name,
		Map:        info.Map,
		Players:    uint32(info.Players),
		MaxPlayers: uint32(info.MaxPlayers),
		Keywords:   info.Keywords,
	}, nil
}

// NormalizeAddr appends the default Steam query port when addr has none.
func NormalizeAddr(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(DefaultQueryPort))
}

// DefaultQueryPort is the usual Steam query port for DayZ servers.
const DefaultQueryPort = 27016
