package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"dayzmon/internal/storage"
	kit "dayzmon/internal/transport"
	"dayzmon/pkg/logx"
)

// fakeAPI serves the handful of Bot API methods the adapter calls.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string][]map[string]any
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		body, _ := io.ReadAll(r.Body)
		var params map[string]any
		_ = json.Unmarshal(body, &params)

		f.mu.Lock()
		if f.calls == nil {
			f.calls = map[string][]map[string]any{}
		}
		f.calls[method] = append(f.calls[method], params)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getMe":
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"mon","username":"dayzbot"}}`)
		case "createForumTopic":
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_thread_id":77,"name":"x","icon_color":0}}`)
		case "editForumTopic":
			_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
		case "sendMessage":
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":5,"date":0,"chat":{"id":-100,"type":"supergroup"},"text":"ok"}}`)
		default:
			t.Errorf("unexpected method %q", method)
			_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	})
}

func (f *fakeAPI) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[method])
}

type memTopics struct {
	mu sync.Mutex
	m  map[string]storage.Binding
}

func (s *memTopics) GetBinding(ctx context.Context, key string) (storage.Binding, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.m[key]
	return b, ok, nil
}

func (s *memTopics) PutBinding(ctx context.Context, key string, b storage.Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = b
	return nil
}

func newTestAdapter(t *testing.T, store TopicStore) (*Adapter, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	a, err := New(Config{Token: "123:abc", APIURL: srv.URL, GroupID: -100}, store, logx.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return a, api
}

func TestNew_EmptyTokenIsAuthError(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}, nil, logx.Nop()); !errors.Is(err, kit.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestNew_RejectedTokenIsAuthError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	if _, err := New(Config{Token: "bad", APIURL: srv.URL}, nil, logx.Nop()); !errors.Is(err, kit.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestTopics_CreateRenameList(t *testing.T) {
	t.Parallel()

	store := &memTopics{m: map[string]storage.Binding{}}
	a, api := newTestAdapter(t, store)
	ctx := context.Background()

	if a.Username() != "dayzbot" {
		t.Fatalf("username = %q", a.Username())
	}
	chans, err := a.Channels(ctx)
	if err != nil || len(chans) != 0 {
		t.Fatalf("expected no topics, got %v %v", chans, err)
	}

	ch, err := a.CreateChannel(ctx, "DayZ: 1/60")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ch.ID != "77" {
		t.Fatalf("topic id = %q", ch.ID)
	}
	if err := a.RenameChannel(ctx, "77", "DayZ: 2/60"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	chans, _ = a.Channels(ctx)
	if len(chans) != 1 || chans[0].Name != "DayZ: 2/60" {
		t.Fatalf("unexpected topics: %+v", chans)
	}
	if api.count("createForumTopic") != 1 || api.count("editForumTopic") != 1 {
		t.Fatalf("unexpected api calls: %v", api.calls)
	}
	if b := store.m["telegram.topic.-100"]; b.ChannelID != "77" || b.Display != "DayZ: 2/60" {
		t.Fatalf("topic not persisted: %+v", b)
	}

	if err := a.RenameChannel(ctx, "general", "x"); err == nil {
		t.Fatalf("expected error for non-numeric topic id")
	}
}

func TestTopics_RestoredFromStore(t *testing.T) {
	t.Parallel()

	store := &memTopics{m: map[string]storage.Binding{
		"telegram.topic.-100": {ChannelID: "12", Display: "DayZ: 9/60"},
	}}
	a, _ := newTestAdapter(t, store)
	chans, err := a.Channels(context.Background())
	if err != nil || len(chans) != 1 || chans[0].ID != "12" {
		t.Fatalf("unexpected: %+v %v", chans, err)
	}
}

func TestSendText_SplitsLongMessages(t *testing.T) {
	t.Parallel()

	a, api := newTestAdapter(t, nil)
	long := strings.Repeat("line of text\n", 700) // > 4000 runes
	if err := a.SendText(context.Background(), kit.ChatTarget{ChatID: "-100", ThreadID: 3}, long); err != nil {
		t.Fatalf("send: %v", err)
	}
	if n := api.count("sendMessage"); n < 2 {
		t.Fatalf("expected split into multiple messages, got %d", n)
	}
	api.mu.Lock()
	thread := api.calls["sendMessage"][0]["message_thread_id"]
	api.mu.Unlock()
	if thread == nil {
		t.Fatalf("thread id not sent")
	}

	if err := a.SendText(context.Background(), kit.ChatTarget{ChatID: "abc"}, "x"); err == nil {
		t.Fatalf("expected error for bad chat id")
	}
}

func TestSendLog_NoTargetIsNoop(t *testing.T) {
	t.Parallel()

	a, api := newTestAdapter(t, nil)
	if err := a.SendLog(context.Background(), "hello"); err != nil {
		t.Fatalf("send log: %v", err)
	}
	if api.count("sendMessage") != 0 {
		t.Fatalf("expected no send without log target")
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()

	if got := splitText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("got %q", got)
	}
	got := splitText("aaaa\nbbbb\ncccc", 6)
	for _, c := range got {
		if len([]rune(c)) > 6 {
			t.Fatalf("chunk too long: %q", c)
		}
	}
	if strings.Join(got, "") != "aaaabbbbcccc" {
		t.Fatalf("content lost: %q", got)
	}
}
