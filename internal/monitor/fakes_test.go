package monitor

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"dayzmon/internal/storage"
)

type fakeDirectory struct {
	mu       sync.Mutex
	channels []Channel
	renames  int
	creates  int
	lists    int
	fail     error
	nextID   int
}

func (d *fakeDirectory) Channels(ctx context.Context) ([]Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lists++
	if d.fail != nil {
		return nil, d.fail
	}
	return append([]Channel(nil), d.channels...), nil
}

func (d *fakeDirectory) CreateChannel(ctx context.Context, name string) (Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creates++
	if d.fail != nil {
		return Channel{}, d.fail
	}
	d.nextID++
	ch := Channel{ID: "new" + strconv.Itoa(d.nextID), Name: name}
	d.channels = append(d.channels, ch)
	return ch, nil
}

func (d *fakeDirectory) RenameChannel(ctx context.Context, id, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renames++
	if d.fail != nil {
		return d.fail
	}
	for i := range d.channels {
		if d.channels[i].ID == id {
			d.channels[i].Name = name
			return nil
		}
	}
	return errors.New("unknown channel " + id)
}

func (d *fakeDirectory) setFail(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

// calls counts rename + create, the calls that change the display.
func (d *fakeDirectory) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.renames + d.creates
}

type memStore struct {
	mu       sync.Mutex
	bindings map[string]storage.Binding
	audit    []storage.AuditEntry
}

func newMemStore() *memStore { return &memStore{bindings: map[string]storage.Binding{}} }

func (m *memStore) GetBinding(ctx context.Context, key string) (storage.Binding, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[key]
	return b, ok, nil
}

func (m *memStore) PutBinding(ctx context.Context, key string, b storage.Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[key] = b
	return nil
}

func (m *memStore) AppendAudit(ctx context.Context, e storage.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

type fakeSource struct {
	mu   sync.Mutex
	raw  RawStatus
	err  error
	hits int
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Query(ctx context.Context) (RawStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits++
	return s.raw, s.err
}

func (s *fakeSource) set(raw RawStatus, err error) {
	s.mu.Lock()
	s.raw, s.err = raw, err
	s.mu.Unlock()
}
