package eventbus

import "testing"

func TestPublishFanout(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubC()

	b.Publish(Event{Type: TypeSnapshot})
	if e := <-a; e.Type != TypeSnapshot || e.Time.IsZero() {
		t.Fatalf("subscriber a got %+v", e)
	}
	if e := <-c; e.Type != TypeSnapshot {
		t.Fatalf("subscriber c got %+v", e)
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// Must not panic or block with a closed/full subscriber around.
	b.Publish(Event{Type: TypeSynced})
	b.Publish(Event{Type: TypeSynced})
}
