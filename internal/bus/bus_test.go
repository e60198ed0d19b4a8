package bus

import (
	"testing"
	"time"
)

func TestEmitReachesPrefixSubscriber(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	b.Emit(KindUploaded, Uploaded{Collection: "Message", ID: "m1"})

	select {
	case evt := <-ch:
		if evt.Kind != KindUploaded {
			t.Errorf("got kind %q, want %s", evt.Kind, KindUploaded)
		}
		if evt.Timestamp.IsZero() {
			t.Error("Emit did not stamp the event")
		}
		if p, ok := evt.Payload.(Uploaded); !ok || p.ID != "m1" {
			t.Errorf("payload = %#v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 10)
	defer unsub()

	b.Emit(KindStatusChanged, nil)
	b.Emit(KindChatChanged, Changed{IDs: []string{"c1"}})

	select {
	case evt := <-ch:
		if evt.Kind != KindChatChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, KindChatChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()

	b.Emit(KindStatusChanged, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("media.", 1)
	defer unsub()

	b.Emit(KindMediaReady, Media{Name: "one"})
	b.Emit(KindMediaReady, Media{Name: "two"})

	evt := <-ch
	if evt.Payload.(Media).Name != "one" {
		t.Errorf("got %v, want one", evt.Payload)
	}
	if b.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", b.Dropped())
	}
}

func TestNilBusEmit(t *testing.T) {
	var b *Bus
	b.Emit(KindUploaded, nil)
}
