package events

import "testing"

func TestBusDeliversToAllSubscribers(t *testing.T) {
	b := NewBus()
	a, cancelA := b.Subscribe(4)
	c, cancelC := b.Subscribe(4)
	defer cancelA()
	defer cancelC()

	b.Publish(Event{Kind: DockStateChanged, State: "docked"})

	for i, ch := range []<-chan Event{a, c} {
		select {
		case ev := <-ch:
			if ev.Kind != DockStateChanged || ev.State != "docked" {
				t.Fatalf("subscriber %d got %+v", i, ev)
			}
		default:
			t.Fatalf("subscriber %d got nothing", i)
		}
	}
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(Event{Kind: SyncApplied})
	b.Publish(Event{Kind: SyncApplyFailed})

	if ev := <-ch; ev.Kind != SyncApplied {
		t.Fatalf("first event = %s", ev.Kind)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected second event %+v", ev)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("subscribers = %d", b.Subscribers())
	}
	b.Publish(Event{Kind: Fault})
}
