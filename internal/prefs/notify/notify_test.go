package notify

import (
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
)

type payload struct {
	Path string
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		k    Kind
		want string
	}{
		{KindChange, "change"},
		{KindInvalid, "invalid"},
		{KindSaved, "saved"},
		{KindError, "error"},
		{Kind(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.k.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.k, got, tt.want)
		}
	}
}

func TestNotifier_SubscribeByKind(t *testing.T) {
	n := New[payload]()
	defer n.Close()

	var changes, invalids atomic.Int32
	n.Subscribe(KindChange, func(payload) { changes.Add(1) })
	n.Subscribe(KindInvalid, func(payload) { invalids.Add(1) })

	n.Publish(KindChange, payload{Path: "sensory"})
	n.Publish(KindChange, payload{Path: "ai"})
	n.Publish(KindInvalid, payload{})
	n.Publish(KindSaved, payload{})

	if changes.Load() != 2 {
		t.Errorf("change handler ran %d times, want 2", changes.Load())
	}
	if invalids.Load() != 1 {
		t.Errorf("invalid handler ran %d times, want 1", invalids.Load())
	}
}

func TestNotifier_PayloadIsDelivered(t *testing.T) {
	n := New[payload]()
	defer n.Close()

	var got payload
	n.Subscribe(KindChange, func(p payload) { got = p })
	n.Publish(KindChange, payload{Path: "vr.comfortRadius"})

	if got.Path != "vr.comfortRadius" {
		t.Errorf("Path = %q, want vr.comfortRadius", got.Path)
	}
}

func TestNotifier_Unsubscribe(t *testing.T) {
	n := New[payload]()
	defer n.Close()

	var received atomic.Bool
	sub := n.Subscribe(KindSaved, func(payload) { received.Store(true) })
	if sub.Kind() != KindSaved {
		t.Errorf("Kind() = %v, want saved", sub.Kind())
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	n.Publish(KindSaved, payload{})

	if received.Load() {
		t.Error("unsubscribed handler received event")
	}

	var nilSub *Subscription
	nilSub.Unsubscribe()
}

func TestNotifier_DeliveryOrder(t *testing.T) {
	n := New[payload]()
	defer n.Close()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		n.Subscribe(KindChange, func(payload) { order = append(order, i) })
	}
	n.Publish(KindChange, payload{})

	if want := []int{0, 1, 2, 3, 4}; !reflect.DeepEqual(order, want) {
		t.Errorf("delivery order = %v, want %v", order, want)
	}
}

func TestNotifier_HandlerMayUnsubscribeItself(t *testing.T) {
	n := New[payload]()
	defer n.Close()

	var calls int
	var sub *Subscription
	sub = n.Subscribe(KindChange, func(payload) {
		calls++
		sub.Unsubscribe()
	})

	n.Publish(KindChange, payload{})
	n.Publish(KindChange, payload{})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestNotifier_Close(t *testing.T) {
	n := New[payload]()

	var received atomic.Bool
	n.Subscribe(KindError, func(payload) { received.Store(true) })

	n.Close()
	n.Close()
	n.Publish(KindError, payload{})

	if received.Load() {
		t.Error("closed notifier delivered event")
	}
}

func TestNotifier_Concurrent(t *testing.T) {
	n := New[payload]()
	defer n.Close()

	var count atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := n.Subscribe(KindChange, func(payload) { count.Add(1) })
			for j := 0; j < 100; j++ {
				n.Publish(KindChange, payload{})
			}
			sub.Unsubscribe()
		}()
	}

	wg.Wait()

	if count.Load() == 0 {
		t.Error("no events delivered")
	}
	delivered := count.Load()
	n.Publish(KindChange, payload{})
	if count.Load() != delivered {
		t.Error("handler ran after every subscriber unsubscribed")
	}
}
