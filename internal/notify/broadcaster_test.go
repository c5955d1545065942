package notify

import (
	"reflect"
	"sync"
	"testing"
)

func TestPublishInOrder(t *testing.T) {
	var b Broadcaster[int]
	var got []string

	b.Subscribe(func(v int) { got = append(got, "a") })
	b.Subscribe(func(v int) { got = append(got, "b") })
	b.Publish(1)

	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("delivery order = %v", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	var b Broadcaster[string]
	calls := 0
	unsub := b.Subscribe(func(string) { calls++ })

	b.Publish("x")
	unsub()
	unsub() // second call is a no-op
	b.Publish("y")

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if b.Len() != 0 {
		t.Fatalf("Len = %d, want 0", b.Len())
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	var b Broadcaster[int]
	var secondCalls int
	var unsubSecond func()

	b.Subscribe(func(int) { unsubSecond() })
	unsubSecond = b.Subscribe(func(int) { secondCalls++ })
	thirdCalls := 0
	b.Subscribe(func(int) { thirdCalls++ })

	b.Publish(1)

	if secondCalls != 0 {
		t.Errorf("listener removed mid-publish was still called %d times", secondCalls)
	}
	if thirdCalls != 1 {
		t.Errorf("later listener calls = %d, want 1", thirdCalls)
	}
	if b.Len() != 2 {
		t.Errorf("Len = %d, want 2", b.Len())
	}
}

func TestSubscribeDuringPublish(t *testing.T) {
	var b Broadcaster[int]
	lateCalls := 0
	b.Subscribe(func(int) {
		b.Subscribe(func(int) { lateCalls++ })
	})

	b.Publish(1)
	if lateCalls != 0 {
		t.Fatalf("listener added mid-publish received the same value")
	}
	b.Publish(2)
	if lateCalls != 1 {
		t.Fatalf("lateCalls = %d, want 1", lateCalls)
	}
}

func TestConcurrentSubscribePublish(t *testing.T) {
	var b Broadcaster[int]
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := b.Subscribe(func(int) {})
			unsub()
		}()
		go func() {
			defer wg.Done()
			b.Publish(1)
		}()
	}
	wg.Wait()
	if b.Len() != 0 {
		t.Fatalf("Len = %d, want 0", b.Len())
	}
}
