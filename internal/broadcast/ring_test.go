package broadcast

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRing_BasicSendReceive(t *testing.T) {
	r := NewRing[int](10)

	for i := 0; i < 5; i++ {
		if err := r.Send(i); err != nil {
			t.Fatalf("Send(%d) failed: %v", i, err)
		}
	}
	if r.Len() != 5 {
		t.Errorf("Len() = %d, want 5", r.Len())
	}

	for i := 0; i < 5; i++ {
		val, ok := r.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}
}

func TestRing_FullSendFailsWithoutEviction(t *testing.T) {
	r := NewRing[int](3)

	for i := 0; i < 3; i++ {
		if err := r.Send(i); err != nil {
			t.Fatalf("Send(%d) failed: %v", i, err)
		}
	}

	if err := r.Send(99); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("Send on full ring = %v, want ErrBufferFull", err)
	}

	// The oldest unread item must still be there.
	val, ok := r.TryReceive()
	if !ok || val != 0 {
		t.Errorf("TryReceive() = %d, %v; want 0, true (oldest item evicted?)", val, ok)
	}

	stats := r.Stats()
	if stats.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", stats.Rejected)
	}
	if stats.Capacity != 3 {
		t.Errorf("Capacity = %d, want 3 (ring must not grow)", stats.Capacity)
	}
}

func TestRing_BlockingReceive(t *testing.T) {
	r := NewRing[string](4)

	got := make(chan string, 1)
	go func() {
		val, ok := r.Receive()
		if ok {
			got <- val
		}
		close(got)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := r.Send("hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case val := <-got:
		if val != "hello" {
			t.Errorf("received %q, want %q", val, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not wake up")
	}
}

func TestRing_CloseDrainsThenStops(t *testing.T) {
	r := NewRing[int](4)
	r.Send(1)
	r.Send(2)
	r.Close()

	if err := r.Send(3); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}

	for want := 1; want <= 2; want++ {
		val, ok := r.Receive()
		if !ok || val != want {
			t.Fatalf("Receive() = %d, %v; want %d, true", val, ok, want)
		}
	}
	if _, ok := r.Receive(); ok {
		t.Error("Receive() on closed empty ring returned true")
	}
}

func TestRing_ConcurrentSendReceive(t *testing.T) {
	r := NewRing[int](128)
	const n = 100

	var wg sync.WaitGroup
	received := make([]int, 0, n)
	var mu sync.Mutex

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			val, ok := r.Receive()
			if !ok {
				return
			}
			mu.Lock()
			received = append(received, val)
			mu.Unlock()
		}
	}()

	for i := 0; i < n; i++ {
		for r.Send(i) != nil {
			time.Sleep(time.Millisecond)
		}
	}
	// Wait until the consumer has drained everything, then close.
	for r.Len() > 0 {
		time.Sleep(time.Millisecond)
	}
	r.Close()
	wg.Wait()

	if len(received) != n {
		t.Fatalf("received %d items, want %d", len(received), n)
	}
	for i, val := range received {
		if val != i {
			t.Fatalf("received[%d] = %d, ordering broken", i, val)
		}
	}
}
