package broadcast

import (
	"errors"
	"testing"

	"github.com/stockplus/kisfeed/internal/model"
)

func testQuote(code string) model.Quote {
	return model.Quote{Code: code, Venue: model.VenuePrimary, Price: "70000"}
}

func TestHub_DeliversToAllSubscribers(t *testing.T) {
	hub := NewHub(8)
	a := hub.Subscribe()
	b := hub.Subscribe()

	if err := hub.Publish(testQuote("005930")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for _, sub := range []*Subscriber{a, b} {
		q, ok := sub.TryReceive()
		if !ok {
			t.Fatalf("subscriber %s received nothing", sub.ID())
		}
		if q.Code != "005930" {
			t.Errorf("received %q, want 005930", q.Code)
		}
	}
}

func TestHub_DetachDoesNotAffectOthers(t *testing.T) {
	hub := NewHub(8)
	a := hub.Subscribe()
	b := hub.Subscribe()

	hub.Unsubscribe(a)

	if err := hub.Publish(testQuote("000660")); err != nil {
		t.Fatalf("Publish after detach failed: %v", err)
	}

	q, ok := b.TryReceive()
	if !ok || q.Code != "000660" {
		t.Errorf("remaining subscriber got %v, %v; want quote 000660", q, ok)
	}

	if _, ok := a.TryReceive(); ok {
		t.Error("detached subscriber still receives quotes")
	}
	if hub.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", hub.SubscriberCount())
	}
}

func TestHub_FullSubscriberFailsLoudly(t *testing.T) {
	hub := NewHub(2)
	slow := hub.Subscribe()
	fast := hub.Subscribe()

	// Fill the slow subscriber's buffer.
	hub.Publish(testQuote("A"))
	hub.Publish(testQuote("B"))
	fast.TryReceive()
	fast.TryReceive()

	err := hub.Publish(testQuote("C"))
	if !errors.Is(err, ErrBufferFull) {
		t.Fatalf("Publish with one full subscriber = %v, want ErrBufferFull", err)
	}

	// The fast subscriber still got the quote.
	q, ok := fast.TryReceive()
	if !ok || q.Code != "C" {
		t.Errorf("fast subscriber got %v, %v; want quote C", q, ok)
	}

	// The slow subscriber's oldest item was not evicted.
	q, ok = slow.TryReceive()
	if !ok || q.Code != "A" {
		t.Errorf("slow subscriber head = %v, %v; want quote A", q, ok)
	}

	if hub.Stats().Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", hub.Stats().Rejected)
	}
}

func TestHub_PublishWithNoSubscribers(t *testing.T) {
	hub := NewHub(4)
	if err := hub.Publish(testQuote("005930")); err != nil {
		t.Errorf("Publish with no subscribers failed: %v", err)
	}
	if hub.Stats().Published != 1 {
		t.Errorf("Published = %d, want 1", hub.Stats().Published)
	}
}
