package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/however6234/trading-system/internal/store"
	"github.com/however6234/trading-system/pkg/rabbitmq"
)

type publishedMessage struct {
	exchange   string
	routingKey string
	body       string
}

type publisherStub struct {
	err       error
	published []publishedMessage
	closed    int
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if p.err != nil {
		return p.err
	}
	blob, err := json.Marshal(body)
	if err != nil {
		return err
	}
	p.published = append(p.published, publishedMessage{exchange: exchange, routingKey: routingKey, body: string(blob)})
	return nil
}

func (p *publisherStub) Close() { p.closed++ }

func enqueue(t *testing.T, repo *store.MemoryRepository, routingKey string, payload interface{}) {
	t.Helper()
	err := repo.InTx(context.Background(), func(tx store.Tx) error {
		return tx.EnqueueEvent(context.Background(), "trading.events", routingKey, payload)
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func TestOutboxDispatcher_PublishesAndMarks(t *testing.T) {
	repo := store.NewMemoryRepository()
	enqueue(t, repo, "trading.purchase.completed", map[string]int{"quantity": 2})

	publisher := &publisherStub{}
	dispatcher := NewOutboxDispatcher(repo, func() (rabbitmq.Publisher, error) { return publisher, nil }, newTestLogger(), 0)

	if err := dispatcher.flushOnce(context.Background()); err != nil {
		t.Fatalf("flushOnce returned error: %v", err)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(publisher.published))
	}
	got := publisher.published[0]
	if got.exchange != "trading.events" || got.routingKey != "trading.purchase.completed" || got.body != `{"quantity":2}` {
		t.Fatalf("unexpected published message %+v", got)
	}

	if err := dispatcher.flushOnce(context.Background()); err != nil {
		t.Fatalf("second flushOnce returned error: %v", err)
	}
	if len(publisher.published) != 1 {
		t.Fatalf("expected published message not to be sent twice, got %d", len(publisher.published))
	}
}

func TestOutboxDispatcher_FailureSchedulesRetryAndResetsProducer(t *testing.T) {
	repo := store.NewMemoryRepository()
	enqueue(t, repo, "trading.user.created", map[string]string{"username": "alice"})

	publisher := &publisherStub{err: errors.New("channel closed")}
	dials := 0
	dispatcher := NewOutboxDispatcher(repo, func() (rabbitmq.Publisher, error) {
		dials++
		return publisher, nil
	}, newTestLogger(), 0)

	if err := dispatcher.flushOnce(context.Background()); err != nil {
		t.Fatalf("flushOnce returned error: %v", err)
	}
	if publisher.closed != 1 || dispatcher.producer != nil {
		t.Fatal("expected failed producer to be closed and dropped")
	}

	if again, _ := repo.ClaimOutboxMessages(context.Background(), 10, 60); len(again) != 0 {
		t.Fatalf("expected failed message to wait for its retry, got %d", len(again))
	}

	if err := dispatcher.flushOnce(context.Background()); err != nil {
		t.Fatalf("flushOnce returned error: %v", err)
	}
	if dials != 1 {
		t.Fatalf("expected no redial while nothing is due, got %d dials", dials)
	}
}

func TestOutboxDispatcher_DialFailureKeepsMessage(t *testing.T) {
	repo := store.NewMemoryRepository()
	enqueue(t, repo, "trading.user.created", map[string]string{"username": "alice"})

	dispatcher := NewOutboxDispatcher(repo, func() (rabbitmq.Publisher, error) {
		return nil, errors.New("dial tcp: connection refused")
	}, newTestLogger(), 0)

	if err := dispatcher.flushOnce(context.Background()); err != nil {
		t.Fatalf("flushOnce returned error: %v", err)
	}
	if dispatcher.producer != nil {
		t.Fatal("expected no producer after dial failure")
	}
}

func TestRetryDelaySeconds(t *testing.T) {
	tests := []struct {
		attempt int
		want    int
	}{
		{attempt: 0, want: 1},
		{attempt: 1, want: 2},
		{attempt: 3, want: 8},
		{attempt: 8, want: 256},
		{attempt: 9, want: 256},
		{attempt: 50, want: 256},
	}
	for _, tt := range tests {
		if got := retryDelaySeconds(tt.attempt); got != tt.want {
			t.Fatalf("retryDelaySeconds(%d): expected %d, got %d", tt.attempt, tt.want, got)
		}
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	dispatcher := NewOutboxDispatcher(store.NewMemoryRepository(), func() (rabbitmq.Publisher, error) {
		return &publisherStub{}, nil
	}, newTestLogger(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(done)
	}()
	<-done
}
