package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/segmentio/kafka-go"

	"github.com/frahmantamala/coaching-payments/internal/core/events"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader hands out queued messages, then blocks until closed.
type fakeReader struct {
	messages chan kafka.Message
	closed   chan struct{}
	once     sync.Once
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{messages: make(chan kafka.Message, len(msgs)), closed: make(chan struct{})}
	for _, m := range msgs {
		r.messages <- m
	}
	return r
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.messages:
		return m, nil
	case <-r.closed:
		return kafka.Message{}, io.EOF
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var _ = Describe("Producer", func() {
	It("should write JSON keyed by the given key", func() {
		w := &fakeWriter{}
		p := &Producer{l: discard, w: w}

		err := p.Publish(context.Background(), "payments.confirmed", "cs_1", map[string]string{"sessionId": "cs_1"})
		Expect(err).ToNot(HaveOccurred())

		Expect(w.messages).To(HaveLen(1))
		Expect(w.messages[0].Topic).To(Equal("payments.confirmed"))
		Expect(string(w.messages[0].Key)).To(Equal("cs_1"))
		Expect(string(w.messages[0].Value)).To(MatchJSON(`{"sessionId":"cs_1"}`))
	})

	It("should return write failures", func() {
		p := &Producer{l: discard, w: &fakeWriter{err: errors.New("broker down")}}

		err := p.Publish(context.Background(), "t", "k", "v")
		Expect(err).To(MatchError(ContainSubstring("broker down")))
	})
})

var _ = Describe("Consumer", func() {
	It("should dispatch messages to the handler for their topic", func() {
		r := newFakeReader(
			kafka.Message{Topic: "notifications.retry", Value: []byte("a")},
			kafka.Message{Topic: "unknown", Value: []byte("b")},
			kafka.Message{Topic: "notifications.retry", Value: []byte("c")},
		)

		var (
			mu   sync.Mutex
			seen []string
		)
		c := newConsumer(discard, r).Handle("notifications.retry", func(_ context.Context, m kafka.Message) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, string(m.Value))
			return errors.New("handler errors are only logged")
		})
		c.Consume(context.Background())

		Eventually(func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), seen...)
		}).Should(Equal([]string{"a", "c"}))

		c.Close()
	})

	It("should stop when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		r := newFakeReader()
		c := newConsumer(discard, r).Consume(ctx)

		cancel()
		done := make(chan struct{})
		go func() {
			c.Close()
			close(done)
		}()
		Eventually(done).Should(BeClosed())
	})
})

var _ = Describe("Forwarder", func() {
	It("should publish the confirmed event keyed by session", func() {
		w := &fakeWriter{}
		f := NewForwarder(&Producer{l: discard, w: w}, "payments.confirmed")
		event := events.NewPaymentConfirmedEvent("cs_1", "pp_1", "INV-1", "jane@example.com", "ch_1", 12500, 10000, 2500, nil)

		Expect(f.HandlePaymentConfirmed(context.Background(), event)).To(Succeed())

		Expect(w.messages).To(HaveLen(1))
		Expect(string(w.messages[0].Key)).To(Equal("cs_1"))

		var decoded map[string]any
		Expect(json.Unmarshal(w.messages[0].Value, &decoded)).To(Succeed())
		Expect(decoded).To(HaveKeyWithValue("session_id", "cs_1"))
		Expect(decoded).To(HaveKeyWithValue("bonus_cents", BeNumerically("==", 2500)))
	})
})
