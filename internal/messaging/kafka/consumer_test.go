package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

type fakeGroup struct {
	consumeFn func(context.Context, []string, sarama.ConsumerGroupHandler) error
	errorsCh  chan error
	closeFn   func() error
}

func (g *fakeGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	if g.consumeFn != nil {
		return g.consumeFn(ctx, topics, handler)
	}
	return nil
}

func (g *fakeGroup) Errors() <-chan error { return g.errorsCh }

func (g *fakeGroup) Close() error {
	if g.closeFn != nil {
		return g.closeFn()
	}
	if g.errorsCh != nil {
		close(g.errorsCh)
	}
	return nil
}

func (g *fakeGroup) Pause(map[string][]int32)  {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll()                 {}
func (g *fakeGroup) ResumeAll()                {}

type fakeSession struct {
	ctx    context.Context
	marked []*sarama.ConsumerMessage
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "topic" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func claimWith(messages ...*sarama.ConsumerMessage) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(messages))
	for _, msg := range messages {
		ch <- msg
	}
	close(ch)
	return &fakeClaim{messages: ch}
}

// testConsumer собирает Consumer для unit-тестов без реального брокера.
func testConsumer(handler MessageHandler, mods ...func(*Consumer)) *Consumer {
	c := &Consumer{
		handler:    handler,
		logger:     log.WithField("component", "kafka-consumer-test"),
		maxRetries: 3,
	}
	for _, mod := range mods {
		mod(c)
	}
	return c
}

func withDLQ(t *testing.T, expect func(*mocks.SyncProducer)) (func(*Consumer), *mocks.SyncProducer) {
	t.Helper()
	mockProducer := mocks.NewSyncProducer(t, nil)
	if expect != nil {
		expect(mockProducer)
	}
	mod := func(c *Consumer) {
		c.dlqProducer = &Producer{producer: mockProducer, logger: log.WithField("component", "dlq-test")}
	}
	return mod, mockProducer
}

func plainMessage(value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "topic", Key: []byte("key"), Value: []byte(value)}
}

func retriedMessage(count string) *sarama.ConsumerMessage {
	msg := plainMessage("{}")
	msg.Headers = []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte(count)}}
	return msg
}

func TestNewConsumerErrors(t *testing.T) {
	noop := func(context.Context, *sarama.ConsumerMessage) error { return nil }
	if _, err := NewConsumer([]string{"invalid-broker:9092"}, "group", []string{"topic"}, noop); err == nil {
		t.Fatal("NewConsumer must fail on unreachable broker")
	}
	if _, err := NewConsumerWithDLQ([]string{"invalid-broker:9092"}, "group", []string{"topic"}, noop, nil, 3); err == nil {
		t.Fatal("NewConsumerWithDLQ must fail on unreachable broker")
	}
}

func TestConsumerStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumed := 0
	errorsCh := make(chan error, 1)

	consumer := testConsumer(
		func(context.Context, *sarama.ConsumerMessage) error { return nil },
		func(c *Consumer) {
			c.topics = []string{"topic-a"}
			c.group = &fakeGroup{
				errorsCh: errorsCh,
				consumeFn: func(context.Context, []string, sarama.ConsumerGroupHandler) error {
					consumed++
					cancel()
					return nil
				},
				closeFn: func() error {
					close(errorsCh)
					return nil
				},
			}
		},
	)

	errorsCh <- errors.New("background error")
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := consumer.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if consumed == 0 {
		t.Fatal("consume loop never ran")
	}
}

func TestConsumerStopError(t *testing.T) {
	errorsCh := make(chan error)
	consumer := testConsumer(nil, func(c *Consumer) {
		c.group = &fakeGroup{errorsCh: errorsCh, closeFn: func() error {
			close(errorsCh)
			return errors.New("close failed")
		}}
	})
	if err := consumer.Stop(); err == nil {
		t.Fatal("Stop must surface group close error")
	}
}

func TestConsumerSetupCleanup(t *testing.T) {
	consumer := &Consumer{}
	if err := consumer.Setup(nil); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := consumer.Cleanup(nil); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
}

func TestConsumeClaimMarksHandledMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { return nil })
	session := &fakeSession{ctx: ctx}

	if err := consumer.ConsumeClaim(session, claimWith(plainMessage("v"))); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(session.marked) != 1 {
		t.Fatalf("marked %d messages, want 1", len(session.marked))
	}
}

func TestConsumeClaimSkipsFailedMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := testConsumer(
		func(context.Context, *sarama.ConsumerMessage) error { return errors.New("handler failed") },
		func(c *Consumer) { c.maxRetries = 1 },
	)
	session := &fakeSession{ctx: ctx}

	if err := consumer.ConsumeClaim(session, claimWith(plainMessage("v"))); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(session.marked) != 0 {
		t.Fatalf("failed message must not be marked, marked %d", len(session.marked))
	}
}

func TestConsumeClaimStopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumer := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { return nil })
	session := &fakeSession{ctx: ctx}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}

	done := make(chan struct{})
	go func() {
		_ = consumer.ConsumeClaim(session, claim)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not stop after context cancellation")
	}
}

func TestHandleMessageWithRetry(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		consumer := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { return nil })
		if err := consumer.handleMessageWithRetry(context.Background(), plainMessage(`{"a":1}`)); err != nil {
			t.Fatalf("handleMessageWithRetry: %v", err)
		}
	})

	t.Run("retry below limit", func(t *testing.T) {
		attempts := 0
		consumer := testConsumer(func(context.Context, *sarama.ConsumerMessage) error {
			attempts++
			return errors.New("temporary")
		})
		if err := consumer.handleMessageWithRetry(context.Background(), retriedMessage("1")); err == nil {
			t.Fatal("want retry error")
		}
		if attempts != 2 {
			t.Fatalf("in-process attempts = %d, want 2", attempts)
		}
	})

	t.Run("max retries without dlq", func(t *testing.T) {
		consumer := testConsumer(func(context.Context, *sarama.ConsumerMessage) error { return errors.New("permanent") })
		if err := consumer.handleMessageWithRetry(context.Background(), retriedMessage("3")); err == nil {
			t.Fatal("want error when dlq is absent")
		}
	})

	t.Run("max retries with dlq success", func(t *testing.T) {
		mod, mockProducer := withDLQ(t, func(p *mocks.SyncProducer) { p.ExpectSendMessageAndSucceed() })
		consumer := testConsumer(
			func(context.Context, *sarama.ConsumerMessage) error { return errors.New("permanent") },
			mod,
		)
		if err := consumer.handleMessageWithRetry(context.Background(), retriedMessage("3")); err != nil {
			t.Fatalf("want nil after dlq publish, got %v", err)
		}
		if err := mockProducer.Close(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("max retries with dlq failure", func(t *testing.T) {
		mod, mockProducer := withDLQ(t, func(p *mocks.SyncProducer) { p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers) })
		consumer := testConsumer(
			func(context.Context, *sarama.ConsumerMessage) error { return errors.New("permanent") },
			mod,
		)
		if err := consumer.handleMessageWithRetry(context.Background(), retriedMessage("3")); err == nil {
			t.Fatal("want dlq failure")
		}
		if err := mockProducer.Close(); err != nil {
			t.Fatal(err)
		}
	})
}

func TestGetRetryCount(t *testing.T) {
	consumer := &Consumer{}

	if got := consumer.getRetryCount(retriedMessage("5")); got != 5 {
		t.Fatalf("retry count = %d, want 5", got)
	}
	if got := consumer.getRetryCount(retriedMessage("bad")); got != 0 {
		t.Fatalf("invalid header must count as 0, got %d", got)
	}
	if got := consumer.getRetryCount(&sarama.ConsumerMessage{}); got != 0 {
		t.Fatalf("missing header must count as 0, got %d", got)
	}
}

func TestEnvelopeParsers(t *testing.T) {
	envelopeMsg := plainMessage(`{"id":"ob-1","aggregate_type":"product","aggregate_id":"7","event_type":"product.created","payload":{"event_type":"product.created","product_id":7}}`)
	envelope, err := ParseCatalogEnvelope(envelopeMsg)
	if err != nil {
		t.Fatalf("ParseCatalogEnvelope: %v", err)
	}
	if envelope.AggregateID != "7" {
		t.Fatalf("aggregate id = %s, want 7", envelope.AggregateID)
	}
	if _, err := ParseCatalogEnvelope(plainMessage("{")); err == nil {
		t.Fatal("want ParseCatalogEnvelope error on truncated json")
	}

	product, err := ParseProductEvent(envelope.Payload)
	if err != nil {
		t.Fatalf("ParseProductEvent: %v", err)
	}
	if product.ProductID != 7 {
		t.Fatalf("product id = %d, want 7", product.ProductID)
	}
	if _, err := ParseProductEvent([]byte("{")); err == nil {
		t.Fatal("want ParseProductEvent error on truncated json")
	}

	if _, err := ParseCategoryEvent([]byte(`{"event_type":"category.created","category_id":3,"name":"Books"}`)); err != nil {
		t.Fatalf("ParseCategoryEvent: %v", err)
	}
	if _, err := ParseCategoryEvent([]byte("{")); err == nil {
		t.Fatal("want ParseCategoryEvent error on truncated json")
	}
}

func TestSendToDLQ(t *testing.T) {
	mod, mockProducer := withDLQ(t, func(p *mocks.SyncProducer) { p.ExpectSendMessageAndSucceed() })
	consumer := testConsumer(nil, mod)

	msg := &sarama.ConsumerMessage{Topic: "shop.catalog.events", Partition: 1, Offset: 42, Key: []byte("k"), Value: []byte("v")}
	if err := consumer.sendToDLQ(msg, errors.New("handler gave up")); err != nil {
		t.Fatalf("sendToDLQ: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}
