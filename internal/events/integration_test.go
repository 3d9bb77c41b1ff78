//go:build integration

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"pubgate/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) TestFeed_Connection() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange",
		RoutingKey: "test-routing-key",
		QueueName:  "test-queue",
	}

	feed, err := NewRabbitMQ(cfg, s.logger)
	s.NoError(err)
	s.NotNil(feed)

	err = feed.Close()
	s.NoError(err)
}

func (s *RabbitMQIntegrationSuite) TestFeed_PublishOutcome() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-outcome",
		RoutingKey: "test-routing-key-outcome",
		QueueName:  "test-queue-outcome",
	}

	feed, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer feed.Close()

	now := time.Now().Truncate(time.Millisecond)
	rec := &domain.ProcessedRecord{
		ItemKey:     "https://example.com/articles/alpha",
		SourceID:    "hackernews",
		Title:       "Alpha ships v2",
		Outcome:     domain.OutcomePosted,
		ProcessedAt: now,
	}

	err = feed.PublishOutcome(s.ctx, rec)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	s.Equal("application/json", msg.ContentType)

	var received OutcomeMessage
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)
	s.Equal("https://example.com/articles/alpha", received.ItemKey)
	s.Equal("hackernews", received.SourceID)
	s.Equal("Alpha ships v2", received.Title)
	s.Equal(domain.OutcomePosted, received.Outcome)
	s.WithinDuration(now, received.ProcessedAt, time.Second)
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestFeed_EveryOutcomeKind() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-kinds",
		RoutingKey: "test-routing-key-kinds",
		QueueName:  "test-queue-kinds",
	}

	feed, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer feed.Close()

	outcomes := []domain.Outcome{
		domain.OutcomePosted,
		domain.OutcomeIgnored,
		domain.OutcomeTimedOut,
		domain.OutcomeFailed,
	}
	for i, outcome := range outcomes {
		err := feed.PublishOutcome(s.ctx, &domain.ProcessedRecord{
			ItemKey:     "https://example.com/articles/" + string(outcome),
			SourceID:    "test-source",
			Outcome:     outcome,
			ProcessedAt: time.Now(),
		})
		s.NoError(err, "outcome %d", i)
	}

	for range outcomes {
		msg := s.consumeMessage(cfg)
		s.Require().NotNil(msg)

		var received OutcomeMessage
		s.NoError(json.Unmarshal(msg.Body, &received))
		s.Contains(outcomes, received.Outcome)
	}
}

func (s *RabbitMQIntegrationSuite) TestFeed_MessagePersistence() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-persist",
		RoutingKey: "test-routing-key-persist",
		QueueName:  "test-queue-persist",
	}

	feed, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer feed.Close()

	err = feed.PublishOutcome(s.ctx, &domain.ProcessedRecord{
		ItemKey:     "https://example.com/articles/persist",
		SourceID:    "test-source",
		Outcome:     domain.OutcomeIgnored,
		ProcessedAt: time.Now(),
	})
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg Config) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}
