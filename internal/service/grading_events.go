package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/observability"
)

const gradingEventBufferSize = 16

// GradingEventStream fans grading events out to live subscribers on this node
// and, when a bus is configured, to other nodes.
type GradingEventStream interface {
	Publish(ctx context.Context, event dto.GradingEvent)
	Subscribe(submissionID uint) (<-chan dto.GradingEvent, func())
	Start(ctx context.Context)
}

type gradingEventStream struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *gradingBroker
	nodeID       string
	now          func() time.Time
}

type gradingEnvelope struct {
	Source string           `json:"source"`
	Event  dto.GradingEvent `json:"event"`
}

type gradingBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.GradingEvent]struct{}
}

// NewGradingEventStream builds the event stream. NATS is preferred for cross
// node delivery; Redis pub/sub is used only when NATS is not configured.
func NewGradingEventStream(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) GradingEventStream {
	stream := &gradingEventStream{
		logger: logger.With().Str("component", "grading_events").Logger(),
		broker: &gradingBroker{
			subscribers: make(map[uint]map[chan dto.GradingEvent]struct{}),
		},
		nodeID: uuid.NewString(),
		now:    time.Now,
	}

	if channelBase == "" {
		return stream
	}

	if natsConn != nil {
		stream.nats = natsConn
		stream.natsSubject = strings.ReplaceAll(channelBase, ":", ".")
	} else if redisClient != nil {
		stream.redis = redisClient
		stream.redisChannel = channelBase + ":events"
	}

	return stream
}

func (s *gradingEventStream) Start(ctx context.Context) {
	if s.redis != nil {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil {
		s.consumeNATS(ctx)
	}
}

func (s *gradingEventStream) Publish(ctx context.Context, event dto.GradingEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}

	s.deliver(event)

	if s.redis == nil && s.nats == nil {
		return
	}

	payload, err := json.Marshal(gradingEnvelope{Source: s.nodeID, Event: event})
	if err != nil {
		s.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to encode grading event")
		return
	}

	if s.nats != nil {
		if err := s.nats.Publish(s.natsSubject+"."+event.Type, payload); err != nil {
			s.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to publish grading event to nats")
		}
		return
	}

	if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
		s.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to publish grading event to redis")
	}
}

func (s *gradingEventStream) Subscribe(submissionID uint) (<-chan dto.GradingEvent, func()) {
	channel := make(chan dto.GradingEvent, gradingEventBufferSize)

	s.broker.subscribe(submissionID, channel)
	observability.LiveClientsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.broker.unsubscribe(submissionID, channel)
			observability.LiveClientsActive().Dec()
		})
	}

	return channel, cleanup
}

func (s *gradingEventStream) deliver(event dto.GradingEvent) {
	observability.GradingEvents().WithLabelValues(event.Type).Inc()
	s.broker.broadcast(event.SubmissionID, event)
}

func (s *gradingEventStream) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("grading redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload))
	}
}

// consumeNATS uses a plain subscription so that every node sees every event.
func (s *gradingEventStream) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject+".>", func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to grading nats subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain grading nats subscription")
		}
	}()
}

func (s *gradingEventStream) handleEnvelope(payload []byte) {
	var envelope gradingEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid grading event payload")
		return
	}

	if envelope.Source == s.nodeID {
		return
	}

	s.deliver(envelope.Event)
}

func (b *gradingBroker) subscribe(submissionID uint, ch chan dto.GradingEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[submissionID]; !exists {
		b.subscribers[submissionID] = make(map[chan dto.GradingEvent]struct{})
	}
	b.subscribers[submissionID][ch] = struct{}{}
}

func (b *gradingBroker) unsubscribe(submissionID uint, ch chan dto.GradingEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[submissionID]; ok {
		if _, present := subscribers[ch]; !present {
			return
		}
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, submissionID)
		}
	}
}

func (b *gradingBroker) broadcast(submissionID uint, event dto.GradingEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[submissionID] {
		select {
		case ch <- event:
		default:
		}
	}
}
