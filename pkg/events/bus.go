package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/guru/pkg/helpers"
)

const defaultSubscriptionBuffer = 64

// Bus fans state-changed events out to subscribers over an in-process
// watermill pubsub.
//
// Publish stamps every event with a monotonically increasing sequence number,
// in the order Publish is called. Publishing blocks until every subscriber has
// acked, so subscribers observe events in that order.
type Bus struct {
	logger watermill.LoggerAdapter
	pubSub *gochannel.GoChannel
	buffer int

	mutex          sync.Mutex
	sequenceNumber uint64
	closed         bool
}

type BusOption func(*Bus)

func WithLogger(logger watermill.LoggerAdapter) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithVerbose routes watermill's own logging into zerolog.
func WithVerbose(verbose bool) BusOption {
	return func(b *Bus) {
		if verbose {
			WithLogger(helpers.NewWatermill(log.Logger))(b)
		}
	}
}

// WithSubscriptionBuffer sets how many events a slow subscriber may lag
// behind before further events are dropped for it.
func WithSubscriptionBuffer(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func NewBus(options ...BusOption) *Bus {
	ret := &Bus{
		logger: watermill.NopLogger{},
		buffer: defaultSubscriptionBuffer,
	}
	for _, o := range options {
		o(ret)
	}
	ret.pubSub = gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, ret.logger)
	return ret
}

// Publish serializes the event and hands it to every current subscriber.
func (b *Bus) Publish(e StateChanged) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return errors.New("event bus is closed")
	}

	e.Sequence = b.sequenceNumber
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "could not encode state-changed event")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("sequence_number", strconv.FormatUint(b.sequenceNumber, 10))
	msg.Metadata.Set("action", e.Action)
	b.sequenceNumber++

	return b.pubSub.Publish(TopicStateChanged, msg)
}

// PublishBlind publishes and only logs failures.
func (b *Bus) PublishBlind(e StateChanged) {
	if err := b.Publish(e); err != nil {
		log.Warn().Err(err).Str("action", e.Action).Msg("failed to publish state change")
	}
}

// Subscribe returns a channel of state-changed events. The channel is closed
// when ctx is cancelled or the bus is closed.
//
// A message is acked once it was queued or dropped. A subscriber that falls
// more than the buffer size behind misses events; since events only announce a
// new version, reading the store again catches it up.
func (b *Bus) Subscribe(ctx context.Context) (<-chan StateChanged, error) {
	messages, err := b.pubSub.Subscribe(ctx, TopicStateChanged)
	if err != nil {
		return nil, errors.Wrap(err, "could not subscribe to state changes")
	}

	out := make(chan StateChanged, b.buffer)
	go func() {
		defer close(out)
		for msg := range messages {
			e, err := NewStateChangedFromJson(msg.Payload)
			if err != nil {
				log.Error().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed state-changed event")
				msg.Ack()
				continue
			}

			select {
			case out <- *e:
			default:
				log.Trace().Uint64("sequence", e.Sequence).Msg("subscriber lagging, dropping state-changed event")
			}
			msg.Ack()
		}
	}()
	return out, nil
}

// Close closes the underlying pubsub, which ends every subscription.
func (b *Bus) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	log.Debug().Msg("Closing state-changed bus")
	if err := b.pubSub.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close pubsub")
		return err
	}
	return nil
}
