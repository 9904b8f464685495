package usecase

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avel/solana_strategy_bot/internal/domain"
)

// EventBus fans typed events out to subscribers. Delivery is best-effort:
// a subscriber whose buffer is full loses the event rather than stalling the
// trading callback that published it.
type EventBus struct {
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[int]chan domain.Event
	nextID int
}

func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[int]chan domain.Event),
	}
}

// Subscribe returns a receive channel and a cancel func. Cancel is safe to
// call more than once.
func (b *EventBus) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan domain.Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *EventBus) Publish(ev domain.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("Event dropped for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("kind", string(ev.Kind)))
		}
	}
}
