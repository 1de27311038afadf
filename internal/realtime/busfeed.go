package realtime

import (
	"context"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
)

// BusFeed is a Feed over the in-process bus. It forwards every
// message.inserted event whose payload is a chat.Row.
type BusFeed struct {
	bus    *bus.Bus
	buffer int
}

// NewBusFeed creates a feed over b. buffer sizes each subscription's
// channels.
func NewBusFeed(b *bus.Bus, buffer int) *BusFeed {
	if buffer <= 0 {
		buffer = 64
	}
	return &BusFeed{bus: b, buffer: buffer}
}

// Subscribe registers a bus subscription. Events published after Subscribe
// returns are delivered.
func (f *BusFeed) Subscribe(ctx context.Context) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch, unsub := f.bus.Subscribe(bus.KindMessageInserted, f.buffer)
	s := &busSubscription{
		events: make(chan chat.Message),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		unsub:  unsub,
	}
	s.wg.Add(1)
	go s.forward(ch)
	return s, nil
}

type busSubscription struct {
	events chan chat.Message
	done   chan struct{}
	stop   chan struct{}
	unsub  func()
	once   sync.Once
	wg     sync.WaitGroup
}

func (s *busSubscription) forward(ch <-chan bus.Event) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case evt := <-ch:
			row, ok := evt.Payload.(chat.Row)
			if !ok {
				continue
			}
			select {
			case s.events <- row.Message():
			case <-s.stop:
				return
			}
		}
	}
}

func (s *busSubscription) Events() <-chan chat.Message { return s.events }
func (s *busSubscription) Done() <-chan struct{}       { return s.done }

func (s *busSubscription) Close() error {
	s.once.Do(func() {
		s.unsub()
		close(s.stop)
		s.wg.Wait()
		close(s.done)
	})
	return nil
}
