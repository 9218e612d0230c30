package events

import (
	"context"
	"sync"
	"time"
)

// Stats counts published events.
type Stats struct {
	Published   uint64
	Failed      uint64
	ByType      map[Type]uint64
	LastEventAt time.Time
}

// MetricPublisher wraps a Publisher with counters.
type MetricPublisher struct {
	publisher Publisher

	mu    sync.Mutex
	stats Stats
}

func NewMetricPublisher(publisher Publisher) *MetricPublisher {
	return &MetricPublisher{
		publisher: publisher,
		stats:     Stats{ByType: make(map[Type]uint64)},
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, event Event) error {
	err := p.publisher.Publish(ctx, event)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.stats.Failed++
		return err
	}
	p.stats.Published++
	p.stats.ByType[event.Type]++
	p.stats.LastEventAt = event.Timestamp
	return nil
}

// Stats returns a copy of the counters.
func (p *MetricPublisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.stats
	out.ByType = make(map[Type]uint64, len(p.stats.ByType))
	for k, v := range p.stats.ByType {
		out.ByType[k] = v
	}
	return out
}
