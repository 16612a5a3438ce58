package convoke

import "convoke/internal/eventbus"

// WithEventBus sets the event bus component.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(c *Convoke) {
		c.eventBus = bus
	}
}
