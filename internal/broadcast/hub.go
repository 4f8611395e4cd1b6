package broadcast

import "github.com/pscheid92/dashpulse/internal/adapter/metrics"

// Hub bundles the process-wide registry, subscription index, dispatcher and
// lifecycle controller. It is created once at startup.
type Hub struct {
	Registry      *Registry
	Subscriptions *Subscriptions
	Dispatcher    *Dispatcher
	Controller    *Controller
}

// Stats is a point-in-time view used by the admin endpoints.
type Stats struct {
	Connections int            `json:"connections"`
	Channels    map[string]int `json:"channels"`
}

// NewHub wires the core components together. hubMetrics may be nil.
func NewHub(hubMetrics *metrics.HubMetrics) *Hub {
	registry := NewRegistry()
	subscriptions := NewSubscriptions()
	return &Hub{
		Registry:      registry,
		Subscriptions: subscriptions,
		Dispatcher:    NewDispatcher(registry, subscriptions, hubMetrics),
		Controller:    NewController(registry, subscriptions, hubMetrics),
	}
}

func (h *Hub) Stats() Stats {
	return Stats{
		Connections: h.Registry.Len(),
		Channels:    h.Subscriptions.Channels(),
	}
}
