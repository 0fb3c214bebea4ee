package network

import (
	"fmt"
	"sync"
	"time"

	consulapi "github.com/hashicorp/consul/api"
)

// RelayStrategy is the multi-relay selection policy (spec.md §4.8).
type RelayStrategy int

const (
	PrimaryBackup RelayStrategy = iota
	RoundRobin
	HealthBased
)

// ewmaAlpha weights how quickly a relay's health score reacts to a
// fresh (latency, error) sample.
const ewmaAlpha = 0.3

// relayHealth tracks the EWMA of recent (latency, error_rate) for one
// relay (spec.md §4.8: "Health score = EWMA of recent (latency, error_rate)").
type relayHealth struct {
	avgLatency  time.Duration
	avgErrRate  float64
	initialized bool
}

func (h *relayHealth) observe(latency time.Duration, errored bool) {
	errSample := 0.0
	if errored {
		errSample = 1.0
	}
	if !h.initialized {
		h.avgLatency = latency
		h.avgErrRate = errSample
		h.initialized = true
		return
	}
	h.avgLatency = time.Duration(float64(h.avgLatency)*(1-ewmaAlpha) + float64(latency)*ewmaAlpha)
	h.avgErrRate = h.avgErrRate*(1-ewmaAlpha) + errSample*ewmaAlpha
}

// score is lower-is-better: latency in milliseconds plus a heavy
// error-rate penalty.
func (h *relayHealth) score() float64 {
	if !h.initialized {
		return 0
	}
	return float64(h.avgLatency.Milliseconds()) + h.avgErrRate*1000
}

// RelayPool selects among a configured set of relay URLs using the
// given strategy (spec.md §4.8: Primary+Backup / RoundRobin / HealthBased).
type RelayPool struct {
	mu       sync.Mutex
	strategy RelayStrategy
	relays   []string
	health   map[string]*relayHealth
	rrIndex  int

	resolver *ConsulRelayResolver // optional [EXPANSION]
}

// NewRelayPool builds a pool over a static relay URL list.
func NewRelayPool(strategy RelayStrategy, relays []string) *RelayPool {
	h := make(map[string]*relayHealth, len(relays))
	for _, r := range relays {
		h[r] = &relayHealth{}
	}
	return &RelayPool{strategy: strategy, relays: relays, health: h}
}

// WithConsulResolver attaches a ConsulRelayResolver that supplies the
// live relay set, falling back to the static list when unset or when
// Consul cannot be reached (spec.md §4.8 EXPANSION).
func (p *RelayPool) WithConsulResolver(r *ConsulRelayResolver) *RelayPool {
	p.resolver = r
	return p
}

func (p *RelayPool) currentRelays() []string {
	if p.resolver != nil {
		if resolved, err := p.resolver.Resolve(); err == nil && len(resolved) > 0 {
			return resolved
		}
	}
	return p.relays
}

// Select returns the relay URL to use next.
func (p *RelayPool) Select() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	relays := p.currentRelays()
	if len(relays) == 0 {
		return "", fmt.Errorf("network: no relays configured")
	}

	switch p.strategy {
	case PrimaryBackup:
		return relays[0], nil
	case RoundRobin:
		r := relays[p.rrIndex%len(relays)]
		p.rrIndex++
		return r, nil
	case HealthBased:
		best := relays[0]
		bestScore := p.scoreFor(best)
		for _, r := range relays[1:] {
			if s := p.scoreFor(r); s < bestScore {
				best, bestScore = r, s
			}
		}
		return best, nil
	default:
		return relays[0], nil
	}
}

func (p *RelayPool) scoreFor(relay string) float64 {
	h, ok := p.health[relay]
	if !ok {
		h = &relayHealth{}
		p.health[relay] = h
	}
	return h.score()
}

// Observe records a (latency, errored) sample for relay, feeding the
// HealthBased strategy's EWMA.
func (p *RelayPool) Observe(relay string, latency time.Duration, errored bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.health[relay]
	if !ok {
		h = &relayHealth{}
		p.health[relay] = h
	}
	h.observe(latency, errored)
}

// ConsulRelayResolver resolves the live relay pool via Consul service
// discovery, grounded on the teacher's internal/registry/consul.go
// (which registers a single chat server) inverted into a client-side
// lookup of a named service's healthy instances (spec.md §4.8 EXPANSION).
type ConsulRelayResolver struct {
	client      *consulapi.Client
	serviceName string
}

// NewConsulRelayResolver connects to the Consul agent at addr.
func NewConsulRelayResolver(addr, serviceName string) (*ConsulRelayResolver, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("network: consul client: %w", err)
	}
	return &ConsulRelayResolver{client: client, serviceName: serviceName}, nil
}

// Resolve returns the base URLs of currently healthy relay instances.
func (r *ConsulRelayResolver) Resolve() ([]string, error) {
	entries, _, err := r.client.Health().Service(r.serviceName, "", true, nil)
	if err != nil {
		return nil, fmt.Errorf("network: consul health query: %w", err)
	}
	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		addr := e.Service.Address
		if addr == "" {
			addr = e.Node.Address
		}
		urls = append(urls, fmt.Sprintf("wss://%s:%d", addr, e.Service.Port))
	}
	return urls, nil
}
