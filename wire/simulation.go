package wire

import (
	"math/rand"
	"sync"
	"time"
)

// SimulationConfig controls the realism of the simulated radio.
// Rates are probabilities in [0,1]; delays are in milliseconds.
type SimulationConfig struct {
	// Connection timing and reliability
	MinConnectionDelay    int     `yaml:"min_connection_delay_ms"`
	MaxConnectionDelay    int     `yaml:"max_connection_delay_ms"`
	ConnectionFailureRate float64 `yaml:"connection_failure_rate"`

	// Discovery timing
	AdvertisingInterval int `yaml:"advertising_interval_ms"` // how often scans poll adverts
	MinDiscoveryDelay   int `yaml:"min_discovery_delay_ms"`
	MaxDiscoveryDelay   int `yaml:"max_discovery_delay_ms"`

	// PacketLossRate drops a write before it reaches the peer (Write errors)
	PacketLossRate float64 `yaml:"packet_loss_rate"`
	// StatusFailureRate makes the peer answer a write with an ATT error
	StatusFailureRate float64 `yaml:"status_failure_rate"`

	// Deterministic mode for testing
	Deterministic bool  `yaml:"deterministic"`
	Seed          int64 `yaml:"seed"`
}

// DefaultSimulationConfig returns realistic BLE simulation parameters:
// ~1.6% connection failures, 1.5% lost writes and 0.5% rejected writes.
func DefaultSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		MinConnectionDelay:    30,
		MaxConnectionDelay:    100,
		ConnectionFailureRate: 0.016,

		AdvertisingInterval: 100,
		MinDiscoveryDelay:   100,
		MaxDiscoveryDelay:   1000,

		PacketLossRate:    0.015,
		StatusFailureRate: 0.005,
	}
}

// PerfectSimulationConfig returns 100% reliable config for testing
func PerfectSimulationConfig() *SimulationConfig {
	cfg := DefaultSimulationConfig()
	cfg.MinConnectionDelay = 0
	cfg.MaxConnectionDelay = 0
	cfg.ConnectionFailureRate = 0
	cfg.AdvertisingInterval = 20
	cfg.MinDiscoveryDelay = 0
	cfg.MaxDiscoveryDelay = 0
	cfg.PacketLossRate = 0
	cfg.StatusFailureRate = 0
	cfg.Deterministic = true
	return cfg
}

// Simulator rolls the dice for one device. Safe for concurrent use.
type Simulator struct {
	config *SimulationConfig
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewSimulator creates a new BLE simulator
func NewSimulator(config *SimulationConfig) *Simulator {
	if config == nil {
		config = DefaultSimulationConfig()
	}

	var rng *rand.Rand
	if config.Deterministic {
		rng = rand.New(rand.NewSource(config.Seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Simulator{
		config: config,
		rng:    rng,
	}
}

// Config returns the simulation parameters in use
func (s *Simulator) Config() SimulationConfig {
	return *s.config
}

func (s *Simulator) roll(rate float64) bool {
	if rate <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < rate
}

func (s *Simulator) between(min, max int) time.Duration {
	if max <= min {
		return time.Duration(min) * time.Millisecond
	}
	s.mu.Lock()
	delay := min + s.rng.Intn(max-min)
	s.mu.Unlock()
	return time.Duration(delay) * time.Millisecond
}

// ShouldConnectionSucceed returns true if connection should succeed
func (s *Simulator) ShouldConnectionSucceed() bool {
	return !s.roll(s.config.ConnectionFailureRate)
}

// ShouldPacketSucceed returns true if a write should reach the peer
func (s *Simulator) ShouldPacketSucceed() bool {
	return !s.roll(s.config.PacketLossRate)
}

// ShouldRejectWrite returns true if the peer should answer with an error status
func (s *Simulator) ShouldRejectWrite() bool {
	return s.roll(s.config.StatusFailureRate)
}

// ConnectionDelay returns realistic connection delay
func (s *Simulator) ConnectionDelay() time.Duration {
	return s.between(s.config.MinConnectionDelay, s.config.MaxConnectionDelay)
}

// DiscoveryDelay returns realistic discovery delay
func (s *Simulator) DiscoveryDelay() time.Duration {
	return s.between(s.config.MinDiscoveryDelay, s.config.MaxDiscoveryDelay)
}

// AdvertisingInterval returns how often a scan looks for adverts
func (s *Simulator) AdvertisingInterval() time.Duration {
	if s.config.AdvertisingInterval <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(s.config.AdvertisingInterval) * time.Millisecond
}

// IntervalDelay simulates the connection interval latency of one round trip
func (s *Simulator) IntervalDelay() time.Duration {
	return s.between(int(MinConnectionInterval/time.Millisecond), int(MaxConnectionInterval/time.Millisecond))
}
