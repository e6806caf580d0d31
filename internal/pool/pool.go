package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benchforge/portcore/internal/hardware"
	"github.com/benchforge/portcore/pkg/metrics"
)

// Config configures a Pool.
type Config struct {
	Enumerator hardware.PortEnumerator
	Cache      *hardware.MetadataCache
	Logger     *slog.Logger
	Metrics    *metrics.PoolMetrics
}

// Validate checks that required collaborators are present.
func (c *Config) Validate() error {
	if c.Enumerator == nil {
		return fmt.Errorf("pool: enumerator is required")
	}
	return nil
}

// Pool is a thread-safe exclusive-allocation registry over discovered
// serial ports. At most one PortAllocation exists per port name.
type Pool struct {
	cfg Config

	mu          sync.RWMutex
	allocations map[string]*PortAllocation
}

// New builds a Pool from cfg.
func New(cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pool{
		cfg:         cfg,
		allocations: make(map[string]*PortAllocation),
	}, nil
}

// Allocate discovers candidate ports, filters them through validationCfg,
// and exclusively assigns the first unallocated candidate to clientID. It
// returns (nil, false) if no candidate is available.
func (p *Pool) Allocate(ctx context.Context, validationCfg ValidationConfig, clientID string) (*PortAllocation, bool) {
	candidates, err := p.cfg.Enumerator.Discover(ctx)
	if err != nil {
		p.cfg.Logger.Warn("port discovery failed during allocation", "error", err)
		return nil, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, candidate := range candidates {
		if !passesValidation(candidate, validationCfg) {
			continue
		}
		if _, taken := p.allocations[candidate.PortName]; taken {
			continue
		}

		allocation := &PortAllocation{
			SessionID:       uuid.NewString(),
			ClientID:        clientID,
			PortName:        candidate.PortName,
			AcquiredAt:      time.Now(),
			AllocatedTo:     clientID,
			ValidationScore: candidate.ValidationScore,
			Metadata: map[string]interface{}{
				"chip_family":       candidate.ChipFamily,
				"is_ftdi":           candidate.VendorID == "0403",
				"validation_reason": candidate.ValidationReason,
			},
		}

		p.allocations[candidate.PortName] = allocation
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.AllocationsTotal.WithLabelValues("success").Inc()
			p.cfg.Metrics.ActiveLeases.Set(float64(len(p.allocations)))
		}
		return allocation, true
	}

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.AllocationsTotal.WithLabelValues("exhausted").Inc()
	}
	return nil, false
}

// Release removes the allocation for portName if and only if sessionID
// matches the holder, returning whether a release occurred.
func (p *Pool) Release(portName, sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	allocation, ok := p.allocations[portName]
	if !ok || allocation.SessionID != sessionID {
		return false
	}

	delete(p.allocations, portName)
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.ReleasesTotal.WithLabelValues("success").Inc()
		p.cfg.Metrics.ActiveLeases.Set(float64(len(p.allocations)))
	}
	return true
}

// IsAllocated reports whether portName currently has an active allocation.
func (p *Pool) IsAllocated(portName string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.allocations[portName]
	return ok
}

// Allocations returns a snapshot of all currently active allocations.
func (p *Pool) Allocations() []PortAllocation {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]PortAllocation, 0, len(p.allocations))
	for _, a := range p.allocations {
		out = append(out, *a)
	}
	return out
}

// GetSystemInfo delegates to the metadata cache, if configured.
func (p *Pool) GetSystemInfo(ctx context.Context, portName string, forceRefresh bool) *hardware.HardwareMetadata {
	if p.cfg.Cache == nil {
		return nil
	}
	return p.cfg.Cache.Get(ctx, portName, forceRefresh)
}

func passesValidation(d hardware.PortDescriptor, cfg ValidationConfig) bool {
	if !d.ValidForPool {
		return false
	}
	if !cfg.Strict {
		return true
	}
	for _, family := range cfg.AllowedChipFamilies {
		if family == d.ChipFamily {
			return true
		}
	}
	return false
}
