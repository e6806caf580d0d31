// Package resolver maps a physical serial port to the BIB/UUT/port-index
// triple declared in the configuration tree.
package resolver

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benchforge/portcore/internal/hardware"
)

// PortMapping is a resolved (physical_port, bib_id, uut_id, port_index)
// triple plus the suffix letter decoded from the EEPROM descriptor.
type PortMapping struct {
	PhysicalPort string
	BibID        string
	UutID        string
	PortIndex    int
	Suffix       string
	FromFallback bool
}

var bibIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-\.]+$`)

var suffixToIndex = map[string]int{
	"A": 1, "B": 2, "C": 3, "D": 4, "": 1,
}

// Config configures a Resolver.
type Config struct {
	Cache *hardware.MetadataCache

	// DefaultBibID is the BIB returned whenever resolution falls back
	// (absent/invalid descriptor, malformed bib id, unrecognized suffix).
	DefaultBibID string

	// DefaultUutID is used for any bib_id without an explicit entry in
	// UutMapping. Exposed as configuration rather than hard-coded, since
	// the right uut_id policy is deployment-specific.
	DefaultUutID string

	// UutMapping optionally overrides DefaultUutID per bib_id.
	UutMapping map[string]string

	TTL    time.Duration
	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.DefaultBibID == "" {
		c.DefaultBibID = "client_demo"
	}
	if c.DefaultUutID == "" {
		c.DefaultUutID = "production_uut"
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Stats are the resolver's request counters.
type Stats struct {
	TotalRequests   int64
	SuccessfulReads int64
	FallbacksUsed   int64
	ReadErrors      int64
}

type cachedMapping struct {
	mapping   PortMapping
	expiresAt time.Time
}

// Resolver resolves physical ports to BIB/UUT/port-index triples, caching
// results with a 5-minute TTL and never surfacing an error to the caller —
// an unresolvable port always yields the configured default BIB.
type Resolver struct {
	cfg Config

	mu    sync.RWMutex
	cache map[string]*cachedMapping

	totalRequests   int64
	successfulReads int64
	fallbacksUsed   int64
	readErrors      int64
}

// New builds a Resolver from cfg.
func New(cfg Config) *Resolver {
	cfg.setDefaults()
	return &Resolver{
		cfg:   cfg,
		cache: make(map[string]*cachedMapping),
	}
}

// Resolve returns the BIB/UUT/port-index mapping for portName. It never
// returns an error: unresolvable ports fall back to the configured default
// BIB with port_index = 1.
func (r *Resolver) Resolve(ctx context.Context, portName string) PortMapping {
	atomic.AddInt64(&r.totalRequests, 1)

	if cached, ok := r.lookup(portName); ok {
		return cached
	}

	mapping := r.resolveUncached(ctx, portName)
	r.store(portName, mapping)
	return mapping
}

func (r *Resolver) lookup(portName string) (PortMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[portName]
	if !ok || time.Now().After(entry.expiresAt) {
		return PortMapping{}, false
	}
	return entry.mapping, true
}

func (r *Resolver) store(portName string, mapping PortMapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[portName] = &cachedMapping{mapping: mapping, expiresAt: time.Now().Add(r.cfg.TTL)}
}

func (r *Resolver) resolveUncached(ctx context.Context, portName string) PortMapping {
	if r.cfg.Cache == nil {
		return r.fallback(portName)
	}

	md := r.cfg.Cache.Get(ctx, portName, false)
	if md == nil || !md.IsValid {
		atomic.AddInt64(&r.readErrors, 1)
		return r.fallback(portName)
	}

	bibID, suffix, ok := splitProductDescriptor(md.ProductDesc)
	if !ok || !IsValidBibID(bibID) {
		r.cfg.Logger.Warn("invalid bib id from product descriptor", "port", portName, "descriptor", md.ProductDesc)
		return r.fallback(portName)
	}

	index, ok := suffixToIndex[suffix]
	if !ok {
		r.cfg.Logger.Warn("unrecognized port suffix", "port", portName, "suffix", suffix)
		return r.fallback(portName)
	}

	atomic.AddInt64(&r.successfulReads, 1)
	return PortMapping{
		PhysicalPort: portName,
		BibID:        bibID,
		UutID:        r.uutFor(bibID),
		PortIndex:    index,
		Suffix:       suffix,
	}
}

func (r *Resolver) fallback(portName string) PortMapping {
	atomic.AddInt64(&r.fallbacksUsed, 1)
	return PortMapping{
		PhysicalPort: portName,
		BibID:        r.cfg.DefaultBibID,
		UutID:        r.uutFor(r.cfg.DefaultBibID),
		PortIndex:    1,
		FromFallback: true,
	}
}

func (r *Resolver) uutFor(bibID string) string {
	if r.cfg.UutMapping != nil {
		if uut, ok := r.cfg.UutMapping[bibID]; ok {
			return uut
		}
	}
	return r.cfg.DefaultUutID
}

// splitProductDescriptor trims descriptor and, if it ends with a single
// whitespace-separated capital letter in {A,B,C,D}, splits it into bib_id
// and suffix. Otherwise bib_id is the whole trimmed string and suffix is
// empty.
func splitProductDescriptor(descriptor string) (bibID, suffix string, ok bool) {
	trimmed := strings.TrimSpace(descriptor)
	if trimmed == "" {
		return "", "", false
	}

	fields := strings.Fields(trimmed)
	if len(fields) >= 2 {
		last := fields[len(fields)-1]
		if len(last) == 1 && strings.Contains("ABCD", last) {
			bibID = strings.Join(fields[:len(fields)-1], " ")
			return bibID, last, true
		}
	}

	return trimmed, "", true
}

// IsValidBibID reports whether bibID is safe to use as a path component:
// 3-50 characters drawn from [A-Za-z0-9_-.]. internal/bibconfig's validator
// applies this same check to XML-declared bib ids before they can reach
// runlog's directory construction.
func IsValidBibID(bibID string) bool {
	if len(bibID) < 3 || len(bibID) > 50 {
		return false
	}
	return bibIDPattern.MatchString(bibID)
}

// Stats returns a snapshot of the resolver's request counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		TotalRequests:   atomic.LoadInt64(&r.totalRequests),
		SuccessfulReads: atomic.LoadInt64(&r.successfulReads),
		FallbacksUsed:   atomic.LoadInt64(&r.fallbacksUsed),
		ReadErrors:      atomic.LoadInt64(&r.readErrors),
	}
}
