// Package reference generates human-traceable account references.
//
// A reference looks like APT-24-mj3k2l1a: a short code for the entity type,
// the entity id and the base36 millisecond timestamp of the attempt, cut to
// the payment service's 20 character limit. Unlike the idempotency key it is
// meant to differ on every attempt, so the generator remembers what it issued
// in a bloom filter and moves the timestamp forward on a probable repeat.
package reference

import (
	"strconv"
	"strings"
	"sync"

	"payflow/pkg/clock"
	"payflow/pkg/logging"
	"payflow/pkg/metrics"
	"payflow/pkg/payment"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"
)

var entityCodes = map[string]string{
	"appointment":  "APT",
	"consultation": "CON",
	"prescription": "RX",
	"subscription": "SUB",
}

// Config configures a Generator.
type Config struct {
	// ExpectedReferences sizes the bloom filter (default: 100000)
	ExpectedReferences uint
	// FalsePositiveRate of the bloom filter (default: 0.001)
	FalsePositiveRate float64
	// MaxAttempts bounds regeneration on collision (default: 8)
	MaxAttempts int
	Clock       clock.Clock
	Metrics     metrics.MetricsCollector
}

// Generator issues account references. It is safe for concurrent use.
type Generator struct {
	mu          sync.Mutex
	filter      *bloom.BloomFilter
	expected    uint
	fpRate      float64
	maxAttempts int
	clock       clock.Clock
	metrics     metrics.MetricsCollector
	logger      *logging.Logger

	issued     uint64
	collisions uint64
}

// NewGenerator creates a Generator, applying defaults for zero config values.
func NewGenerator(config Config) *Generator {
	if config.ExpectedReferences == 0 {
		config.ExpectedReferences = 100000
	}
	if config.FalsePositiveRate <= 0 || config.FalsePositiveRate >= 1 {
		config.FalsePositiveRate = 0.001
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 8
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	return &Generator{
		filter:      bloom.NewWithEstimates(config.ExpectedReferences, config.FalsePositiveRate),
		expected:    config.ExpectedReferences,
		fpRate:      config.FalsePositiveRate,
		maxAttempts: config.MaxAttempts,
		clock:       config.Clock,
		metrics:     metrics.OrNoOp(config.Metrics),
		logger:      logging.Global().Named("reference"),
	}
}

// EntityCode returns the short code used for entityType.
func EntityCode(entityType string) string {
	key := strings.ToLower(strings.TrimSpace(entityType))
	if code, ok := entityCodes[key]; ok {
		return code
	}

	letters := alnum(strings.ToUpper(key))
	if letters == "" {
		return "PAY"
	}
	if len(letters) > 3 {
		letters = letters[:3]
	}
	return letters
}

// Build formats a reference without consulting the filter.
func Build(entityType, entityID string, unixMillis int64) string {
	return clip(join(EntityCode(entityType), alnum(entityID), strconv.FormatInt(unixMillis, 36)))
}

// buildCompact shortens the entity id so the timestamp always survives the cut.
func buildCompact(entityType, entityID string, unixMillis int64) string {
	code := EntityCode(entityType)
	ts := strconv.FormatInt(unixMillis, 36)
	id := alnum(entityID)

	room := payment.MaxAccountReferenceLength - len(code) - len(ts) - 2
	if room < 0 {
		room = 0
	}
	if len(id) > room {
		id = id[:room]
	}
	return clip(join(code, id, ts))
}

// Next returns a fresh reference for one payment attempt.
func (g *Generator) Next(entityType, entityID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.clock.Now().UnixMilli()
	ref := Build(entityType, entityID, ts)

	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if attempt > 0 {
			// Later attempts keep the timestamp intact so bumping it changes the reference
			ref = buildCompact(entityType, entityID, ts+int64(attempt))
		}
		if !g.filter.TestAndAdd([]byte(ref)) {
			g.issued++
			return ref
		}
		g.collisions++
		g.metrics.RecordReferenceCollision()
	}

	g.logger.Warn("account reference may repeat an earlier attempt",
		zap.String("reference", ref),
		zap.Int("attempts", g.maxAttempts),
	)
	g.issued++
	return ref
}

// Stats holds generator counters.
type Stats struct {
	Issued     uint64
	Collisions uint64
	Capacity   uint
}

// Stats returns the generator counters.
func (g *Generator) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Stats{
		Issued:     g.issued,
		Collisions: g.collisions,
		Capacity:   g.filter.Cap(),
	}
}

// Reset forgets every issued reference.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.filter = bloom.NewWithEstimates(g.expected, g.fpRate)
	g.issued = 0
	g.collisions = 0
}

func alnum(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func join(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "-")
}

func clip(ref string) string {
	if len(ref) > payment.MaxAccountReferenceLength {
		ref = ref[:payment.MaxAccountReferenceLength]
	}
	return strings.TrimRight(ref, "-")
}
