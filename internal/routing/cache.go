package routing

import (
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/zeebo/xxh3"

	"github.com/tributary-ai/model-router/internal/types"
)

// analysisCache keeps task analyses keyed by conversation content
type analysisCache struct {
	lru *expirable.LRU[uint64, *types.TaskAnalysis]
}

func newAnalysisCache(size int, ttl time.Duration) *analysisCache {
	return &analysisCache{lru: expirable.NewLRU[uint64, *types.TaskAnalysis](size, nil, ttl)}
}

func (c *analysisCache) get(key uint64) (*types.TaskAnalysis, bool) {
	return c.lru.Get(key)
}

func (c *analysisCache) add(key uint64, a *types.TaskAnalysis) {
	c.lru.Add(key, a)
}

// analysisKey hashes the concatenated message content, its length and the
// analysis options
func analysisKey(messages []types.Message, opts *types.AnalysisOptions) uint64 {
	var b strings.Builder
	length := 0
	for _, m := range messages {
		text := m.Text()
		length += len(text)
		b.WriteString(m.Role)
		b.WriteByte(0)
		b.WriteString(text)
		b.WriteByte(0x1e)
	}
	b.WriteString(strconv.Itoa(length))

	if opts != nil {
		if opts.IsFollowUp != nil {
			b.WriteString("|f=" + strconv.FormatBool(*opts.IsFollowUp))
		}
		if opts.HistoryLength != nil {
			b.WriteString("|h=" + strconv.Itoa(*opts.HistoryLength))
		}
		if p := opts.Preferences; p != nil {
			b.WriteString("|p=" + p.QualitySpeedTradeoff + "," + p.CostOptimization + "," + p.Strategy)
		}
	}
	return xxh3.HashString(b.String())
}

// healthCache keeps recent provider snapshots
type healthCache struct {
	lru *expirable.LRU[string, *types.HealthSnapshot]
}

func newHealthCache(ttl time.Duration) *healthCache {
	return &healthCache{lru: expirable.NewLRU[string, *types.HealthSnapshot](0, nil, ttl)}
}

func (c *healthCache) get(providerID string) (*types.HealthSnapshot, bool) {
	return c.lru.Get(providerID)
}

func (c *healthCache) add(providerID string, snap *types.HealthSnapshot) {
	c.lru.Add(providerID, snap)
}
