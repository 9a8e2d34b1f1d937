package rules

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const defaultShardCount = 64

type bucketKey struct {
	rule string
	ip   string
}

// bucket holds the timestamps of matching events for one (rule, ip) pair.
type bucket struct {
	mu    sync.Mutex
	epoch uint64
	times []time.Time
}

type stateShard struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
}

// CorrelationState is the sliding-window store shared by all Check calls.
// Shard locks only guard bucket lookup; the window itself is mutated under
// the bucket's own lock so unrelated pairs never contend.
type CorrelationState struct {
	shards []*stateShard
}

func NewCorrelationState() *CorrelationState {
	return NewCorrelationStateWithShards(defaultShardCount)
}

func NewCorrelationStateWithShards(n int) *CorrelationState {
	if n <= 0 {
		n = defaultShardCount
	}
	s := &CorrelationState{shards: make([]*stateShard, n)}
	for i := range s.shards {
		s.shards[i] = &stateShard{buckets: make(map[bucketKey]*bucket)}
	}
	return s
}

func (s *CorrelationState) shardFor(key bucketKey) *stateShard {
	h := xxhash.Sum64String(key.rule + "\x00" + key.ip)
	return s.shards[h%uint64(len(s.shards))]
}

func (s *CorrelationState) bucket(key bucketKey) *bucket {
	shard := s.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	b, ok := shard.buckets[key]
	if !ok {
		b = &bucket{}
		shard.buckets[key] = b
	}
	return b
}

// Observe records a matching event and reports whether the threshold was
// reached. On firing the window collapses to the triggering timestamp.
// A bucket from an older epoch of the rule starts empty; an observation
// from an older epoch than the bucket's is dropped.
func (s *CorrelationState) Observe(rule string, epoch uint64, ip string, ts time.Time, window time.Duration, threshold int) (bool, int) {
	b := s.bucket(bucketKey{rule: rule, ip: ip})

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case epoch < b.epoch:
		return false, 0
	case epoch > b.epoch:
		b.epoch = epoch
		b.times = b.times[:0]
	}

	b.times = append(b.times, ts)

	cutoff := ts.Add(-window)
	kept := b.times[:0]
	for _, t := range b.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.times = kept

	count := len(b.times)
	if count >= threshold {
		b.times = append(b.times[:0], ts)
		return true, count
	}
	return false, count
}

// Count returns the number of timestamps currently held for the pair.
func (s *CorrelationState) Count(rule, ip string) int {
	key := bucketKey{rule: rule, ip: ip}
	shard := s.shardFor(key)
	shard.mu.Lock()
	b, ok := shard.buckets[key]
	shard.mu.Unlock()
	if !ok {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.times)
}

// Purge drops every bucket belonging to the rule.
func (s *CorrelationState) Purge(rule string) int {
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key := range shard.buckets {
			if key.rule == rule {
				delete(shard.buckets, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// TrackedIPs returns the number of distinct source IPs with live buckets.
func (s *CorrelationState) TrackedIPs() int {
	ips := make(map[string]struct{})
	for _, shard := range s.shards {
		shard.mu.Lock()
		for key := range shard.buckets {
			ips[key.ip] = struct{}{}
		}
		shard.mu.Unlock()
	}
	return len(ips)
}

// Buckets returns the number of live (rule, ip) buckets.
func (s *CorrelationState) Buckets() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		n += len(shard.buckets)
		shard.mu.Unlock()
	}
	return n
}
