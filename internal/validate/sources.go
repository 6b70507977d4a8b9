package validate

import (
	"net/netip"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultMaxSources bounds how many senders a SourceTracker remembers.
const DefaultMaxSources = 64

// SourceStats are the per-sender counters kept by SourceTracker.
type SourceStats struct {
	Source    netip.AddrPort
	Packets   int
	Valid     int
	Invalid   int
	FrameGaps int
	LastFrame uint32
	FirstSeen time.Time
	LastSeen  time.Time

	haveFrame bool
}

// SourceTracker keeps counters for the most recently active senders. The
// least recently seen sender is evicted once the table is full.
type SourceTracker struct {
	cache   *lru.Cache
	evicted int
}

// NewSourceTracker creates a tracker for up to size senders.
func NewSourceTracker(size int) (*SourceTracker, error) {
	if size <= 0 {
		size = DefaultMaxSources
	}
	t := &SourceTracker{}
	cache, err := lru.NewWithEvict(size, func(key, value interface{}) {
		t.evicted++
	})
	if err != nil {
		return nil, err
	}
	t.cache = cache
	return t, nil
}

// Observe updates the counters for e's source.
func (t *SourceTracker) Observe(e Event) {
	var st *SourceStats
	if v, ok := t.cache.Get(e.Source); ok {
		st = v.(*SourceStats)
	} else {
		st = &SourceStats{Source: e.Source, FirstSeen: e.Time}
		t.cache.Add(e.Source, st)
	}

	st.Packets++
	st.LastSeen = e.Time
	if !e.Result.Valid() {
		st.Invalid++
		return
	}
	st.Valid++
	frame := e.Result.Packet.Frame
	if st.haveFrame && frame != st.LastFrame+1 {
		st.FrameGaps++
	}
	st.LastFrame = frame
	st.haveFrame = true
}

// Lookup returns a copy of the counters for src.
func (t *SourceTracker) Lookup(src netip.AddrPort) (SourceStats, bool) {
	v, ok := t.cache.Peek(src)
	if !ok {
		return SourceStats{}, false
	}
	return *v.(*SourceStats), true
}

// Sources returns a snapshot ordered by packet count, busiest first.
func (t *SourceTracker) Sources() []SourceStats {
	keys := t.cache.Keys()
	out := make([]SourceStats, 0, len(keys))
	for _, k := range keys {
		if v, ok := t.cache.Peek(k); ok {
			out = append(out, *v.(*SourceStats))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Packets != out[j].Packets {
			return out[i].Packets > out[j].Packets
		}
		return out[i].Source.String() < out[j].Source.String()
	})
	return out
}

// Len is the number of senders currently tracked.
func (t *SourceTracker) Len() int { return t.cache.Len() }

// Evicted counts senders dropped to make room for new ones.
func (t *SourceTracker) Evicted() int { return t.evicted }
