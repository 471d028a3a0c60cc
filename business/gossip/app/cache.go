package app

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/fd1az/chainprobe/business/gossip/domain"
)

// messageRecord tracks who delivered a message and when it was first seen.
type messageRecord struct {
	firstSeen time.Time
	peers     map[domain.PeerID]struct{}
}

// delivery is the outcome of recording one peer's delivery of a message.
type delivery struct {
	firstSeen     time.Time
	peersAfter    int
	newlyInserted bool
}

// deliveryCache holds one message record per hash. Records expire ttl
// after their first sighting; size bounds the number of records, 0 means
// unbounded.
type deliveryCache struct {
	mu      sync.Mutex
	records *expirable.LRU[common.Hash, *messageRecord]
}

func newDeliveryCache(size int, ttl time.Duration) *deliveryCache {
	return &deliveryCache{
		records: expirable.NewLRU[common.Hash, *messageRecord](size, nil, ttl),
	}
}

// observe records that peer delivered hash at now.
func (c *deliveryCache) observe(hash common.Hash, peer domain.PeerID, now time.Time) delivery {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records.Get(hash)
	if !ok {
		rec = &messageRecord{firstSeen: now, peers: make(map[domain.PeerID]struct{}, 8)}
		c.records.Add(hash, rec)
	}

	_, seen := rec.peers[peer]
	if !seen {
		rec.peers[peer] = struct{}{}
	}
	return delivery{
		firstSeen:     rec.firstSeen,
		peersAfter:    len(rec.peers),
		newlyInserted: !seen,
	}
}

func (c *deliveryCache) len() int {
	return c.records.Len()
}
