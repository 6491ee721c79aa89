package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

const defaultBuckets = 16

// BucketingManager maps keys to a fixed number of buckets with murmur3
type BucketingManager struct {
	buckets    int
	hasherPool sync.Pool
}

func NewBucketingManager(buckets int) *BucketingManager {
	if buckets <= 0 {
		buckets = defaultBuckets
	}
	bm := &BucketingManager{buckets: buckets}

	// Create pool of hash functions to avoid allocation overhead
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return bm
}

// Bucket returns a stable bucket for key (0 to Buckets()-1)
func (bm *BucketingManager) Bucket(key string) int {
	return int(bm.getHash(key) % uint64(bm.buckets))
}

// WindowStart aligns t to the start of its fixed window, used to key
// counters that reset every window.
func (bm *BucketingManager) WindowStart(t time.Time, window time.Duration) int64 {
	seconds := int64(window / time.Second)
	if seconds <= 0 {
		return t.Unix()
	}
	return t.Unix() / seconds * seconds
}

func (bm *BucketingManager) Buckets() int {
	return bm.buckets
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
