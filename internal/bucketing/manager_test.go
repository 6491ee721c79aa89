package bucketing

import (
	"fmt"
	"testing"
	"time"
)

func TestBucketStableAndInRange(t *testing.T) {
	bm := NewBucketingManager(8)
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("session-%d", i)
		b := bm.Bucket(key)
		if b < 0 || b >= 8 {
			t.Fatalf("bucket out of range: %d", b)
		}
		if again := bm.Bucket(key); again != b {
			t.Fatalf("bucket not stable for %s: %d vs %d", key, b, again)
		}
		seen[b] = true
	}
	if len(seen) != 8 {
		t.Fatalf("expected all 8 buckets used, got %d", len(seen))
	}
}

func TestNewBucketingManagerDefaults(t *testing.T) {
	if got := NewBucketingManager(0).Buckets(); got != defaultBuckets {
		t.Fatalf("want %d buckets got %d", defaultBuckets, got)
	}
}

func TestWindowStart(t *testing.T) {
	bm := NewBucketingManager(1)
	ts := time.Unix(3725, 0)
	if got := bm.WindowStart(ts, time.Hour); got != 3600 {
		t.Fatalf("want 3600 got %d", got)
	}
	if got := bm.WindowStart(ts, 0); got != 3725 {
		t.Fatalf("want 3725 got %d", got)
	}
}
