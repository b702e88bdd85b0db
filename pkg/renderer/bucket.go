package renderer

import (
	"time"

	"github.com/df07/go-scene-raytracer/pkg/core"
)

// Sample is one traced camera ray: where it went through the image plane
// and the radiance it brought back.
type Sample struct {
	X, Y  float64 // Continuous image coordinates
	Color core.Vec3
}

// Bucket is a fixed-capacity batch of samples handed from a worker to the
// splatter. Buckets are allocated once per job and recycled.
type Bucket struct {
	samples []Sample
	n       int
}

// NewBucket allocates a bucket holding up to capacity samples
func NewBucket(capacity int) *Bucket {
	return &Bucket{samples: make([]Sample, capacity)}
}

// Add appends a sample; it returns false when the bucket is full
func (b *Bucket) Add(s Sample) bool {
	if b.n >= len(b.samples) {
		return false
	}
	b.samples[b.n] = s
	b.n++
	return true
}

// Samples returns the filled part of the bucket
func (b *Bucket) Samples() []Sample {
	return b.samples[:b.n]
}

// Len returns the number of samples in the bucket
func (b *Bucket) Len() int { return b.n }

// Cap returns the fixed capacity of the bucket
func (b *Bucket) Cap() int { return len(b.samples) }

// Reset empties the bucket for reuse
func (b *Bucket) Reset() { b.n = 0 }

// BucketPool is a bounded queue of buckets. A job owns two: clean buckets
// waiting for workers and dirty buckets waiting for the splatter. The
// channel capacity equals the job's bucket count, so Submit never blocks.
type BucketPool struct {
	ch chan *Bucket
}

// NewBucketPool creates an empty pool with room for capacity buckets
func NewBucketPool(capacity int) *BucketPool {
	return &BucketPool{ch: make(chan *Bucket, capacity)}
}

// Submit puts a bucket in the pool without blocking. It returns false if
// the pool is already full, which means a bucket was duplicated.
func (p *BucketPool) Submit(b *Bucket) bool {
	select {
	case p.ch <- b:
		return true
	default:
		return false
	}
}

// TryAcquire takes a bucket if one is available
func (p *BucketPool) TryAcquire() (*Bucket, bool) {
	select {
	case b := <-p.ch:
		return b, true
	default:
		return nil, false
	}
}

// AcquireTimeout waits up to d for a bucket
func (p *BucketPool) AcquireTimeout(d time.Duration) (*Bucket, bool) {
	select {
	case b := <-p.ch:
		return b, true
	default:
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case b := <-p.ch:
		return b, true
	case <-timer.C:
		return nil, false
	}
}

// Len returns the number of buckets currently in the pool
func (p *BucketPool) Len() int { return len(p.ch) }

// Cap returns the pool capacity
func (p *BucketPool) Cap() int { return cap(p.ch) }
