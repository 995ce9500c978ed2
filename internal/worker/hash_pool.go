package worker

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// PasswordHasher is the CPU-bound work the pool bounds.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// HashPool caps how many bcrypt computations run at once so slow hashing
// cannot starve unrelated requests of CPU.
type HashPool struct {
	sem    *semaphore.Weighted
	hasher PasswordHasher
	// dummyHash is verified when no stored hash exists so that path costs
	// the same as a real comparison.
	dummyHash string
}

// NewHashPool builds a pool of the given size; size <= 0 means one slot per CPU.
func NewHashPool(hasher PasswordHasher, size int) (*HashPool, error) {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	dummy, err := hasher.Hash("timing-equalisation-placeholder")
	if err != nil {
		return nil, err
	}
	return &HashPool{
		sem:       semaphore.NewWeighted(int64(size)),
		hasher:    hasher,
		dummyHash: dummy,
	}, nil
}

// Hash waits for a free slot, then hashes password.
func (p *HashPool) Hash(ctx context.Context, password string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)
	return p.hasher.Hash(password)
}

// Verify waits for a free slot, then compares password with hash.
// The only error is context cancellation while waiting.
func (p *HashPool) Verify(ctx context.Context, password, hash string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.sem.Release(1)
	return p.hasher.Verify(password, hash), nil
}

// VerifyDummy burns one comparison against a throwaway hash. It always reports no match.
func (p *HashPool) VerifyDummy(ctx context.Context, password string) error {
	_, err := p.Verify(ctx, password, p.dummyHash)
	return err
}
