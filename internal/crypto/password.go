// Package crypto hashes and verifies user passwords with bcrypt.
package crypto

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultCost is the bcrypt work factor used for new hashes.
	DefaultCost = 12
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72

	dummyPassword = "mindease-dummy-password"
)

// ErrPasswordTooLong is returned by Hash for inputs over MaxPasswordBytes.
var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// Hasher runs bcrypt with at most a fixed number of hashes in flight.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted

	dummyHash []byte
	dummyErr  error
}

// NewHasher returns a Hasher using cost and allowing concurrency parallel
// operations. Non-positive arguments fall back to DefaultCost and NumCPU.
// The hash used by VerifyDummy is computed here, so every later dummy
// verification costs exactly one comparison.
func NewHasher(cost, concurrency int) *Hasher {
	if cost <= 0 {
		cost = DefaultCost
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	h := &Hasher{cost: cost, sem: semaphore.NewWeighted(int64(concurrency))}
	h.dummyHash, h.dummyErr = bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
	return h
}

// Hash returns the bcrypt hash of plain. It blocks while the hasher is
// saturated and fails if ctx ends first.
func (h *Hasher) Hash(ctx context.Context, plain string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	defer h.sem.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plain matches hash. A mismatch is (false, nil);
// a malformed hash or a cancelled ctx is an error.
func (h *Hasher) Verify(ctx context.Context, hash, plain string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("verify password: %w", err)
	}
	defer h.sem.Release(1)

	return compare([]byte(hash), plain)
}

// VerifyDummy spends the same effort as Verify against a hash nobody owns.
// Callers use it when the user does not exist so that response timing does
// not reveal which usernames are registered.
func (h *Hasher) VerifyDummy(ctx context.Context, plain string) error {
	if h.dummyErr != nil {
		return fmt.Errorf("verify dummy password: %w", h.dummyErr)
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("verify dummy password: %w", err)
	}
	defer h.sem.Release(1)

	if _, err := compare(h.dummyHash, plain); err != nil {
		return fmt.Errorf("verify dummy password: %w", err)
	}
	return nil
}

func compare(hash []byte, plain string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(hash, []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, fmt.Errorf("compare password: %w", err)
	}
}
