package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bookingsync/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverKVStore keeps every value on both primary and fallback, stamped
// with a revision. Writes always go to the fallback and to the primary while
// it is up; reads return the newer of the two copies and repair the older
// one. A copy written while the primary was down is therefore never
// overwritten by the stale primary copy after recovery.
type FailoverKVStore struct {
	primary      domain.KVStore
	fallback     domain.KVStore
	logger       *zerolog.Logger
	recoverAfter time.Duration
	now          func() time.Time
	isDown       atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
	lastRev   int64
}

// ErrNoFallbackCopy is returned by Get when primary is unreachable and the
// fallback never held the key, so absence cannot be told from an outage.
var ErrNoFallbackCopy = errors.New("primary key-value store unavailable and fallback has no copy")

// envelope is the stored form of a value. Values written without one (by a
// plain store) decode with Rev 0.
type envelope struct {
	Rev   int64  `json:"rev"`
	Value string `json:"value"`
}

func NewFailoverKVStore(primary, fallback domain.KVStore, logger *zerolog.Logger) *FailoverKVStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverKVStore{
		primary:      primary,
		fallback:     fallback,
		logger:       logger,
		recoverAfter: time.Minute,
		now:          time.Now,
	}
}

func (r *FailoverKVStore) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary key-value store failed, falling back")
	}
	r.mu.Lock()
	r.lastCheck = r.now()
	r.mu.Unlock()
}

func (r *FailoverKVStore) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary key-value store recovered")
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverKVStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.now().Sub(r.lastCheck) > r.recoverAfter {
		r.lastCheck = r.now()
		return true
	}
	return false
}

// nextRev returns a revision above every one this store has issued or seen.
func (r *FailoverKVStore) nextRev() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	rev := r.now().UnixNano()
	if rev <= r.lastRev {
		rev = r.lastRev + 1
	}
	r.lastRev = rev
	return rev
}

func (r *FailoverKVStore) observeRev(rev int64) {
	r.mu.Lock()
	if rev > r.lastRev {
		r.lastRev = rev
	}
	r.mu.Unlock()
}

func encodeEnvelope(e envelope) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeEnvelope(raw string) envelope {
	var e envelope
	if err := json.Unmarshal([]byte(raw), &e); err != nil || e.Rev == 0 {
		return envelope{Value: raw}
	}
	return e
}

type copyResult struct {
	raw   string
	env   envelope
	found bool
	err   error
}

func readCopy(ctx context.Context, store domain.KVStore, key string) copyResult {
	raw, found, err := store.Get(ctx, key)
	res := copyResult{raw: raw, found: found, err: err}
	if err == nil && found {
		res.env = decodeEnvelope(raw)
	}
	return res
}

// newer reports whether c holds a later revision than b.
func (c copyResult) newer(b copyResult) bool {
	if !c.found {
		return false
	}
	return !b.found || c.env.Rev > b.env.Rev
}

func (r *FailoverKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	fb := readCopy(ctx, r.fallback, key)

	var p copyResult
	primaryOK := false
	if r.usePrimary() {
		p = readCopy(ctx, r.primary, key)
		if p.err != nil {
			r.markDown(p.err)
		} else {
			primaryOK = true
			r.markUp()
		}
	}

	switch {
	case !primaryOK && fb.err != nil:
		if p.err != nil {
			return "", false, fmt.Errorf("get %s: %w", key, errors.Join(p.err, fb.err))
		}
		return "", false, fb.err
	case !primaryOK && !fb.found:
		return "", false, fmt.Errorf("get %s: %w", key, ErrNoFallbackCopy)
	case !primaryOK:
		r.observeRev(fb.env.Rev)
		return fb.env.Value, fb.found, nil
	case fb.err != nil:
		r.logger.Warn().Err(fb.err).Str("key", key).Msg("Fallback key-value store read failed")
		r.observeRev(p.env.Rev)
		return p.env.Value, p.found, nil
	}

	// both copies readable: the newer wins and the older is repaired
	if fb.newer(p) {
		r.repair(ctx, r.primary, key, fb.raw, "primary")
		r.observeRev(fb.env.Rev)
		return fb.env.Value, true, nil
	}
	if p.newer(fb) {
		r.repair(ctx, r.fallback, key, p.raw, "fallback")
	}
	r.observeRev(p.env.Rev)
	return p.env.Value, p.found, nil
}

func (r *FailoverKVStore) repair(ctx context.Context, store domain.KVStore, key, raw, side string) {
	if err := store.Set(ctx, key, raw); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Str("side", side).Msg("Failed to repair stale copy")
		return
	}
	r.logger.Info().Str("key", key).Str("side", side).Msg("Stale copy repaired")
}

// Set succeeds when at least one side stored the value.
func (r *FailoverKVStore) Set(ctx context.Context, key, value string) error {
	raw, err := encodeEnvelope(envelope{Rev: r.nextRev(), Value: value})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	fbErr := r.fallback.Set(ctx, key, raw)
	if fbErr != nil {
		r.logger.Warn().Err(fbErr).Str("key", key).Msg("Fallback key-value store write failed")
	}

	var pErr error
	if r.usePrimary() {
		if pErr = r.primary.Set(ctx, key, raw); pErr != nil {
			r.markDown(pErr)
		} else {
			r.markUp()
			return nil
		}
	}

	if fbErr != nil {
		return fmt.Errorf("set %s: %w", key, errors.Join(pErr, fbErr))
	}
	return nil
}
