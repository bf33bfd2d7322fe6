// Package membrane is the sealing authority for fetched domain data. It
// wraps raw payloads in opaque, epoch-tagged envelopes with a content
// checksum, and is the only package able to construct them. Downstream
// code verifies and unseals; it never builds envelopes by hand.
package membrane

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"

	"github.com/vitalview/vitalcore/pkg/domain"
)

// Sealed is an opaque envelope around one fetch result. The zero value is
// invalid; envelopes come only from Membrane.Seal.
type Sealed struct {
	key      domain.Key
	epoch    uint64
	payload  any
	checksum uint64
}

// DomainKey returns the vital-sign domain the envelope belongs to.
func (s *Sealed) DomainKey() domain.Key { return s.key }

// Epoch returns the per-fetch identifier. Epochs are distinct per fetch
// but carry no ordering; they exist so consumers can detect new data.
func (s *Sealed) Epoch() uint64 { return s.epoch }

// MorphismContext is the ambient display context sampled at projection
// time and handed to caller-supplied transforms.
type MorphismContext struct {
	Locale string
	Theme  string
	Extra  map[string]string
}

// ContextSource supplies the current morphism context. The dashboard
// shell updates it when the user switches locale or theme.
type ContextSource interface {
	MorphismContext() MorphismContext
}

// StaticContext is a ContextSource that always returns the same context.
type StaticContext MorphismContext

func (c StaticContext) MorphismContext() MorphismContext { return MorphismContext(c) }

// Membrane seals and unseals envelopes for one dashboard process.
type Membrane struct {
	mu     sync.RWMutex
	source ContextSource
}

// New creates a Membrane. A nil source yields an empty morphism context.
func New(source ContextSource) *Membrane {
	return &Membrane{source: source}
}

// SetContextSource swaps the ambient context source.
func (m *Membrane) SetContextSource(source ContextSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = source
}

// MorphismContext samples the ambient display context.
func (m *Membrane) MorphismContext() MorphismContext {
	m.mu.RLock()
	source := m.source
	m.mu.RUnlock()
	if source == nil {
		return MorphismContext{}
	}
	return source.MorphismContext()
}

// Seal wraps raw domain data in a fresh envelope. Each call produces a
// new epoch, so identical payloads sealed twice are still distinguishable.
func (m *Membrane) Seal(key domain.Key, raw any) (*Sealed, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrDomainUnknown, key)
	}

	sum, err := checksum(key, raw)
	if err != nil {
		return nil, fmt.Errorf("seal %s: %w", key, err)
	}

	return &Sealed{
		key:      key,
		epoch:    newEpoch(),
		payload:  raw,
		checksum: sum,
	}, nil
}

// VerifySeal recomputes the envelope checksum and reports whether the
// payload still matches it.
func (m *Membrane) VerifySeal(s *Sealed) bool {
	if s == nil {
		return false
	}
	sum, err := checksum(s.key, s.payload)
	if err != nil {
		return false
	}
	return sum == s.checksum
}

// Unseal verifies and returns the raw payload. It fails if the envelope
// is nil or no longer matches its checksum.
func (m *Membrane) Unseal(s *Sealed) (any, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil envelope", domain.ErrSealIntegrity)
	}
	if !m.VerifySeal(s) {
		return nil, fmt.Errorf("%w: domain %s epoch %d", domain.ErrSealIntegrity, s.key, s.epoch)
	}
	return s.payload, nil
}

// UnsealTrusted returns the payload without recomputing the checksum.
// Reserved for internal paths that just sealed the envelope themselves;
// everything else goes through Unseal.
func (m *Membrane) UnsealTrusted(s *Sealed) (any, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil envelope", domain.ErrSealIntegrity)
	}
	return s.payload, nil
}

// UnsealSafe is the non-failing variant of Unseal: integrity failures
// yield nil rather than an error.
func (m *Membrane) UnsealSafe(s *Sealed) any {
	raw, err := m.Unseal(s)
	if err != nil {
		return nil
	}
	return raw
}

// checksum hashes the canonical JSON form of the payload together with
// the domain key. JSON marshalling sorts map keys, so logically equal
// payloads hash equally.
func checksum(key domain.Key, raw any) (uint64, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return 0, fmt.Errorf("payload not sealable: %w", err)
	}
	h := fnv.New64a()
	h.Write([]byte(key))
	h.Write(data)
	return h.Sum64(), nil
}

// newEpoch derives a 64-bit fetch identifier from a random UUID.
func newEpoch() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}
