// Package store persists the census through a single bbolt file:
// an append-only citizen store keyed by dense leaf index, a uniqueness
// index from commitment to leaf index, the consumed-nullifier registry,
// and the scope state record.
//
// bbolt serializes update transactions, which is what makes TryConsume
// a true atomic compare-and-set: the absence check and the insert run
// inside one transaction, so two racers for the same nullifier cannot
// both win.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"go.etcd.io/bbolt"
)

var (
	bucketCitizens    = []byte("citizens")
	bucketCommitments = []byte("commitments")
	bucketNullifiers  = []byte("nullifiers")
	bucketState       = []byte("state")

	keyScope = []byte("scope")
)

var (
	ErrDuplicateCommitment = errors.New("store: commitment already registered")
	ErrCitizenNotFound     = errors.New("store: citizen not found")
)

// CitizenRecord is immutable once written. Commitment is the canonical
// big-endian 32-byte field encoding; LeafIndex is dense from 0 in
// registration order.
type CitizenRecord struct {
	Commitment   []byte
	LeafIndex    uint32
	Name         string
	RegisteredAt uint64
}

// ScopeState mirrors the on-ledger census state account: the scope
// advances monotonically and the population counter resets with it.
type ScopeState struct {
	Scope      uint64
	StartedAt  uint64
	Population uint64
}

type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketCitizens, bucketCommitments, bucketNullifiers, bucketState} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AppendCitizen assigns the next dense leaf index, enforces commitment
// uniqueness and writes the record, all in one transaction.
func (s *Store) AppendCitizen(commitment []byte, name string, now uint64) (*CitizenRecord, error) {
	if len(commitment) != 32 {
		return nil, fmt.Errorf("store: commitment must be 32 bytes, got %d", len(commitment))
	}

	var rec *CitizenRecord
	err := s.db.Update(func(tx *bbolt.Tx) error {
		commits := tx.Bucket(bucketCommitments)
		if commits.Get(commitment) != nil {
			return ErrDuplicateCommitment
		}

		citizens := tx.Bucket(bucketCitizens)
		seq, err := citizens.NextSequence()
		if err != nil {
			return err
		}
		idx := uint32(seq - 1)

		rec = &CitizenRecord{
			Commitment:   append([]byte(nil), commitment...),
			LeafIndex:    idx,
			Name:         name,
			RegisteredAt: now,
		}
		enc, err := rlp.EncodeToBytes(rec)
		if err != nil {
			return err
		}
		if err := citizens.Put(u32be(idx), enc); err != nil {
			return err
		}
		return commits.Put(commitment, u32be(idx))
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CitizenByIndex returns the record at the given leaf index.
func (s *Store) CitizenByIndex(idx uint32) (*CitizenRecord, error) {
	var rec *CitizenRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketCitizens).Get(u32be(idx))
		if v == nil {
			return ErrCitizenNotFound
		}
		rec = new(CitizenRecord)
		return rlp.DecodeBytes(v, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CitizenByCommitment looks a record up through the uniqueness index.
func (s *Store) CitizenByCommitment(commitment []byte) (*CitizenRecord, error) {
	var idx uint32
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketCommitments).Get(commitment)
		if v == nil {
			return ErrCitizenNotFound
		}
		idx = binary.BigEndian.Uint32(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.CitizenByIndex(idx)
}

// Citizens lists records in leaf-index order, capped by limit.
func (s *Store) Citizens(offset uint32, limit int) ([]*CitizenRecord, error) {
	var recs []*CitizenRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketCitizens).Cursor()
		for k, v := c.Seek(u32be(offset)); k != nil && len(recs) < limit; k, v = c.Next() {
			rec := new(CitizenRecord)
			if err := rlp.DecodeBytes(v, rec); err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// CitizenCount returns the number of registered citizens.
func (s *Store) CitizenCount() (uint64, error) {
	var n uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketCitizens).Sequence()
		return nil
	})
	return n, err
}

// Commitments returns the ordered leaf sequence for rebuilding the
// Merkle tree at startup.
func (s *Store) Commitments() ([][]byte, error) {
	var leaves [][]byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCitizens).ForEach(func(k, v []byte) error {
			rec := new(CitizenRecord)
			if err := rlp.DecodeBytes(v, rec); err != nil {
				return err
			}
			leaves = append(leaves, rec.Commitment)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return leaves, nil
}

// nullifierKey is externalNullifier (scope) concatenated with the
// nullifier hash.
func nullifierKey(scope uint64, nullifierHash []byte) []byte {
	k := make([]byte, 8+len(nullifierHash))
	binary.BigEndian.PutUint64(k[:8], scope)
	copy(k[8:], nullifierHash)
	return k
}

// TryConsume atomically transitions (scope, nullifierHash) from
// unconsumed to consumed and bumps the population counter for the
// current scope. Returns false without side effects when the pair was
// already consumed. This is the single point of truth for replay
// protection; Consumed exists only as a cheap read-side hint.
func (s *Store) TryConsume(scope uint64, nullifierHash []byte, now uint64) (bool, error) {
	fresh := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		nulls := tx.Bucket(bucketNullifiers)
		key := nullifierKey(scope, nullifierHash)
		if nulls.Get(key) != nil {
			return nil
		}
		if err := nulls.Put(key, u64be(now)); err != nil {
			return err
		}

		state := tx.Bucket(bucketState)
		ss, err := readScopeState(state)
		if err != nil {
			return err
		}
		if ss != nil && ss.Scope == scope {
			ss.Population++
			if err := writeScopeState(state, ss); err != nil {
				return err
			}
		}
		fresh = true
		return nil
	})
	return fresh, err
}

// Consumed reports whether (scope, nullifierHash) is already spent.
func (s *Store) Consumed(scope uint64, nullifierHash []byte) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketNullifiers).Get(nullifierKey(scope, nullifierHash)) != nil
		return nil
	})
	return found, err
}

// ConsumedCount returns the number of consumed nullifiers across all scopes.
func (s *Store) ConsumedCount() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketNullifiers).Stats().KeyN
		return nil
	})
	return n, err
}

// CurrentScope returns the scope state, initializing scope 0 on first use.
func (s *Store) CurrentScope(now uint64) (*ScopeState, error) {
	var ss *ScopeState
	err := s.db.Update(func(tx *bbolt.Tx) error {
		state := tx.Bucket(bucketState)
		cur, err := readScopeState(state)
		if err != nil {
			return err
		}
		if cur == nil {
			cur = &ScopeState{Scope: 0, StartedAt: now}
			if err := writeScopeState(state, cur); err != nil {
				return err
			}
		}
		ss = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ss, nil
}

// AdvanceScope bumps the scope and resets the population counter.
// Scopes are never reused; the old final population is returned.
func (s *Store) AdvanceScope(now uint64) (old *ScopeState, cur *ScopeState, err error) {
	err = s.db.Update(func(tx *bbolt.Tx) error {
		state := tx.Bucket(bucketState)
		prev, err := readScopeState(state)
		if err != nil {
			return err
		}
		if prev == nil {
			prev = &ScopeState{Scope: 0, StartedAt: now}
		}
		next := &ScopeState{Scope: prev.Scope + 1, StartedAt: now}
		if err := writeScopeState(state, next); err != nil {
			return err
		}
		old, cur = prev, next
		return nil
	})
	return old, cur, err
}

func readScopeState(b *bbolt.Bucket) (*ScopeState, error) {
	v := b.Get(keyScope)
	if v == nil {
		return nil, nil
	}
	ss := new(ScopeState)
	if err := rlp.DecodeBytes(v, ss); err != nil {
		return nil, err
	}
	return ss, nil
}

func writeScopeState(b *bbolt.Bucket, ss *ScopeState) error {
	enc, err := rlp.EncodeToBytes(ss)
	if err != nil {
		return err
	}
	return b.Put(keyScope, enc)
}

func u32be(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func u64be(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
