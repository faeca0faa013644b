package blockstore

import (
	"sync"

	"github.com/fortiblox/stratus-harness/pkg/types"
)

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu         sync.RWMutex
	txs        map[types.Signature]*Transaction
	byAddress  map[types.Pubkey][]SignatureInfo
	latestSlot uint64
	closed     bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txs:       make(map[types.Signature]*Transaction),
		byAddress: make(map[types.Pubkey][]SignatureInfo),
	}
}

func (s *MemoryStore) PutTransaction(txn *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	stored := *txn
	stored.AccountKeys = append([]types.Pubkey(nil), txn.AccountKeys...)
	s.txs[txn.Signature] = &stored

	info := signatureInfo(txn)
	for _, addr := range txn.AccountKeys {
		s.byAddress[addr] = append(s.byAddress[addr], info)
	}
	if txn.Slot > s.latestSlot {
		s.latestSlot = txn.Slot
	}
	return nil
}

func (s *MemoryStore) GetTransaction(signature types.Signature) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	txn, ok := s.txs[signature]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	copied := *txn
	return &copied, nil
}

func (s *MemoryStore) HasTransaction(signature types.Signature) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.txs[signature]
	return ok && !s.closed
}

func (s *MemoryStore) GetSignaturesForAddress(address types.Pubkey, opts *SignatureQueryOptions) ([]SignatureInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if opts == nil {
		opts = &SignatureQueryOptions{}
	}

	infos := s.byAddress[address]
	skipping := opts.Before != nil

	var results []SignatureInfo
	for i := len(infos) - 1; i >= 0; i-- {
		if skipping {
			if infos[i].Signature == *opts.Before {
				skipping = false
			}
			continue
		}
		results = append(results, infos[i])
		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}
	return results, nil
}

func (s *MemoryStore) GetLatestSlot() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestSlot
}

func (s *MemoryStore) GetStats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	return &Stats{
		LatestSlot:       s.latestSlot,
		TransactionCount: uint64(len(s.txs)),
	}, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
