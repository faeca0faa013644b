package blockstore

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fortiblox/stratus-harness/pkg/types"
)

var (
	// ErrTransactionNotFound is returned when a transaction doesn't exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrClosed is returned when operating on a closed blockstore.
	ErrClosed = errors.New("blockstore closed")
)

// Bucket names for BoltDB.
var (
	// bucketTxBySignature stores transactions keyed by signature.
	bucketTxBySignature = []byte("tx_by_sig")

	// bucketAddressSignatures indexes signatures by address+sequence.
	bucketAddressSignatures = []byte("addr_sigs")

	// bucketMetadata stores blockstore metadata.
	bucketMetadata = []byte("metadata")
)

// Metadata keys.
var (
	keyLatestSlot       = []byte("latest_slot")
	keyTransactionCount = []byte("transaction_count")
)

// Config holds blockstore configuration options.
type Config struct {
	// Path is the file path of the database.
	Path string

	// NoSync disables fsync after each write (faster but less durable).
	NoSync bool

	// ReadOnly opens the database in read-only mode.
	ReadOnly bool
}

// DefaultConfig returns the default blockstore configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:     path,
		NoSync:   true,
		ReadOnly: false,
	}
}

// Store is the transaction history interface.
type Store interface {
	// PutTransaction records an executed transaction and indexes its accounts.
	PutTransaction(txn *Transaction) error
	GetTransaction(signature types.Signature) (*Transaction, error)
	HasTransaction(signature types.Signature) bool

	// GetSignaturesForAddress returns the signatures of transactions that
	// referenced address, newest first.
	GetSignaturesForAddress(address types.Pubkey, opts *SignatureQueryOptions) ([]SignatureInfo, error)

	GetLatestSlot() uint64
	GetStats() (*Stats, error)
	Close() error
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db     *bolt.DB
	config Config

	// Cached values for fast reads.
	mu               sync.RWMutex
	latestSlot       uint64
	transactionCount uint64

	closed bool
}

// Open creates or opens a blockstore at the given path.
func Open(config Config) (*BoltStore, error) {
	// Ensure directory exists.
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	opts := &bolt.Options{
		Timeout:  5 * time.Second,
		NoSync:   config.NoSync,
		ReadOnly: config.ReadOnly,
	}

	db, err := bolt.Open(config.Path, 0600, opts)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &BoltStore{
		db:     db,
		config: config,
	}

	// Initialize buckets (skip in read-only mode).
	if !config.ReadOnly {
		if err := store.initBuckets(); err != nil {
			db.Close()
			return nil, fmt.Errorf("init buckets: %w", err)
		}
	}

	if err := store.loadCachedValues(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load cached values: %w", err)
	}

	return store, nil
}

// initBuckets creates all required buckets.
func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketTxBySignature,
			bucketAddressSignatures,
			bucketMetadata,
		}
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// loadCachedValues loads frequently-accessed values into memory.
func (s *BoltStore) loadCachedValues() error {
	return s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMetadata)
		if meta == nil {
			return nil // Empty database, no values to load.
		}

		if v := meta.Get(keyLatestSlot); v != nil {
			s.latestSlot = DecodeSlotKey(v)
		}
		if v := meta.Get(keyTransactionCount); v != nil {
			s.transactionCount = DecodeSlotKey(v)
		}
		return nil
	})
}

func (s *BoltStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// PutTransaction stores a transaction and indexes it by every account it references.
func (s *BoltStore) PutTransaction(txn *Transaction) error {
	if s.isClosed() {
		return ErrClosed
	}

	var txBuf bytes.Buffer
	if err := gob.NewEncoder(&txBuf).Encode(txn); err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}

	var infoBuf bytes.Buffer
	info := signatureInfo(txn)
	if err := gob.NewEncoder(&infoBuf).Encode(&info); err != nil {
		return fmt.Errorf("encode sig info: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.transactionCount + 1
	latest := s.latestSlot
	if txn.Slot > latest {
		latest = txn.Slot
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		txBySig := tx.Bucket(bucketTxBySignature)
		if err := txBySig.Put(EncodeSignatureKey(txn.Signature), txBuf.Bytes()); err != nil {
			return err
		}

		addrSigs := tx.Bucket(bucketAddressSignatures)
		for _, addr := range txn.AccountKeys {
			if err := addrSigs.Put(EncodeAddressKey(addr, seq), infoBuf.Bytes()); err != nil {
				return err
			}
		}

		metadata := tx.Bucket(bucketMetadata)
		if err := metadata.Put(keyLatestSlot, EncodeSlotKey(latest)); err != nil {
			return err
		}
		return metadata.Put(keyTransactionCount, EncodeSlotKey(seq))
	})
	if err != nil {
		return err
	}

	s.transactionCount = seq
	s.latestSlot = latest
	return nil
}

// GetTransaction retrieves a transaction by signature.
func (s *BoltStore) GetTransaction(signature types.Signature) (*Transaction, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	var txn Transaction
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTxBySignature)
		if b == nil {
			return ErrTransactionNotFound
		}

		data := b.Get(EncodeSignatureKey(signature))
		if data == nil {
			return ErrTransactionNotFound
		}

		return gob.NewDecoder(bytes.NewReader(data)).Decode(&txn)
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// HasTransaction checks if a transaction was recorded.
func (s *BoltStore) HasTransaction(signature types.Signature) bool {
	if s.isClosed() {
		return false
	}

	exists := false
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTxBySignature)
		if b != nil && b.Get(EncodeSignatureKey(signature)) != nil {
			exists = true
		}
		return nil
	})
	return exists
}

// GetSignaturesForAddress returns signatures for transactions involving an address.
func (s *BoltStore) GetSignaturesForAddress(address types.Pubkey, opts *SignatureQueryOptions) ([]SignatureInfo, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if opts == nil {
		opts = &SignatureQueryOptions{}
	}

	var results []SignatureInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAddressSignatures)
		if b == nil {
			return nil
		}

		// Walk backwards from the highest sequence for this address.
		c := b.Cursor()
		k, v := c.Seek(EncodeAddressKey(address, math.MaxUint64))
		if k == nil {
			k, v = c.Last()
		} else if !bytes.Equal(k, EncodeAddressKey(address, math.MaxUint64)) {
			k, v = c.Prev()
		}

		skipping := opts.Before != nil
		for ; k != nil && bytes.HasPrefix(k, address[:]); k, v = c.Prev() {
			var info SignatureInfo
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&info); err != nil {
				return fmt.Errorf("decode sig info: %w", err)
			}
			if skipping {
				if info.Signature == *opts.Before {
					skipping = false
				}
				continue
			}

			results = append(results, info)
			if opts.Limit > 0 && len(results) >= opts.Limit {
				break
			}
		}
		return nil
	})
	return results, err
}

// GetLatestSlot returns the most recent slot a transaction was recorded in.
func (s *BoltStore) GetLatestSlot() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestSlot
}

// GetStats returns blockstore statistics.
func (s *BoltStore) GetStats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	return &Stats{
		LatestSlot:       s.latestSlot,
		TransactionCount: s.transactionCount,
	}, nil
}

// Sync forces a sync of the database to disk.
func (s *BoltStore) Sync() error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.db.Sync()
}

// Close closes the blockstore.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
