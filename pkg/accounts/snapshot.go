package accounts

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/stratus-harness/pkg/types"
)

// Snapshot file format version.
const snapshotVersion uint32 = 1

// snapshotMagic identifies a state snapshot file.
var snapshotMagic = []byte{'S', 'H', 'S', 'N'}

var (
	// ErrSnapshotNotFound is returned when a snapshot file doesn't exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotCorrupted is returned when a snapshot fails validation.
	ErrSnapshotCorrupted = errors.New("snapshot corrupted")
)

// SnapshotHeader describes a snapshot.
type SnapshotHeader struct {
	Version       uint32
	Slot          uint64
	AccountsCount uint64
	StateHash     types.Hash
}

// WriteSnapshot writes every account in db to path.
//
// File layout (everything after the magic is one zstd stream):
//   - Magic (4 bytes): "SHSN"
//   - Version (4), Slot (8), AccountsCount (8), StateHash (32)
//   - For each account: Pubkey (32), Size (4), serialized Account
func WriteSnapshot(db DB, path string) (*SnapshotHeader, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	// Entries are buffered so the header can carry the count and hash
	// without a second pass over the backend.
	var body bytes.Buffer
	header := &SnapshotHeader{Version: snapshotVersion, Slot: db.GetSlot()}
	err := db.IterateAccounts(func(pubkey types.Pubkey, account *Account) error {
		data := account.Serialize()
		body.Write(pubkey[:])
		var size [4]byte
		binary.LittleEndian.PutUint32(size[:], uint32(len(data)))
		body.Write(size[:])
		body.Write(data)
		header.AccountsCount++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	if header.StateHash, err = ComputeStateHash(db); err != nil {
		return nil, fmt.Errorf("state hash: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(snapshotMagic); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(file)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}

	var hdr [4 + 8 + 8 + 32]byte
	binary.LittleEndian.PutUint32(hdr[0:], header.Version)
	binary.LittleEndian.PutUint64(hdr[4:], header.Slot)
	binary.LittleEndian.PutUint64(hdr[12:], header.AccountsCount)
	copy(hdr[20:], header.StateHash[:])

	if _, err := enc.Write(hdr[:]); err != nil {
		enc.Close()
		return nil, err
	}
	if _, err := body.WriteTo(enc); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("flush zstd: %w", err)
	}
	return header, file.Sync()
}

// ReadSnapshot streams the accounts stored at path into fn.
func ReadSnapshot(path string, fn func(pubkey types.Pubkey, account *Account) error) (*SnapshotHeader, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(file, magic); err != nil || !bytes.Equal(magic, snapshotMagic) {
		return nil, fmt.Errorf("%w: bad magic", ErrSnapshotCorrupted)
	}

	dec, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	r := bufio.NewReader(dec)

	var hdr [4 + 8 + 8 + 32]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrSnapshotCorrupted, err)
	}
	header := &SnapshotHeader{
		Version:       binary.LittleEndian.Uint32(hdr[0:]),
		Slot:          binary.LittleEndian.Uint64(hdr[4:]),
		AccountsCount: binary.LittleEndian.Uint64(hdr[12:]),
	}
	copy(header.StateHash[:], hdr[20:])
	if header.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSnapshotCorrupted, header.Version)
	}

	for i := uint64(0); i < header.AccountsCount; i++ {
		var prefix [types.PubkeySize + 4]byte
		if _, err := io.ReadFull(r, prefix[:]); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrSnapshotCorrupted, i, err)
		}
		var pubkey types.Pubkey
		copy(pubkey[:], prefix[:types.PubkeySize])
		size := binary.LittleEndian.Uint32(prefix[types.PubkeySize:])
		if size > MaxAccountDataSize+57 {
			return nil, fmt.Errorf("%w: entry %d too large", ErrSnapshotCorrupted, i)
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrSnapshotCorrupted, i, err)
		}
		account, err := DeserializeAccount(data)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrSnapshotCorrupted, i, err)
		}
		if err := fn(pubkey, account); err != nil {
			return nil, err
		}
	}
	return header, nil
}

// LoadSnapshot replaces the contents of db with the snapshot at path and
// verifies the resulting state hash.
func LoadSnapshot(db DB, path string) (*SnapshotHeader, error) {
	if err := Clear(db); err != nil {
		return nil, fmt.Errorf("clear accounts: %w", err)
	}

	var batch []AccountEntry
	header, err := ReadSnapshot(path, func(pubkey types.Pubkey, account *Account) error {
		batch = append(batch, AccountEntry{Pubkey: pubkey, Account: account})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := db.ApplyBatch(batch); err != nil {
		return nil, fmt.Errorf("write accounts: %w", err)
	}
	if err := db.SetSlot(header.Slot); err != nil {
		return nil, err
	}

	got, err := ComputeStateHash(db)
	if err != nil {
		return nil, err
	}
	if got != header.StateHash {
		return nil, fmt.Errorf("%w: state hash mismatch", ErrSnapshotCorrupted)
	}
	return header, db.Commit()
}
