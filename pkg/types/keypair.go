package types

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// ErrInvalidKeypair is returned when key material has the wrong shape.
var ErrInvalidKeypair = errors.New("invalid keypair")

// Keypair is an ed25519 signing key together with its address.
type Keypair struct {
	private ed25519.PrivateKey
	pubkey  Pubkey
}

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return keypairFromPrivate(priv), nil
}

// MustNewKeypair generates a random keypair and panics if the system
// entropy source fails.
func MustNewKeypair() *Keypair {
	kp, err := NewKeypair()
	if err != nil {
		panic(err)
	}
	return kp
}

// KeypairFromSeed derives a keypair from a 32-byte ed25519 seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrInvalidKeypair, ed25519.SeedSize)
	}
	return keypairFromPrivate(ed25519.NewKeyFromSeed(seed)), nil
}

// KeypairFromSeedPhrase derives a keypair the way `solana-keygen recover`
// does for a bare seed phrase: PBKDF2-SHA512 over the phrase with salt
// "mnemonic"+passphrase, 2048 rounds, keeping the first 32 bytes as seed.
func KeypairFromSeedPhrase(phrase, passphrase string) (*Keypair, error) {
	phrase = strings.Join(strings.Fields(phrase), " ")
	if phrase == "" {
		return nil, fmt.Errorf("%w: empty seed phrase", ErrInvalidKeypair)
	}
	seed := pbkdf2.Key([]byte(phrase), []byte("mnemonic"+passphrase), 2048, 64, sha512.New)
	return KeypairFromSeed(seed[:ed25519.SeedSize])
}

// KeypairFromBytes loads the 64-byte secret||public form used by Solana
// keypair files.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeypair, ed25519.PrivateKeySize, len(b))
	}
	priv := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	copy(priv, b)
	kp := keypairFromPrivate(priv)
	if derived := ed25519.NewKeyFromSeed(priv.Seed()); !derived.Equal(priv) {
		return nil, fmt.Errorf("%w: public half does not match secret", ErrInvalidKeypair)
	}
	return kp, nil
}

// LoadKeypairFile reads a Solana CLI keypair file (a JSON array of 64 bytes).
func LoadKeypairFile(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}
	var b []byte
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
	}
	for _, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: byte value %d out of range", ErrInvalidKeypair, v)
		}
		b = append(b, byte(v))
	}
	return KeypairFromBytes(b)
}

// SaveKeypairFile writes the keypair in Solana CLI format.
func (k *Keypair) SaveKeypairFile(path string) error {
	ints := make([]int, len(k.private))
	for i, v := range k.private {
		ints[i] = int(v)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0600)
}

func keypairFromPrivate(priv ed25519.PrivateKey) *Keypair {
	kp := &Keypair{private: priv}
	copy(kp.pubkey[:], priv.Public().(ed25519.PublicKey))
	return kp
}

// Pubkey returns the keypair's address.
func (k *Keypair) Pubkey() Pubkey {
	return k.pubkey
}

// PrivateKey returns the underlying ed25519 key.
func (k *Keypair) PrivateKey() ed25519.PrivateKey {
	return k.private
}

// Sign signs message.
func (k *Keypair) Sign(message []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.private, message))
	return sig
}

// String returns the address; the secret is never printed.
func (k *Keypair) String() string {
	return k.pubkey.String()
}
