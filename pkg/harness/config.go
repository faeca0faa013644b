package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/blockstore"
	"github.com/fortiblox/stratus-harness/pkg/ledger"
	"github.com/fortiblox/stratus-harness/pkg/logging"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// Accounts backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// ErrInvalidConfig wraps every validation failure of a Config.
var ErrInvalidConfig = errors.New("invalid harness config")

// Config describes the ledger and payer of an environment. It is usually
// loaded from YAML:
//
//	payer_lamports: 10000000000
//	compute_limit: 400000
//	accounts:
//	  backend: badger
//	  path: /tmp/harness/accounts
//	history:
//	  path: /tmp/harness/history.db
//	log:
//	  format: json
//	  level: debug
type Config struct {
	PayerLamports   uint64 `yaml:"payer_lamports"`
	PayerSeedPhrase string `yaml:"payer_seed_phrase"`
	PayerPassphrase string `yaml:"payer_passphrase"`
	PayerKeypair    string `yaml:"payer_keypair"` // Solana CLI keypair file

	ComputeLimit         uint64 `yaml:"compute_limit"`
	SigVerify            bool   `yaml:"sig_verify"`
	BlockhashCheck       bool   `yaml:"blockhash_check"`
	LamportsPerSignature uint64 `yaml:"lamports_per_signature"`

	Accounts AccountsConfig `yaml:"accounts"`
	History  HistoryConfig  `yaml:"history"`

	// Log enables logging; the environment is silent without it.
	Log *logging.Config `yaml:"log"`
}

// AccountsConfig selects where accounts are stored.
type AccountsConfig struct {
	Backend string `yaml:"backend"`
	// Path is the badger directory. Empty keeps badger in memory.
	Path       string `yaml:"path"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// HistoryConfig selects where executed transactions are recorded.
type HistoryConfig struct {
	// Path is a bbolt file. Empty keeps history in memory.
	Path string `yaml:"path"`
}

// DefaultConfig is a memory-backed ledger with every check enabled and a
// payer holding DefaultPayerLamports.
func DefaultConfig() Config {
	return Config{
		PayerLamports:        DefaultPayerLamports,
		SigVerify:            true,
		BlockhashCheck:       true,
		LamportsPerSignature: svm.DefaultLamportsPerSignature,
		Accounts: AccountsConfig{
			Backend: BackendMemory,
		},
	}
}

// LoadConfig reads a YAML config file. Unset keys keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over DefaultConfig. Unknown keys are errors.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config for contradictions.
func (c Config) Validate() error {
	switch strings.ToLower(c.Accounts.Backend) {
	case "", BackendMemory:
		if c.Accounts.Path != "" {
			return fmt.Errorf("%w: accounts.path requires the %s backend", ErrInvalidConfig, BackendBadger)
		}
	case BackendBadger:
	default:
		return fmt.Errorf("%w: unknown accounts backend %q", ErrInvalidConfig, c.Accounts.Backend)
	}
	if c.PayerSeedPhrase != "" && c.PayerKeypair != "" {
		return fmt.Errorf("%w: payer_seed_phrase and payer_keypair are exclusive", ErrInvalidConfig)
	}
	if c.ComputeLimit > svm.CUMax {
		return fmt.Errorf("%w: compute_limit %d exceeds %d", ErrInvalidConfig, c.ComputeLimit, svm.CUMax)
	}
	return nil
}

// Payer returns the configured payer keypair, or a fresh one.
func (c Config) Payer() (*types.Keypair, error) {
	switch {
	case c.PayerSeedPhrase != "":
		return types.KeypairFromSeedPhrase(c.PayerSeedPhrase, c.PayerPassphrase)
	case c.PayerKeypair != "":
		return types.LoadKeypairFile(c.PayerKeypair)
	default:
		return types.NewKeypair()
	}
}

// Logger builds the configured logger, or a no-op one.
func (c Config) Logger() (*zap.Logger, error) {
	if c.Log == nil {
		return zap.NewNop(), nil
	}
	return logging.New(*c.Log)
}

// OpenLedger opens the storage the config names and creates a ledger on
// it. Closing the ledger closes the storage.
func (c Config) OpenLedger(logger *zap.Logger, extra ...ledger.Option) (*ledger.Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []ledger.Option{
		ledger.WithLogger(logger),
		ledger.WithSigVerify(c.SigVerify),
		ledger.WithBlockhashCheck(c.BlockhashCheck),
		ledger.WithComputeLimit(c.ComputeLimit),
		ledger.WithLamportsPerSignature(c.LamportsPerSignature),
	}

	var (
		db      accounts.DB
		history blockstore.Store
	)
	if strings.ToLower(c.Accounts.Backend) == BackendBadger {
		badgerCfg := accounts.InMemoryBadgerDBConfig()
		if c.Accounts.Path != "" {
			badgerCfg = accounts.DefaultBadgerDBConfig(c.Accounts.Path)
		}
		badgerCfg.SyncWrites = c.Accounts.SyncWrites
		badgerCfg.Logger = logging.NewBadgerLogger(logger)

		bdb, err := accounts.NewBadgerDB(badgerCfg)
		if err != nil {
			return nil, fmt.Errorf("open accounts: %w", err)
		}
		db = bdb
		opts = append(opts, ledger.WithAccountsDB(db))
	}

	if c.History.Path != "" {
		store, err := blockstore.Open(blockstore.DefaultConfig(c.History.Path))
		if err != nil {
			if db != nil {
				db.Close()
			}
			return nil, fmt.Errorf("open history: %w", err)
		}
		history = store
		opts = append(opts, ledger.WithHistory(store))
	}

	l, err := ledger.New(append(opts, extra...)...)
	if err != nil {
		if db != nil {
			db.Close()
		}
		if history != nil {
			history.Close()
		}
		return nil, err
	}
	logger.Debug("ledger opened",
		zap.String("accounts_backend", c.Accounts.Backend),
		zap.String("accounts_path", c.Accounts.Path),
		zap.String("history_path", c.History.Path),
	)
	return l, nil
}
