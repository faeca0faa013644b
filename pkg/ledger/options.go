package ledger

import (
	"go.uber.org/zap"

	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/blockstore"
	"github.com/fortiblox/stratus-harness/pkg/svm"
)

type options struct {
	db       accounts.DB
	history  blockstore.Store
	logger   *zap.Logger
	svm      svm.Config
	builtins bool
}

func defaultOptions() options {
	return options{
		logger:   zap.NewNop(),
		svm:      svm.DefaultConfig(),
		builtins: true,
	}
}

// Option configures a Ledger.
type Option func(*options)

// WithAccountsDB stores accounts in db instead of memory. The ledger
// closes db when it is closed.
func WithAccountsDB(db accounts.DB) Option {
	return func(o *options) {
		o.db = db
	}
}

// WithHistory records executed transactions in store instead of memory.
func WithHistory(store blockstore.Store) Option {
	return func(o *options) {
		o.history = store
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSigVerify toggles ed25519 signature verification.
func WithSigVerify(enabled bool) Option {
	return func(o *options) {
		o.svm.SigVerify = enabled
	}
}

// WithBlockhashCheck toggles rejection of unknown recent blockhashes.
func WithBlockhashCheck(enabled bool) Option {
	return func(o *options) {
		o.svm.BlockhashCheck = enabled
	}
}

// WithComputeLimit sets the compute budget of transactions that do not
// request one.
func WithComputeLimit(units uint64) Option {
	return func(o *options) {
		o.svm.ComputeLimit = units
	}
}

func WithLamportsPerSignature(lamports uint64) Option {
	return func(o *options) {
		o.svm.LamportsPerSignature = lamports
	}
}

// WithBuiltins toggles registration of the System, Token, Associated
// Token and Compute Budget programs. The System Program is always present.
func WithBuiltins(enabled bool) Option {
	return func(o *options) {
		o.builtins = enabled
	}
}
