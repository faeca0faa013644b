package harness

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fortiblox/stratus-harness/pkg/anchor"
	"github.com/fortiblox/stratus-harness/pkg/ledger"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// ErrNoPrograms is returned by Build when no program was deployed.
var ErrNoPrograms = errors.New("no programs deployed")

type deployment struct {
	id   types.Pubkey
	prog svm.Program
}

// Environment assembles a ledger, its programs and a Context.
type Environment struct {
	cfg        Config
	logger     *zap.Logger
	programs   []deployment
	primary    *types.Pubkey
	idl        *anchor.IDL
	ledgerOpts []ledger.Option
}

// NewEnvironment starts from DefaultConfig with no programs.
func NewEnvironment() *Environment {
	return &Environment{cfg: DefaultConfig()}
}

// DeployProgram registers prog under id. The first program deployed is
// the primary one unless WithPrimary names another.
func (e *Environment) DeployProgram(id types.Pubkey, prog svm.Program) *Environment {
	e.programs = append(e.programs, deployment{id: id, prog: prog})
	return e
}

// WithPrimary deploys prog under id and makes it the program under test.
func (e *Environment) WithPrimary(id types.Pubkey, prog svm.Program) *Environment {
	e.DeployProgram(id, prog)
	e.primary = &id
	return e
}

// WithIDL makes the context's builders use idl.
func (e *Environment) WithIDL(idl *anchor.IDL) *Environment {
	e.idl = idl
	return e
}

// WithConfig replaces the config.
func (e *Environment) WithConfig(cfg Config) *Environment {
	e.cfg = cfg
	return e
}

// WithLogger sets the logger, overriding the config's log section.
func (e *Environment) WithLogger(logger *zap.Logger) *Environment {
	e.logger = logger
	return e
}

// WithLedgerOptions passes extra options to ledger.New.
func (e *Environment) WithLedgerOptions(opts ...ledger.Option) *Environment {
	e.ledgerOpts = append(e.ledgerOpts, opts...)
	return e
}

// Build opens the ledger, deploys the programs and funds the payer.
func (e *Environment) Build() (*Context, error) {
	if len(e.programs) == 0 {
		return nil, ErrNoPrograms
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	logger := e.logger
	if logger == nil {
		var err error
		if logger, err = e.cfg.Logger(); err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
	}

	payer, err := e.cfg.Payer()
	if err != nil {
		return nil, fmt.Errorf("load payer: %w", err)
	}

	l, err := e.cfg.OpenLedger(logger, e.ledgerOpts...)
	if err != nil {
		return nil, err
	}

	for _, d := range e.programs {
		if err := l.AddProgram(d.id, d.prog); err != nil {
			l.Close()
			return nil, fmt.Errorf("deploy program %s: %w", d.id, err)
		}
		logger.Debug("program deployed", zap.Stringer("program_id", d.id))
	}

	primary := e.programs[0].id
	if e.primary != nil {
		primary = *e.primary
	}

	ctx, err := NewContextWithPayer(l, primary, payer, e.cfg.PayerLamports)
	if err != nil {
		l.Close()
		return nil, err
	}
	ctx.log = logger
	if e.idl != nil {
		ctx.SetIDL(e.idl)
	}
	return ctx, nil
}

// NewWithProgram builds a default environment with prog deployed under id.
func NewWithProgram(id types.Pubkey, prog svm.Program) (*Context, error) {
	return NewEnvironment().WithPrimary(id, prog).Build()
}
