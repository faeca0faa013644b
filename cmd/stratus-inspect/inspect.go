package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/anchor"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/token"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// Account kinds recognised from their data.
const (
	kindProgram      = "program"
	kindMint         = "mint"
	kindTokenAccount = "token_account"
)

type options struct {
	owner   *types.Pubkey
	account *types.Pubkey
	limit   int
	verify  bool
	idl     *anchor.IDL
}

type accountView struct {
	Pubkey     string `json:"pubkey"`
	Owner      string `json:"owner"`
	Lamports   uint64 `json:"lamports"`
	DataLen    int    `json:"data_len"`
	Executable bool   `json:"executable"`
	Kind       string `json:"kind,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

type report struct {
	Path          string        `json:"path"`
	Version       uint32        `json:"version"`
	Slot          uint64        `json:"slot"`
	AccountsCount uint64        `json:"accounts_count"`
	StateHash     string        `json:"state_hash"`
	Verified      bool          `json:"verified"`
	Matched       int           `json:"matched"`
	Accounts      []accountView `json:"accounts"`
}

// inspect reads the snapshot at path and lists the accounts opts selects.
func inspect(path string, opts options, logger *zap.Logger) (*report, error) {
	r := &report{Path: path}

	header, err := accounts.ReadSnapshot(path, func(pubkey types.Pubkey, acc *accounts.Account) error {
		if opts.owner != nil && acc.Owner != *opts.owner {
			return nil
		}
		if opts.account != nil && pubkey != *opts.account {
			return nil
		}
		r.Matched++
		if opts.limit > 0 && len(r.Accounts) >= opts.limit {
			return nil
		}
		r.Accounts = append(r.Accounts, describe(pubkey, acc, opts.idl))
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.Version = header.Version
	r.Slot = header.Slot
	r.AccountsCount = header.AccountsCount
	r.StateHash = header.StateHash.String()
	logger.Debug("snapshot read",
		zap.String("path", path),
		zap.Uint64("slot", header.Slot),
		zap.Uint64("accounts", header.AccountsCount),
		zap.Int("matched", r.Matched),
	)

	if opts.verify {
		db := accounts.NewMemoryDB()
		defer db.Close()
		if _, err := accounts.LoadSnapshot(db, path); err != nil {
			return nil, fmt.Errorf("verify snapshot: %w", err)
		}
		r.Verified = true
		logger.Debug("snapshot verified", zap.String("state_hash", r.StateHash))
	}
	return r, nil
}

func describe(pubkey types.Pubkey, acc *accounts.Account, idl *anchor.IDL) accountView {
	v := accountView{
		Pubkey:     pubkey.String(),
		Owner:      acc.Owner.String(),
		Lamports:   acc.Lamports,
		DataLen:    len(acc.Data),
		Executable: acc.Executable,
	}

	switch {
	case acc.Executable:
		v.Kind = kindProgram
	case acc.Owner == token.ProgramID && len(acc.Data) == token.MintSize:
		var mint token.Mint
		if mint.Unmarshal(acc.Data) {
			v.Kind = kindMint
			v.Detail = fmt.Sprintf("supply=%d decimals=%d", mint.Supply, mint.Decimals)
		}
	case acc.Owner == token.ProgramID && len(acc.Data) == token.AccountSize:
		var ta token.Account
		if ta.Unmarshal(acc.Data) {
			v.Kind = kindTokenAccount
			v.Detail = fmt.Sprintf("mint=%s owner=%s amount=%d", ta.Mint, ta.Owner, ta.Amount)
		}
	case idl != nil && len(acc.Data) >= anchor.DiscriminatorSize:
		for _, def := range idl.Accounts {
			disc, ok := idl.AccountDiscriminator(def.Name)
			if ok && disc.Matches(acc.Data) {
				v.Kind = def.Name
				v.Detail = "discriminator=" + disc.String()
				break
			}
		}
	}
	return v
}

func (r *report) writeJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func (r *report) writeText(w io.Writer) error {
	fmt.Fprintf(w, "Snapshot:   %s\n", r.Path)
	fmt.Fprintf(w, "Version:    %d\n", r.Version)
	fmt.Fprintf(w, "Slot:       %d\n", r.Slot)
	fmt.Fprintf(w, "Accounts:   %d (%d matched)\n", r.AccountsCount, r.Matched)
	fmt.Fprintf(w, "State hash: %s", r.StateHash)
	if r.Verified {
		fmt.Fprint(w, " (verified)")
	}
	fmt.Fprint(w, "\n\n")

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PUBKEY\tOWNER\tLAMPORTS\tDATA\tKIND\tDETAIL")
	for _, a := range r.Accounts {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", a.Pubkey, a.Owner, a.Lamports, a.DataLen, a.Kind, a.Detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if hidden := r.Matched - len(r.Accounts); hidden > 0 {
		fmt.Fprintf(w, "... %d more\n", hidden)
	}
	return nil
}
