// stratus-inspect prints the header and accounts of a ledger snapshot
// written by ledger.SaveSnapshot.
//
//	stratus-inspect [flags] <snapshot>
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/fortiblox/stratus-harness/pkg/anchor"
	"github.com/fortiblox/stratus-harness/pkg/logging"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stratus-inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		owner       = fs.String("owner", "", "Only list accounts owned by this program")
		account     = fs.String("account", "", "Only list this account")
		limit       = fs.Int("limit", 50, "Maximum accounts to list (0 = all)")
		jsonOut     = fs.Bool("json", false, "Print the report as JSON")
		verify      = fs.Bool("verify", false, "Load the snapshot and check its state hash")
		idlPath     = fs.String("idl", "", "Anchor IDL used to name program accounts")
		logLevel    = fs.String("log-level", "warn", "Log level: debug, info, warn, error")
		logFormat   = fs.String("log-format", "console", "Log format: console, json")
		showVersion = fs.Bool("version", false, "Print version and exit")
	)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: stratus-inspect [flags] <snapshot>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintf(stdout, "stratus-inspect %s (%s)\n", Version, GitCommit)
		return 0
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = *logLevel
	logCfg.Format = *logFormat
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	defer logger.Sync()

	opts := options{limit: *limit, verify: *verify}
	if opts.owner, err = parseKey(*owner); err != nil {
		logger.Error("invalid -owner", zap.Error(err))
		return 2
	}
	if opts.account, err = parseKey(*account); err != nil {
		logger.Error("invalid -account", zap.Error(err))
		return 2
	}
	if *idlPath != "" {
		if opts.idl, err = anchor.LoadIDL(*idlPath); err != nil {
			logger.Error("load IDL", zap.String("path", *idlPath), zap.Error(err))
			return 1
		}
	}

	r, err := inspect(fs.Arg(0), opts, logger)
	if err != nil {
		logger.Error("inspect snapshot", zap.String("path", fs.Arg(0)), zap.Error(err))
		return 1
	}

	if *jsonOut {
		err = r.writeJSON(stdout)
	} else {
		err = r.writeText(stdout)
	}
	if err != nil {
		logger.Error("write report", zap.Error(err))
		return 1
	}
	return 0
}

func parseKey(s string) (*types.Pubkey, error) {
	if s == "" {
		return nil, nil
	}
	key, err := types.PubkeyFromBase58(s)
	if err != nil {
		return nil, err
	}
	return &key, nil
}
