// klingdrop is a command-line client for the nonce-verify, airdrop and
// distribute programs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/Klingon-tech/klingdrop/config"
	"github.com/Klingon-tech/klingdrop/internal/action"
	"github.com/Klingon-tech/klingdrop/internal/assembler"
	"github.com/Klingon-tech/klingdrop/internal/ledger"
	klog "github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/internal/rpcclient"
	"github.com/Klingon-tech/klingdrop/pkg/program/airdrop"
	"github.com/Klingon-tech/klingdrop/pkg/program/distribute"
	"github.com/Klingon-tech/klingdrop/pkg/program/nonceverify"
)

const version = "0.1.0"

func main() {
	fs, flags := config.NewFlagSet("klingdrop", false)
	fs.Usage = usage
	if err := flags.Parse(fs, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if flags.Help {
		usage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("klingdrop version " + version)
		os.Exit(0)
	}
	if len(flags.Args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fatal("%v", err)
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fatal("init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := flags.Args[0]
	cmdArgs := flags.Args[1:]

	switch cmd {
	case "keygen":
		cmdKeygen(cmdArgs, cfg)
	case "import":
		cmdImport(cmdArgs, cfg)
	case "list":
		cmdList(cfg)
	case "export":
		cmdExport(cmdArgs, cfg)
	case "address":
		cmdAddress(cmdArgs, cfg)
	case "balance":
		cmdBalance(ctx, cmdArgs, cfg)
	case "faucet":
		cmdFaucet(ctx, cmdArgs, cfg)
	case "nonce":
		cmdNonce(ctx, cmdArgs, cfg)
	case "sign-data":
		cmdSignData(cmdArgs, cfg)
	case "verify-sign":
		cmdVerifySign(cmdArgs)
	case "sign-claim":
		cmdSignClaim(ctx, cmdArgs, cfg)
	case "claim":
		cmdClaim(ctx, cmdArgs, cfg)
	case "distribute":
		cmdDistribute(ctx, cmdArgs, cfg)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: klingdrop [global flags] <command> [flags]

Global flags:
  --network <net>       localnet (default), devnet or mainnet
  --datadir <path>      Data directory (default: ~/.klingdrop)
  --config, -c <path>   Config file (default: <datadir>/<network>/klingdrop.conf)
  --rpc <url>           JSON-RPC endpoint
  --wallet <name>       Keystore wallet (default: default)
  --cu-price <n|none>   Compute unit price in micro-lamports, "none" disables estimation
  --cu-factor <f>       Multiplier on simulated compute units (default: 1.2)
  --prepad              Pad simulations with the maximum unit limit
  --skip-preflight      Submit without preflight simulation
  --log-level <level>   debug, info, warn, error (default: info)

Keys:
  keygen [--account <name>]                 Create the wallet or derive its next account
  import --mnemonic <words>                 Create the wallet from a mnemonic
  import --keypair <file> [--account <name>] Import a solana-keygen keypair file
  list                                      List wallet accounts
  export --account <name> --out <file>      Write an account as a solana-keygen keypair file

Ledger:
  address <kind> [flags]                    Derive a program address (see "address --help")
  balance <address>                         Show a lamport balance
  faucet <address> [--lamports <n>]         Request lamports from a local ledger
  nonce show --business-project <addr> --user <addr>
  nonce init --business-project <addr> [--account <name>]

Signing:
  sign-data --data <hex> [--account <name>]
  verify-sign --data <hex> --signature <sig> --pubkey <addr>
  sign-claim --airdrop-project <addr> --business-project <addr> --claimant <addr>
             --mint <addr> --amount <n> [--account <admin>]

Transactions (--mode instructions|message|transaction|confirm|finalize):
  claim --airdrop-project <addr> --business-project <addr> --mint <addr>
        --amount <n> --signature <sig> [--account <claimant>]
  distribute --project <addr> --mint <addr> --receivers <file.json>
             [--lookup-table <addr>] [--account <admin>]
`)
}

// programsFrom returns the configured deployments.
func programsFrom(cfg *config.Config) action.Programs {
	ids, err := cfg.Programs.Resolve()
	if err != nil {
		fatal("%v", err)
	}
	return action.Programs{
		NonceVerify: nonceverify.New(ids.NonceVerify),
		Airdrop:     airdrop.New(ids.Airdrop),
		Distribute:  distribute.New(ids.Distribute),
	}
}

// newBuilder wires a Builder against the configured endpoint.
func newBuilder(cfg *config.Config) *action.Builder {
	programs := programsFrom(cfg)
	client := rpcclient.NewWithTimeout(cfg.RPC.Endpoint, cfg.RPC.Timeout)
	reader := ledger.NewReader(client, programs.NonceVerify)
	asm := assembler.New(client, assembler.Config{
		CUFactor:       cfg.Budget.CUFactor,
		Prepad:         cfg.Budget.Prepad,
		PollInterval:   cfg.Confirm.Poll,
		ConfirmTimeout: cfg.Confirm.Timeout,
		SkipPreflight:  cfg.Confirm.SkipPreflight,
	})
	return action.New(reader, asm, programs)
}

// buildOptions returns the shared options for mode.
func buildOptions(cfg *config.Config, mode string) action.BuildOptions {
	m, err := assembler.ParseMode(mode)
	if err != nil {
		fatal("%v", err)
	}
	return action.BuildOptions{
		Mode:     m,
		CUPrice:  cfg.Budget.Price(),
		CUFactor: cfg.Budget.CUFactor,
		Prepad:   cfg.Budget.Prepad,
	}
}

// ── Password helper ─────────────────────────────────────────────────────

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return password, nil
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
