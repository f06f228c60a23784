// Klingdrop local ledger daemon. It runs the nonce-verify, airdrop and
// distribute programs behind a Solana-compatible JSON-RPC endpoint.
//
// Usage:
//
//	klingdrop-localnet [--port=8899 --db=memory ...] Run ledger
//	klingdrop-localnet --help                        Show help
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Klingon-tech/klingdrop/config"
	"github.com/Klingon-tech/klingdrop/internal/node"
)

const version = "0.1.0"

func main() {
	fs, flags := config.NewFlagSet("klingdrop-localnet", true)
	fs.Usage = printUsage
	if err := flags.Parse(fs, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("klingdrop-localnet version " + version)
		os.Exit(0)
	}
	if len(flags.Args) > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected argument %q\n", flags.Args[0])
		os.Exit(1)
	}
	if flags.Network == "" {
		flags.Network = string(config.Localnet)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		n.Stop()
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	n.Stop()
}

func printUsage() {
	fmt.Print(`Klingdrop local ledger - nonce-verify, airdrop and distribute programs
behind a Solana JSON-RPC endpoint

Usage:
  klingdrop-localnet [options]

Core Options:
  --datadir         Data directory (default: ~/.klingdrop)
  --config, -c      Config file path (default: <datadir>/klingdrop.conf)

Ledger Options:
  --listen          RPC listen address (default: 127.0.0.1)
  --port            RPC port (default: 8899)
  --allowed         Allowed IPs or CIDRs (comma-separated)
  --cors            Allowed CORS origins (comma-separated)
  --slot-interval   Slot time (default: 400ms)
  --finality-depth  Slots until finalized (default: 32)
  --db              memory or badger (default: badger)
  --faucet          Largest faucet request in lamports
  --genesis         Genesis file with initial allocations

Logging Options:
  --log-level       debug, info, warn, error (default: info)
  --log-file        Log file path (default: <datadir>/logs/localnet.log)
  --log-json        Output logs as JSON

Examples:
  # Throwaway ledger
  klingdrop-localnet --db=memory

  # Fast slots for tests
  klingdrop-localnet --db=memory --slot-interval=50ms --finality-depth=2
`)
}
