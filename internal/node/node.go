// Package node runs a local ledger behind its JSON-RPC server so it can be
// embedded in any binary (the localnet daemon, integration tests).
package node

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingdrop/config"
	"github.com/Klingon-tech/klingdrop/internal/localnet"
	klog "github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/internal/rpc"
	"github.com/Klingon-tech/klingdrop/internal/storage"
)

// Node is a fully-initialized local ledger with its RPC server.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	db        storage.DB
	ledger    *localnet.Ledger
	rpcServer *rpc.Server
}

// New creates and initializes a Node. It opens storage, applies the
// genesis to a fresh ledger and prepares the RPC server, but starts
// nothing. Call Start for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "localnet.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	// ── 2. Genesis ──────────────────────────────────────────────────
	genesis := config.DefaultGenesis()
	if cfg.Localnet.Genesis != "" {
		g, err := config.LoadGenesis(expandHome(cfg.Localnet.Genesis))
		if err != nil {
			return nil, err
		}
		genesis = g
	}
	ledgerCfg, err := ledgerConfig(cfg, genesis)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("genesis", genesis.Name).
		Str("network", string(cfg.Network)).
		Dur("slot_interval", cfg.Localnet.SlotInterval).
		Uint64("finality_depth", cfg.Localnet.FinalityDepth).
		Msg("Starting klingdrop local ledger")

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	// ── 4. Ledger ───────────────────────────────────────────────────
	ledger, err := localnet.New(db, ledgerCfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	// ── 5. RPC server ───────────────────────────────────────────────
	addr := net.JoinHostPort(cfg.Localnet.ListenAddr, strconv.Itoa(cfg.Localnet.Port))
	srv := rpc.New(addr, ledger, cfg.Localnet)

	return &Node{
		cfg:       cfg,
		genesis:   genesis,
		logger:    logger,
		db:        db,
		ledger:    ledger,
		rpcServer: srv,
	}, nil
}

// Start begins serving RPC and producing slots.
func (n *Node) Start() error {
	if err := n.rpcServer.Start(); err != nil {
		return fmt.Errorf("start rpc: %w", err)
	}
	n.ledger.Start()

	n.logger.Info().
		Str("rpc", n.rpcServer.URL()).
		Uint64("slot", n.ledger.Slot(localnet.CommitmentProcessed)).
		Str("db", n.cfg.Localnet.DB).
		Msg("Local ledger started")
	return nil
}

// Stop shuts down the server and the slot producer and closes storage.
func (n *Node) Stop() {
	if n.rpcServer != nil {
		if err := n.rpcServer.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("RPC shutdown")
		}
	}
	n.ledger.Stop()
	if n.db != nil {
		n.db.Close()
	}
	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	return n.rpcServer.Addr()
}

// RPCURL returns the http URL of the RPC server.
func (n *Node) RPCURL() string {
	return n.rpcServer.URL()
}

// Ledger returns the underlying ledger.
func (n *Node) Ledger() *localnet.Ledger {
	return n.ledger
}
