// Package localnet is an in-process ledger that runs the nonce-verify,
// airdrop and distribute programs along with the native programs they
// depend on. It produces slots on a timer, tracks recent blockhashes and
// commitment levels, and executes v0 transactions atomically.
//
// It is a test double for client code, not a validator: there is one
// producer, no forks and no consensus.
package localnet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/internal/storage"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/program/airdrop"
	"github.com/Klingon-tech/klingdrop/pkg/program/distribute"
	"github.com/Klingon-tech/klingdrop/pkg/program/nonceverify"
	"github.com/Klingon-tech/klingdrop/pkg/program/system"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// MaxRecentBlockhashes is how many slots a blockhash stays valid for.
const MaxRecentBlockhashes = 150

// Commitment is a confirmation level.
type Commitment string

// Commitment levels.
const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// ParseCommitment maps an empty string to finalized, the ledger default.
func ParseCommitment(s string) (Commitment, error) {
	switch Commitment(s) {
	case "":
		return CommitmentFinalized, nil
	case CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized:
		return Commitment(s), nil
	default:
		return "", fmt.Errorf("unknown commitment %q", s)
	}
}

// Config configures a Ledger.
type Config struct {
	// SlotInterval is the slot time. Zero disables the producer; slots then
	// advance only through Advance.
	SlotInterval time.Duration
	// FinalityDepth is how many slots a transaction needs to be finalized.
	FinalityDepth uint64
	// FaucetLamports caps a single airdrop request.
	FaucetLamports uint64
	// GenesisHash seeds the blockhash chain of a fresh ledger. Zero picks
	// a time-based hash.
	GenesisHash types.Hash
	// Alloc funds system accounts when the ledger is created.
	Alloc map[types.PublicKey]uint64
	// Program deployments.
	NonceVerify types.PublicKey
	Airdrop     types.PublicKey
	Distribute  types.PublicKey
}

// DefaultConfig returns the settings used by klingdrop-localnet.
func DefaultConfig() Config {
	return Config{
		SlotInterval:   400 * time.Millisecond,
		FinalityDepth:  32,
		FaucetLamports: 100 * LamportsPerSOL,
		NonceVerify:    nonceverify.ProgramID,
		Airdrop:        airdrop.ProgramID,
		Distribute:     distribute.ProgramID,
	}
}

// Errors returned before a transaction is executed.
var (
	ErrFaucetLimit = errors.New("airdrop request exceeds faucet limit")
	ErrStopped     = errors.New("ledger stopped")
)

// Ledger is the local ledger.
type Ledger struct {
	cfg    Config
	logger zerolog.Logger

	db       storage.DB
	accounts *storage.PrefixDB
	statuses *storage.PrefixDB
	meta     *storage.PrefixDB

	programs map[types.PublicKey]program

	mu        sync.Mutex
	slot      uint64
	hashes    map[uint64]types.Hash // slot -> blockhash, last MaxRecentBlockhashes
	hashSlots map[types.Hash]uint64
	airdrops  uint64

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New opens a ledger on db, resuming from stored slot metadata when
// present. Call Start to begin producing slots.
func New(db storage.DB, cfg Config) (*Ledger, error) {
	if cfg.FinalityDepth == 0 {
		cfg.FinalityDepth = 1
	}
	def := DefaultConfig()
	if cfg.NonceVerify.IsZero() {
		cfg.NonceVerify = def.NonceVerify
	}
	if cfg.Airdrop.IsZero() {
		cfg.Airdrop = def.Airdrop
	}
	if cfg.Distribute.IsZero() {
		cfg.Distribute = def.Distribute
	}

	l := &Ledger{
		cfg:       cfg,
		logger:    klog.Localnet,
		db:        db,
		accounts:  storage.NewPrefixDB(db, []byte("acct/")),
		statuses:  storage.NewPrefixDB(db, []byte("sig/")),
		meta:      storage.NewPrefixDB(db, []byte("meta/")),
		hashes:    make(map[uint64]types.Hash),
		hashSlots: make(map[types.Hash]uint64),
		stop:      make(chan struct{}),
	}
	l.programs = l.registerPrograms()

	if err := l.loadMeta(); err != nil {
		return nil, err
	}
	if err := l.installPrograms(); err != nil {
		return nil, err
	}
	return l, nil
}

// Start launches the slot producer.
func (l *Ledger) Start() {
	if l.cfg.SlotInterval <= 0 {
		return
	}
	l.wg.Add(1)
	go l.produce()
}

// Stop halts the slot producer and waits for it to exit.
func (l *Ledger) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
}

func (l *Ledger) produce() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.SlotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.Advance(1)
		}
	}
}

// Advance produces n slots.
func (l *Ledger) Advance(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < n; i++ {
		l.nextSlotLocked()
	}
	if err := l.saveMetaLocked(); err != nil {
		l.logger.Error().Err(err).Msg("Failed to persist slot metadata")
	}
}

// WaitForSlot blocks until the ledger reaches slot or ctx is done.
func (l *Ledger) WaitForSlot(ctx context.Context, slot uint64) error {
	for {
		if l.Slot(CommitmentProcessed) >= slot {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return ErrStopped
		case <-time.After(time.Millisecond):
		}
	}
}

func (l *Ledger) nextSlotLocked() {
	prev := l.hashes[l.slot]
	l.slot++
	h := chainHash(prev, l.slot)
	l.hashes[l.slot] = h
	l.hashSlots[h] = l.slot
	if l.slot > MaxRecentBlockhashes {
		old := l.slot - MaxRecentBlockhashes
		delete(l.hashSlots, l.hashes[old])
		delete(l.hashes, old)
	}
	l.logger.Debug().Uint64("slot", l.slot).Str("blockhash", h.String()).Msg("Slot produced")
}

func chainHash(prev types.Hash, slot uint64) types.Hash {
	return crypto.HashConcat(prev, binary.LittleEndian.AppendUint64(nil, slot))
}

// Slot returns the slot at commitment.
func (l *Ledger) Slot(c Commitment) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slotAtLocked(c)
}

func (l *Ledger) slotAtLocked(c Commitment) uint64 {
	var back uint64
	switch c {
	case CommitmentConfirmed:
		back = 1
	case CommitmentFinalized:
		back = l.cfg.FinalityDepth
	}
	if l.slot < back {
		return 0
	}
	return l.slot - back
}

// LatestBlockhash returns the blockhash of the slot at commitment and the
// last block height at which it is accepted.
func (l *Ledger) LatestBlockhash(c Commitment) (types.Hash, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot := l.slotAtLocked(c)
	h, ok := l.hashes[slot]
	if !ok {
		slot = l.slot
		h = l.hashes[slot]
	}
	return h, slot + MaxRecentBlockhashes
}

// IsBlockhashValid reports whether h is recent enough to be accepted.
func (l *Ledger) IsBlockhashValid(h types.Hash) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.hashSlots[h]
	return ok
}

// Account returns the account at key, or nil when it does not exist.
func (l *Ledger) Account(key types.PublicKey) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok, err := loadAccount(l.accounts, key)
	if err != nil || !ok {
		return nil, err
	}
	return &a, nil
}

// Balance returns the lamports held by key.
func (l *Ledger) Balance(key types.PublicKey) (uint64, error) {
	a, err := l.Account(key)
	if err != nil || a == nil {
		return 0, err
	}
	return a.Lamports, nil
}

func loadAccount(db storage.DB, key types.PublicKey) (Account, bool, error) {
	b, err := db.Get(key[:])
	if errors.Is(err, storage.ErrNotFound) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, fmt.Errorf("load account %s: %w", key, err)
	}
	a, err := decodeAccount(b)
	if err != nil {
		return Account{}, false, fmt.Errorf("load account %s: %w", key, err)
	}
	return a, true, nil
}

func storeAccount(db storage.DB, key types.PublicKey, a Account) error {
	if a.IsEmpty() {
		return db.Delete(key[:])
	}
	return db.Put(key[:], a.encode())
}

var (
	metaSlotKey   = []byte("slot")
	metaHashesKey = []byte("hashes")
)

func (l *Ledger) loadMeta() error {
	b, err := l.meta.Get(metaSlotKey)
	if errors.Is(err, storage.ErrNotFound) {
		genesis := l.cfg.GenesisHash
		if genesis.IsZero() {
			genesis = crypto.Hash([]byte(fmt.Sprintf("klingdrop-localnet %d", time.Now().UnixNano())))
		}
		l.hashes[0] = genesis
		l.hashSlots[genesis] = 0
		if err := l.applyAlloc(); err != nil {
			return err
		}
		return l.saveMetaLocked()
	}
	if err != nil {
		return fmt.Errorf("load slot: %w", err)
	}
	if len(b) != 8 {
		return fmt.Errorf("load slot: %d bytes", len(b))
	}
	l.slot = binary.LittleEndian.Uint64(b)

	hb, err := l.meta.Get(metaHashesKey)
	if err != nil {
		return fmt.Errorf("load blockhashes: %w", err)
	}
	if len(hb)%(8+types.HashSize) != 0 {
		return fmt.Errorf("load blockhashes: %d bytes", len(hb))
	}
	for off := 0; off < len(hb); off += 8 + types.HashSize {
		slot := binary.LittleEndian.Uint64(hb[off:])
		var h types.Hash
		copy(h[:], hb[off+8:])
		l.hashes[slot] = h
		l.hashSlots[h] = slot
	}
	if _, ok := l.hashes[l.slot]; !ok {
		return fmt.Errorf("load blockhashes: missing hash of slot %d", l.slot)
	}
	l.logger.Info().Uint64("slot", l.slot).Msg("Resumed ledger")
	return nil
}

func (l *Ledger) applyAlloc() error {
	if len(l.cfg.Alloc) == 0 {
		return nil
	}
	batch := l.accounts.NewBatch()
	for key, lamports := range l.cfg.Alloc {
		a := Account{Lamports: lamports, Owner: system.ProgramID}
		if err := batch.Put(key[:], a.encode()); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("apply alloc: %w", err)
	}
	l.logger.Info().Int("accounts", len(l.cfg.Alloc)).Msg("Applied genesis allocations")
	return nil
}

func (l *Ledger) saveMetaLocked() error {
	var sb [8]byte
	binary.LittleEndian.PutUint64(sb[:], l.slot)
	hb := make([]byte, 0, len(l.hashes)*(8+types.HashSize))
	for slot, h := range l.hashes {
		hb = binary.LittleEndian.AppendUint64(hb, slot)
		hb = append(hb, h[:]...)
	}
	batch := l.meta.NewBatch()
	if err := batch.Put(metaSlotKey, sb[:]); err != nil {
		return err
	}
	if err := batch.Put(metaHashesKey, hb); err != nil {
		return err
	}
	return batch.Commit()
}
