package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Klingon-tech/klingdrop/pkg/crypto"
)

// Keystore errors.
var (
	ErrWalletExists    = errors.New("wallet already exists")
	ErrWalletNotFound  = errors.New("wallet not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrNoSeed          = errors.New("wallet has no seed")
)

// keystoreFile is the on-disk JSON format of a wallet.
type keystoreFile struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	// EncryptedSeed is empty for wallets holding imported keys only.
	EncryptedSeed []byte         `json:"encrypted_seed,omitempty"`
	Accounts      []AccountEntry `json:"accounts"`
	NextIndex     uint32         `json:"next_index"`
}

// AccountEntry is one key of a wallet. Derived keys carry their path,
// imported keys their sealed bytes.
type AccountEntry struct {
	Name         string `json:"name"`
	Address      string `json:"address"` // base58
	Path         string `json:"path,omitempty"`
	EncryptedKey []byte `json:"encrypted_key,omitempty"`
}

// Imported reports whether the key was imported rather than derived.
func (a AccountEntry) Imported() bool {
	return len(a.EncryptedKey) > 0
}

// Keystore manages encrypted wallets in one directory.
type Keystore struct {
	path string
}

// NewKeystore opens the keystore at path, creating the directory if needed.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

// Path returns the keystore directory.
func (ks *Keystore) Path() string {
	return ks.path
}

func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Create writes a new wallet. seed may be nil for a wallet that only holds
// imported keys.
func (ks *Keystore) Create(name string, seed, password []byte, params EncryptionParams) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %q", ErrWalletExists, name)
	}

	kf := keystoreFile{
		Version:   1,
		CreatedAt: time.Now().UTC(),
		Accounts:  []AccountEntry{},
	}
	if seed != nil {
		encrypted, err := Encrypt(seed, password, params)
		if err != nil {
			return fmt.Errorf("encrypt seed: %w", err)
		}
		kf.EncryptedSeed = encrypted
	}
	return ks.writeFile(path, &kf)
}

// Load decrypts and returns the wallet seed.
func (ks *Keystore) Load(name string, password []byte) ([]byte, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return nil, err
	}
	if len(kf.EncryptedSeed) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoSeed, name)
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet: %w", err)
	}
	return seed, nil
}

// DeriveAccount derives the next account key of a seeded wallet, records it
// under accountName and returns it.
func (ks *Keystore) DeriveAccount(walletName, accountName string, password []byte) (AccountEntry, *crypto.PrivateKey, error) {
	kf, err := ks.readFile(walletName)
	if err != nil {
		return AccountEntry{}, nil, err
	}
	seed, err := ks.Load(walletName, password)
	if err != nil {
		return AccountEntry{}, nil, err
	}
	defer wipe(seed)

	master, err := NewMasterKey(seed)
	if err != nil {
		return AccountEntry{}, nil, err
	}
	defer master.Zero()
	hd, err := master.DeriveAccount(kf.NextIndex, 0)
	if err != nil {
		return AccountEntry{}, nil, err
	}
	defer hd.Zero()
	key, err := hd.Signer()
	if err != nil {
		return AccountEntry{}, nil, err
	}

	entry := AccountEntry{
		Name:    accountName,
		Address: key.PublicKey().String(),
		Path:    AccountPath(kf.NextIndex, 0),
	}
	if err := addAccount(kf, entry); err != nil {
		return AccountEntry{}, nil, err
	}
	kf.NextIndex++
	if err := ks.writeFile(ks.walletPath(walletName), kf); err != nil {
		return AccountEntry{}, nil, err
	}
	return entry, key, nil
}

// ImportKey seals key under password and records it as accountName.
func (ks *Keystore) ImportKey(walletName, accountName string, key *crypto.PrivateKey, password []byte, params EncryptionParams) (AccountEntry, error) {
	kf, err := ks.readFile(walletName)
	if err != nil {
		return AccountEntry{}, err
	}
	raw := key.Seed()
	defer wipe(raw)
	sealed, err := Encrypt(raw, password, params)
	if err != nil {
		return AccountEntry{}, fmt.Errorf("encrypt key: %w", err)
	}
	entry := AccountEntry{
		Name:         accountName,
		Address:      key.PublicKey().String(),
		EncryptedKey: sealed,
	}
	if err := addAccount(kf, entry); err != nil {
		return AccountEntry{}, err
	}
	if err := ks.writeFile(ks.walletPath(walletName), kf); err != nil {
		return AccountEntry{}, err
	}
	return entry, nil
}

// addAccount appends entry unless its name or address is taken.
func addAccount(kf *keystoreFile, entry AccountEntry) error {
	for _, existing := range kf.Accounts {
		if existing.Name == entry.Name {
			return fmt.Errorf("%w: name %q", ErrAccountExists, entry.Name)
		}
		if existing.Address == entry.Address {
			return fmt.Errorf("%w: address %s", ErrAccountExists, entry.Address)
		}
	}
	kf.Accounts = append(kf.Accounts, entry)
	return nil
}

// Signer unlocks the account named by name or address.
func (ks *Keystore) Signer(walletName, account string, password []byte) (*crypto.PrivateKey, error) {
	kf, err := ks.readFile(walletName)
	if err != nil {
		return nil, err
	}
	var entry *AccountEntry
	for i := range kf.Accounts {
		if kf.Accounts[i].Name == account || kf.Accounts[i].Address == account {
			entry = &kf.Accounts[i]
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %q in wallet %q", ErrAccountNotFound, account, walletName)
	}

	var key *crypto.PrivateKey
	if entry.Imported() {
		raw, err := Decrypt(entry.EncryptedKey, password)
		if err != nil {
			return nil, fmt.Errorf("decrypt key: %w", err)
		}
		defer wipe(raw)
		key, err = crypto.PrivateKeyFromSeed(raw)
		if err != nil {
			return nil, err
		}
	} else {
		path, err := ParsePath(entry.Path)
		if err != nil {
			return nil, err
		}
		seed, err := ks.Load(walletName, password)
		if err != nil {
			return nil, err
		}
		defer wipe(seed)
		master, err := NewMasterKey(seed)
		if err != nil {
			return nil, err
		}
		defer master.Zero()
		hd, err := master.DerivePath(path...)
		if err != nil {
			return nil, err
		}
		defer hd.Zero()
		if key, err = hd.Signer(); err != nil {
			return nil, err
		}
	}
	if got := key.PublicKey().String(); got != entry.Address {
		return nil, fmt.Errorf("account %q unlocks to %s, recorded %s", entry.Name, got, entry.Address)
	}
	return key, nil
}

// ListAccounts returns the accounts of a wallet.
func (ks *Keystore) ListAccounts(walletName string) ([]AccountEntry, error) {
	kf, err := ks.readFile(walletName)
	if err != nil {
		return nil, err
	}
	return kf.Accounts, nil
}

// NextIndex returns the account index DeriveAccount uses next.
func (ks *Keystore) NextIndex(walletName string) (uint32, error) {
	kf, err := ks.readFile(walletName)
	if err != nil {
		return 0, err
	}
	return kf.NextIndex, nil
}

// List returns the names of all wallets in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".wallet" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	return os.Remove(path)
}

func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(name string) (*keystoreFile, error) {
	data, err := os.ReadFile(ks.walletPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != 1 {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, nil
}
