package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingdrop/config"
	"github.com/Klingon-tech/klingdrop/internal/wallet"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
)

func openKeystore(cfg *config.Config) *wallet.Keystore {
	ks, err := wallet.NewKeystore(cfg.KeystoreDir())
	if err != nil {
		fatal("open keystore: %v", err)
	}
	return ks
}

// newPassword prompts for a password twice.
func newPassword() []byte {
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}
	return password
}

// walletExists reports whether the configured wallet is on disk.
func walletExists(ks *wallet.Keystore, name string) bool {
	_, err := ks.ListAccounts(name)
	if errors.Is(err, wallet.ErrWalletNotFound) {
		return false
	}
	if err != nil {
		fatal("%v", err)
	}
	return true
}

// unlock prompts for the wallet password and returns the signer of account.
// An empty account selects the first one.
func unlock(cfg *config.Config, account string) *crypto.PrivateKey {
	ks := openKeystore(cfg)
	name := cfg.Keystore.Wallet
	if account == "" {
		accounts, err := ks.ListAccounts(name)
		if err != nil {
			fatal("%v", err)
		}
		if len(accounts) == 0 {
			fatal("wallet %q has no accounts", name)
		}
		account = accounts[0].Name
	}
	password, err := readPassword(fmt.Sprintf("Password for %s: ", name))
	if err != nil {
		fatal("read password: %v", err)
	}
	key, err := ks.Signer(name, account, password)
	if err != nil {
		fatal("unlock %s: %v", account, err)
	}
	return key
}

func cmdKeygen(args []string, cfg *config.Config) {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	account := fs.String("account", "", "Account name (default: account-<index>)")
	fs.Parse(args)

	ks := openKeystore(cfg)
	name := cfg.Keystore.Wallet

	var password []byte
	if !walletExists(ks, name) {
		mnemonic, err := wallet.GenerateMnemonic()
		if err != nil {
			fatal("generate mnemonic: %v", err)
		}
		fmt.Println("Mnemonic (write this down!):")
		fmt.Printf("  %s\n\n", mnemonic)

		password = newPassword()
		seed, err := wallet.SeedFromMnemonic(mnemonic, "")
		if err != nil {
			fatal("derive seed: %v", err)
		}
		err = ks.Create(name, seed, password, wallet.DefaultParams())
		for i := range seed {
			seed[i] = 0
		}
		if err != nil {
			fatal("create wallet: %v", err)
		}
		fmt.Printf("Wallet created: %s\n", name)
	} else {
		var err error
		if password, err = readPassword(fmt.Sprintf("Password for %s: ", name)); err != nil {
			fatal("read password: %v", err)
		}
	}

	deriveNext(ks, name, *account, password)
}

func deriveNext(ks *wallet.Keystore, walletName, account string, password []byte) {
	if account == "" {
		idx, err := ks.NextIndex(walletName)
		if err != nil {
			fatal("%v", err)
		}
		account = fmt.Sprintf("account-%d", idx)
	}
	entry, key, err := ks.DeriveAccount(walletName, account, password)
	if err != nil {
		fatal("derive account: %v", err)
	}
	key.Zero()
	fmt.Printf("Account: %s\n", entry.Name)
	fmt.Printf("Path:    %s\n", entry.Path)
	fmt.Printf("Address: %s\n", entry.Address)
}

func cmdImport(args []string, cfg *config.Config) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic")
	passphrase := fs.String("passphrase", "", "Optional BIP-39 passphrase")
	keypair := fs.String("keypair", "", "solana-keygen keypair file")
	account := fs.String("account", "", "Account name")
	fs.Parse(args)

	if (*mnemonic == "") == (*keypair == "") {
		fatal("Usage: klingdrop import --mnemonic <words> | --keypair <file> [--account <name>]")
	}

	ks := openKeystore(cfg)
	name := cfg.Keystore.Wallet

	if *mnemonic != "" {
		if walletExists(ks, name) {
			fatal("wallet %q already exists", name)
		}
		words := strings.Join(strings.Fields(*mnemonic), " ")
		seed, err := wallet.SeedFromMnemonic(words, *passphrase)
		if err != nil {
			fatal("%v", err)
		}
		password := newPassword()
		err = ks.Create(name, seed, password, wallet.DefaultParams())
		for i := range seed {
			seed[i] = 0
		}
		if err != nil {
			fatal("create wallet: %v", err)
		}
		fmt.Printf("Wallet restored: %s\n", name)
		deriveNext(ks, name, *account, password)
		return
	}

	key, err := wallet.ReadSolanaKeypair(*keypair)
	if err != nil {
		fatal("%v", err)
	}
	defer key.Zero()

	var password []byte
	if walletExists(ks, name) {
		if password, err = readPassword(fmt.Sprintf("Password for %s: ", name)); err != nil {
			fatal("read password: %v", err)
		}
		// Seeded wallets share one password for every key.
		if _, err := ks.Load(name, password); err != nil && !errors.Is(err, wallet.ErrNoSeed) {
			fatal("%v", err)
		}
	} else {
		password = newPassword()
		if err := ks.Create(name, nil, password, wallet.DefaultParams()); err != nil {
			fatal("create wallet: %v", err)
		}
	}

	accountName := *account
	if accountName == "" {
		accountName = key.PublicKey().String()
	}
	entry, err := ks.ImportKey(name, accountName, key, password, wallet.DefaultParams())
	if err != nil {
		fatal("import key: %v", err)
	}
	fmt.Printf("Imported: %s\n", entry.Name)
	fmt.Printf("Address:  %s\n", entry.Address)
}

func cmdList(cfg *config.Config) {
	ks := openKeystore(cfg)
	accounts, err := ks.ListAccounts(cfg.Keystore.Wallet)
	if err != nil {
		fatal("%v", err)
	}
	if len(accounts) == 0 {
		fmt.Println("No accounts.")
		return
	}
	fmt.Printf("%-20s %-45s %s\n", "NAME", "ADDRESS", "SOURCE")
	for _, a := range accounts {
		source := a.Path
		if a.Imported() {
			source = "imported"
		}
		fmt.Printf("%-20s %-45s %s\n", a.Name, a.Address, source)
	}
}

func cmdExport(args []string, cfg *config.Config) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	account := fs.String("account", "", "Account name or address")
	out := fs.String("out", "", "Output keypair file")
	fs.Parse(args)

	if *account == "" || *out == "" {
		fatal("Usage: klingdrop export --account <name> --out <file>")
	}
	if _, err := os.Stat(*out); err == nil {
		fatal("%s already exists", *out)
	}

	key := unlock(cfg, *account)
	defer key.Zero()
	data, err := wallet.MarshalSolanaKeypair(key)
	if err != nil {
		fatal("encode keypair: %v", err)
	}
	if err := os.WriteFile(*out, data, 0600); err != nil {
		fatal("write keypair: %v", err)
	}
	fmt.Printf("Wrote %s (%s)\n", *out, key.PublicKey())
}
