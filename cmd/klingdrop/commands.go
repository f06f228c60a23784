package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingdrop/config"
	"github.com/Klingon-tech/klingdrop/internal/action"
	"github.com/Klingon-tech/klingdrop/internal/assembler"
	"github.com/Klingon-tech/klingdrop/internal/rpcclient"
	"github.com/Klingon-tech/klingdrop/pkg/crypto"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

func mustKey(flagName, value string) types.PublicKey {
	key, err := requireKey(flagName, value)
	if err != nil {
		fatal("%v", err)
	}
	return key
}

func cmdAddress(args []string, cfg *config.Config) {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		fmt.Fprintf(os.Stderr, "Usage: klingdrop address <kind> [flags]\n\nKinds: %s\n", strings.Join(addressKindNames(), ", "))
		os.Exit(1)
	}
	kind := args[0]

	fs := flag.NewFlagSet("address "+kind, flag.ExitOnError)
	var in addressInputs
	fs.StringVar(&in.ProjectID, "project-id", "", "Project ID key")
	fs.StringVar(&in.NonceProjectID, "nonce-project-id", "", "Nonce project ID key")
	fs.StringVar(&in.BusinessProjectID, "business-project-id", "", "Business project ID key")
	fs.StringVar(&in.BusinessProject, "business-project", "", "Business project address")
	fs.StringVar(&in.AirdropProject, "airdrop-project", "", "Airdrop project address")
	fs.StringVar(&in.Project, "project", "", "Distribute project address")
	fs.StringVar(&in.User, "user", "", "User address")
	fs.StringVar(&in.Mint, "mint", "", "Mint address")
	fs.Parse(args[1:])

	addr, err := deriveAddress(programsFrom(cfg), kind, in)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Println(addr)
}

func cmdBalance(ctx context.Context, args []string, cfg *config.Config) {
	if len(args) != 1 {
		fatal("Usage: klingdrop balance <address>")
	}
	addr := mustKey("address", args[0])
	client := rpcclient.NewWithTimeout(cfg.RPC.Endpoint, cfg.RPC.Timeout)
	lamports, err := client.GetBalance(ctx, addr, rpcclient.CommitmentConfirmed)
	if err != nil {
		fatal("get balance: %v", err)
	}
	fmt.Printf("%s SOL (%d lamports)\n", formatSOL(lamports), lamports)
}

func cmdFaucet(ctx context.Context, args []string, cfg *config.Config) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fatal("Usage: klingdrop faucet <address> [--lamports <n>]")
	}
	addr := mustKey("address", args[0])
	fs := flag.NewFlagSet("faucet", flag.ExitOnError)
	lamports := fs.Uint64("lamports", cfg.Localnet.FaucetLamports, "Lamports to request")
	fs.Parse(args[1:])

	client := rpcclient.NewWithTimeout(cfg.RPC.Endpoint, cfg.RPC.Timeout)
	sig, err := client.RequestAirdrop(ctx, addr, *lamports)
	if err != nil {
		fatal("request airdrop: %v", err)
	}
	status, err := client.WaitForCommitment(ctx, sig, rpcclient.CommitmentConfirmed, cfg.Confirm.Poll, cfg.Confirm.Timeout)
	if err != nil {
		fatal("confirm airdrop %s: %v", sig, err)
	}
	fmt.Printf("Funded %s with %s SOL\n", addr, formatSOL(*lamports))
	fmt.Printf("  Signature: %s\n", sig)
	fmt.Printf("  Slot:      %d\n", status.Slot)
}

func cmdNonce(ctx context.Context, args []string, cfg *config.Config) {
	if len(args) == 0 {
		fatal("Usage: klingdrop nonce <show|init> [flags]")
	}
	switch args[0] {
	case "show":
		cmdNonceShow(ctx, args[1:], cfg)
	case "init":
		cmdNonceInit(ctx, args[1:], cfg)
	default:
		fatal("unknown nonce command: %s", args[0])
	}
}

func cmdNonceShow(ctx context.Context, args []string, cfg *config.Config) {
	fs := flag.NewFlagSet("nonce show", flag.ExitOnError)
	bp := fs.String("business-project", "", "Business project address")
	user := fs.String("user", "", "User address")
	fs.Parse(args)

	builder := newBuilder(cfg)
	nonce, err := builder.Reader().UserNonce(ctx, mustKey("business-project", *bp), mustKey("user", *user))
	if err != nil {
		fatal("read nonce: %v", err)
	}
	if !nonce.Exists {
		fmt.Println("Nonce: 0 (not initialized)")
		return
	}
	fmt.Printf("Nonce: %d\n", nonce.Value)
}

func cmdNonceInit(ctx context.Context, args []string, cfg *config.Config) {
	fs := flag.NewFlagSet("nonce init", flag.ExitOnError)
	bp := fs.String("business-project", "", "Business project address")
	account := fs.String("account", "", "Wallet account of the user")
	mode := fs.String("mode", "confirm", "Build mode")
	fs.Parse(args)

	businessProject := mustKey("business-project", *bp)
	key := unlock(cfg, *account)
	defer key.Zero()

	builder := newBuilder(cfg)
	opts := buildOptions(cfg, *mode)
	opts.Signers = []crypto.Signer{key}
	res, err := builder.InitUserNonce(ctx, action.InitUserNonceRequest{
		BuildOptions:    opts,
		Payer:           key.PublicKey(),
		User:            key.PublicKey(),
		BusinessProject: businessProject,
	})
	if err != nil {
		fatal("%v", err)
	}
	printResult(res)
}

func cmdSignData(args []string, cfg *config.Config) {
	fs := flag.NewFlagSet("sign-data", flag.ExitOnError)
	data := fs.String("data", "", "Hex payload")
	account := fs.String("account", "", "Wallet account")
	fs.Parse(args)

	msg, err := hex.DecodeString(strings.TrimPrefix(*data, "0x"))
	if err != nil || len(msg) == 0 {
		fatal("Usage: klingdrop sign-data --data <hex> [--account <name>]")
	}
	key := unlock(cfg, *account)
	defer key.Zero()
	sig, err := key.Sign(msg)
	if err != nil {
		fatal("sign: %v", err)
	}
	fmt.Printf("Signer:    %s\n", key.PublicKey())
	fmt.Printf("Signature: %s\n", sig)
}

func cmdVerifySign(args []string) {
	fs := flag.NewFlagSet("verify-sign", flag.ExitOnError)
	data := fs.String("data", "", "Hex payload")
	sigStr := fs.String("signature", "", "Base58 signature")
	pubStr := fs.String("pubkey", "", "Signer address")
	fs.Parse(args)

	msg, err := hex.DecodeString(strings.TrimPrefix(*data, "0x"))
	if err != nil {
		fatal("--data: %v", err)
	}
	sig, err := types.SignatureFromBase58(*sigStr)
	if err != nil {
		fatal("--signature: %v", err)
	}
	pub := mustKey("pubkey", *pubStr)
	if !crypto.VerifySignature(msg, sig, pub) {
		fmt.Println("INVALID")
		os.Exit(1)
	}
	fmt.Println("OK")
}

func cmdSignClaim(ctx context.Context, args []string, cfg *config.Config) {
	fs := flag.NewFlagSet("sign-claim", flag.ExitOnError)
	ap := fs.String("airdrop-project", "", "Airdrop project address")
	bp := fs.String("business-project", "", "Business project address")
	claimant := fs.String("claimant", "", "Claimant address")
	mint := fs.String("mint", "", "Mint address")
	amountStr := fs.String("amount", "", "Amount in base units")
	account := fs.String("account", "", "Wallet account of the airdrop admin")
	fs.Parse(args)

	amount, err := parseAmount(*amountStr)
	if err != nil {
		fatal("--amount: %v", err)
	}
	req := action.ClaimPayloadRequest{
		AirdropProject:  mustKey("airdrop-project", *ap),
		BusinessProject: mustKey("business-project", *bp),
		Claimant:        mustKey("claimant", *claimant),
		Mint:            mustKey("mint", *mint),
		Amount:          amount,
	}
	key := unlock(cfg, *account)
	defer key.Zero()

	builder := newBuilder(cfg)
	payload, sig, err := builder.SignClaim(ctx, key, req)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Nonce:     %d\n", payload.Nonce)
	fmt.Printf("Payload:   %x\n", payload.Encode())
	fmt.Printf("Admin:     %s\n", key.PublicKey())
	fmt.Printf("Signature: %s\n", sig)
}

func cmdClaim(ctx context.Context, args []string, cfg *config.Config) {
	fs := flag.NewFlagSet("claim", flag.ExitOnError)
	ap := fs.String("airdrop-project", "", "Airdrop project address")
	bp := fs.String("business-project", "", "Business project address")
	mint := fs.String("mint", "", "Mint address")
	amountStr := fs.String("amount", "", "Amount in base units")
	sigStr := fs.String("signature", "", "Airdrop admin signature over the claim")
	account := fs.String("account", "", "Wallet account of the claimant")
	mode := fs.String("mode", "confirm", "Build mode")
	fs.Parse(args)

	amount, err := parseAmount(*amountStr)
	if err != nil {
		fatal("--amount: %v", err)
	}
	sig, err := types.SignatureFromBase58(*sigStr)
	if err != nil {
		fatal("--signature: %v", err)
	}
	airdropProject := mustKey("airdrop-project", *ap)
	businessProject := mustKey("business-project", *bp)
	mintKey := mustKey("mint", *mint)

	key := unlock(cfg, *account)
	defer key.Zero()
	me := key.PublicKey()

	builder := newBuilder(cfg)
	opts := buildOptions(cfg, *mode)
	opts.Signers = []crypto.Signer{key}
	res, err := builder.Claim(ctx, action.ClaimRequest{
		BuildOptions:    opts,
		Payer:           me,
		NonceFeePayer:   me,
		Claimant:        me,
		SpaceFeePayer:   me,
		AirdropProject:  airdropProject,
		BusinessProject: businessProject,
		Mint:            mintKey,
		Amount:          amount,
		Signature:       sig,
	})
	if err != nil {
		fatal("%v", err)
	}
	printResult(res)
}

func cmdDistribute(ctx context.Context, args []string, cfg *config.Config) {
	fs := flag.NewFlagSet("distribute", flag.ExitOnError)
	project := fs.String("project", "", "Distribute project address")
	mint := fs.String("mint", "", "Mint address")
	receiversFile := fs.String("receivers", "", "JSON file of {\"owner\", \"amount\"} entries")
	table := fs.String("lookup-table", "", "Address lookup table")
	account := fs.String("account", "", "Wallet account of the project admin")
	mode := fs.String("mode", "confirm", "Build mode")
	fs.Parse(args)

	projectKey := mustKey("project", *project)
	mintKey := mustKey("mint", *mint)
	if *receiversFile == "" {
		fatal("--receivers is required")
	}
	receivers, err := loadReceivers(*receiversFile)
	if err != nil {
		fatal("%v", err)
	}

	opts := buildOptions(cfg, *mode)
	if *table != "" {
		opts.LookupTables = []types.PublicKey{mustKey("lookup-table", *table)}
	}

	key := unlock(cfg, *account)
	defer key.Zero()
	opts.Signers = []crypto.Signer{key}

	builder := newBuilder(cfg)
	res, err := builder.Distribute(ctx, action.DistributeRequest{
		ProjectAdminRequest: action.ProjectAdminRequest{
			BuildOptions: opts,
			Payer:        key.PublicKey(),
			Admin:        key.PublicKey(),
			Project:      projectKey,
		},
		Mint:      mintKey,
		Receivers: receivers,
	})
	if err != nil {
		fatal("%v", err)
	}
	printResult(res)
}

// printResult prints whatever the build mode produced.
func printResult(res *assembler.Result) {
	if res.Budget != nil {
		fmt.Printf("Compute budget: %d units at %d micro-lamports\n", res.Budget.UnitLimit, res.Budget.UnitPrice)
	}
	switch res.Mode {
	case assembler.ModeInstructions:
		for i, ix := range res.Instructions {
			fmt.Printf("#%d %s accounts=%d data=%x\n", i, ix.ProgramID, len(ix.Accounts), ix.Data)
		}
	case assembler.ModeMessage:
		fmt.Println(base64.StdEncoding.EncodeToString(res.Message.Serialize()))
	case assembler.ModeTransaction:
		encoded, err := res.Transaction.Base64()
		if err != nil {
			fatal("encode transaction: %v", err)
		}
		fmt.Println(encoded)
	default:
		fmt.Printf("Signature: %s\n", res.Signature)
		if res.Status != nil {
			fmt.Printf("Slot:      %d (%s)\n", res.Status.Slot, res.Status.ConfirmationStatus)
		}
	}
}
