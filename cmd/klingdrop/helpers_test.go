package main

import (
	"strings"
	"testing"

	"github.com/Klingon-tech/klingdrop/internal/action"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

func TestFormatSOL(t *testing.T) {
	tests := []struct {
		name  string
		input uint64
		want  string
	}{
		{"zero", 0, "0.000000000"},
		{"one lamport", 1, "0.000000001"},
		{"one sol", 1_000_000_000, "1.000000000"},
		{"fractional", 2_500_000_000, "2.500000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatSOL(tt.input); got != tt.want {
				t.Errorf("formatSOL(%d) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"zero", "0", "0", false},
		{"plain", "1500", "1500", false},
		{"spaces", " 42 ", "42", false},
		{"max u64", "18446744073709551615", "18446744073709551615", false},
		{"above u64", "18446744073709551616", "", true},
		{"negative", "-1", "", true},
		{"decimal", "1.5", "", true},
		{"empty", "", "", true},
		{"not a number", "abc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAmount(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseAmount(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got.String() != tt.want {
				t.Errorf("parseAmount(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseReceivers(t *testing.T) {
	owner := types.PublicKey{1, 2, 3}
	data := []byte(`[{"owner":"` + owner.String() + `","amount":7},{"owner":"` + owner.String() + `","amount":9}]`)
	got, err := parseReceivers(data)
	if err != nil {
		t.Fatalf("parseReceivers() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("parseReceivers() returned %d receivers, want 2", len(got))
	}
	if got[0].Owner != owner || got[0].Amount != 7 || got[1].Amount != 9 {
		t.Errorf("parseReceivers() = %+v", got)
	}
}

func TestParseReceivers_Invalid(t *testing.T) {
	owner := types.PublicKey{1, 2, 3}.String()
	tests := []struct {
		name string
		data string
	}{
		{"not json", "receivers"},
		{"not an array", `{"owner":"` + owner + `","amount":1}`},
		{"missing owner", `[{"amount":1}]`},
		{"zero amount", `[{"owner":"` + owner + `","amount":0}]`},
		{"bad owner", `[{"owner":"0OIl","amount":1}]`},
		{"negative amount", `[{"owner":"` + owner + `","amount":-1}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseReceivers([]byte(tt.data)); err == nil {
				t.Errorf("parseReceivers(%s) should fail", tt.data)
			}
		})
	}
}

func TestDeriveAddress(t *testing.T) {
	p := action.DefaultPrograms()
	id := types.PublicKey{9}
	user := types.PublicKey{8}
	mint := types.PublicKey{7}

	np, _, _ := p.NonceVerify.FindNonceProject(id)
	bp, _, _ := p.NonceVerify.FindBusinessProject(np, user)
	un, _, _ := p.NonceVerify.FindUserNonce(bp, user)
	ap, _, _ := p.Airdrop.FindAirdropProject(id)
	ma, _, _ := p.Airdrop.FindMintAuthority(ap, mint)
	ba, _, _ := p.Airdrop.FindBusinessAuthority(ap, bp)
	mgr, _, _ := p.Distribute.FindManager()
	dma, _, _ := p.Distribute.FindMintAuthority(id, mint)

	tests := []struct {
		kind string
		in   addressInputs
		want types.PublicKey
	}{
		{"nonce-project", addressInputs{ProjectID: id.String()}, np},
		{"business-project", addressInputs{NonceProjectID: id.String(), BusinessProjectID: user.String()}, bp},
		{"user-nonce", addressInputs{BusinessProject: bp.String(), User: user.String()}, un},
		{"airdrop-project", addressInputs{ProjectID: id.String()}, ap},
		{"airdrop-mint-authority", addressInputs{AirdropProject: ap.String(), Mint: mint.String()}, ma},
		{"business-authority", addressInputs{AirdropProject: ap.String(), BusinessProject: bp.String()}, ba},
		{"manager", addressInputs{}, mgr},
		{"distribute-mint-authority", addressInputs{Project: id.String(), Mint: mint.String()}, dma},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			got, err := deriveAddress(p, tt.kind, tt.in)
			if err != nil {
				t.Fatalf("deriveAddress(%s) error: %v", tt.kind, err)
			}
			if got != tt.want {
				t.Errorf("deriveAddress(%s) = %s, want %s", tt.kind, got, tt.want)
			}
		})
	}
}

func TestDeriveAddress_Errors(t *testing.T) {
	p := action.DefaultPrograms()

	_, err := deriveAddress(p, "bogus", addressInputs{})
	if err == nil || !strings.Contains(err.Error(), "nonce-project") {
		t.Errorf("unknown kind error = %v, want list of kinds", err)
	}

	_, err = deriveAddress(p, "user-nonce", addressInputs{User: types.PublicKey{1}.String()})
	if err == nil || !strings.Contains(err.Error(), "--business-project") {
		t.Errorf("missing flag error = %v, want --business-project", err)
	}

	_, err = deriveAddress(p, "nonce-project", addressInputs{ProjectID: "not base58!"})
	if err == nil {
		t.Error("invalid key should fail")
	}
}
