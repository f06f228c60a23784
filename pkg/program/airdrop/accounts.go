package airdrop

import (
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// DiscAirdropProject is the airdrop project account discriminator.
var DiscAirdropProject = anchor.AccountDiscriminator("AirdropProject")

// AirdropProjectSize is the allocated size of an airdrop project.
const AirdropProjectSize = 8 + 32 + 32

// AirdropProject names the key whose signature authorizes claims.
type AirdropProject struct {
	ID    types.PublicKey
	Admin types.PublicKey
}

// DecodeAirdropProject decodes airdrop project account data.
func DecodeAirdropProject(data []byte) (AirdropProject, error) {
	d, err := anchor.CheckAccount(data, DiscAirdropProject)
	if err != nil {
		return AirdropProject{}, fmt.Errorf("airdrop project: %w", err)
	}
	ap := AirdropProject{ID: d.PublicKey(), Admin: d.PublicKey()}
	if err := d.Err(); err != nil {
		return AirdropProject{}, fmt.Errorf("airdrop project: %w", err)
	}
	return ap, nil
}

// Encode serializes ap.
func (ap AirdropProject) Encode() []byte {
	return anchor.NewEncoder(DiscAirdropProject).PublicKey(ap.ID).PublicKey(ap.Admin).Bytes()
}
