package nonceverify

import (
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Account discriminators.
var (
	DiscNonceProject           = anchor.AccountDiscriminator("NonceProject")
	DiscBusinessProject        = anchor.AccountDiscriminator("BusinessProject")
	DiscUserBusinessNonceState = anchor.AccountDiscriminator("UserBusinessNonceState")
)

// Allocated account sizes, discriminator included.
const (
	NonceProjectSize           = 8 + 33 + 32 + 4 + 4 + 1
	BusinessProjectSize        = 8 + 32 + 32 + 32
	UserBusinessNonceStateSize = 8 + 4 + 32 + 32
)

// NonceProject is a fee-collecting scope.
type NonceProject struct {
	Admin              types.OptionalKey
	ProjectID          types.PublicKey
	BusinessFee        uint32
	UserFee            uint32
	RegisterNeedVerify bool
}

// BusinessProject is a sub-project whose authority must co-sign every verify.
type BusinessProject struct {
	ID           types.PublicKey
	Authority    types.PublicKey
	NonceProject types.PublicKey
}

// UserBusinessNonceState is the nonce of one user in one business project.
type UserBusinessNonceState struct {
	NonceValue      uint32
	BusinessProject types.PublicKey
	User            types.PublicKey
}

// DecodeNonceProject decodes nonce project account data.
func DecodeNonceProject(data []byte) (NonceProject, error) {
	d, err := anchor.CheckAccount(data, DiscNonceProject)
	if err != nil {
		return NonceProject{}, fmt.Errorf("nonce project: %w", err)
	}
	np := NonceProject{
		Admin:              d.OptionPublicKey(),
		ProjectID:          d.PublicKey(),
		BusinessFee:        d.U32(),
		UserFee:            d.U32(),
		RegisterNeedVerify: d.Bool(),
	}
	if err := d.Err(); err != nil {
		return NonceProject{}, fmt.Errorf("nonce project: %w", err)
	}
	return np, nil
}

// Encode serializes np padded to NonceProjectSize.
func (np NonceProject) Encode() []byte {
	b := anchor.NewEncoder(DiscNonceProject).
		OptionPublicKey(np.Admin).
		PublicKey(np.ProjectID).
		U32(np.BusinessFee).
		U32(np.UserFee).
		Bool(np.RegisterNeedVerify).
		Bytes()
	return pad(b, NonceProjectSize)
}

// DecodeBusinessProject decodes business project account data.
func DecodeBusinessProject(data []byte) (BusinessProject, error) {
	d, err := anchor.CheckAccount(data, DiscBusinessProject)
	if err != nil {
		return BusinessProject{}, fmt.Errorf("business project: %w", err)
	}
	bp := BusinessProject{
		ID:           d.PublicKey(),
		Authority:    d.PublicKey(),
		NonceProject: d.PublicKey(),
	}
	if err := d.Err(); err != nil {
		return BusinessProject{}, fmt.Errorf("business project: %w", err)
	}
	return bp, nil
}

// Encode serializes bp.
func (bp BusinessProject) Encode() []byte {
	return anchor.NewEncoder(DiscBusinessProject).
		PublicKey(bp.ID).
		PublicKey(bp.Authority).
		PublicKey(bp.NonceProject).
		Bytes()
}

// DecodeUserBusinessNonceState decodes user nonce account data.
func DecodeUserBusinessNonceState(data []byte) (UserBusinessNonceState, error) {
	d, err := anchor.CheckAccount(data, DiscUserBusinessNonceState)
	if err != nil {
		return UserBusinessNonceState{}, fmt.Errorf("user nonce: %w", err)
	}
	s := UserBusinessNonceState{
		NonceValue:      d.U32(),
		BusinessProject: d.PublicKey(),
		User:            d.PublicKey(),
	}
	if err := d.Err(); err != nil {
		return UserBusinessNonceState{}, fmt.Errorf("user nonce: %w", err)
	}
	return s, nil
}

// Encode serializes s.
func (s UserBusinessNonceState) Encode() []byte {
	return anchor.NewEncoder(DiscUserBusinessNonceState).
		U32(s.NonceValue).
		PublicKey(s.BusinessProject).
		PublicKey(s.User).
		Bytes()
}

func pad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	return append(b, make([]byte, size-len(b))...)
}
