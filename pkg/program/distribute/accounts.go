package distribute

import (
	"fmt"

	"github.com/Klingon-tech/klingdrop/pkg/anchor"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

// Account discriminators.
var (
	DiscManagerAccount = anchor.AccountDiscriminator("SingletonManageProject")
	DiscProjectAccount = anchor.AccountDiscriminator("DdaAirdropProject")
)

// Allocated account sizes.
const (
	ManagerSize = 8 + 1 + 32 + 32 + 4
	ProjectSize = 8 + 32
)

// Manager is the program-wide singleton configuration.
type Manager struct {
	Initialized bool
	Admin       types.PublicKey
	FeeReceiver types.PublicKey
	UserFee     uint32
}

// Project is a distribution project.
type Project struct {
	Admin types.PublicKey
}

// DecodeManager decodes manager account data.
func DecodeManager(data []byte) (Manager, error) {
	d, err := anchor.CheckAccount(data, DiscManagerAccount)
	if err != nil {
		return Manager{}, fmt.Errorf("manager: %w", err)
	}
	m := Manager{
		Initialized: d.Bool(),
		Admin:       d.PublicKey(),
		FeeReceiver: d.PublicKey(),
		UserFee:     d.U32(),
	}
	if err := d.Err(); err != nil {
		return Manager{}, fmt.Errorf("manager: %w", err)
	}
	return m, nil
}

// Encode serializes m.
func (m Manager) Encode() []byte {
	return anchor.NewEncoder(DiscManagerAccount).
		Bool(m.Initialized).
		PublicKey(m.Admin).
		PublicKey(m.FeeReceiver).
		U32(m.UserFee).
		Bytes()
}

// DecodeProject decodes project account data.
func DecodeProject(data []byte) (Project, error) {
	d, err := anchor.CheckAccount(data, DiscProjectAccount)
	if err != nil {
		return Project{}, fmt.Errorf("distribute project: %w", err)
	}
	pr := Project{Admin: d.PublicKey()}
	if err := d.Err(); err != nil {
		return Project{}, fmt.Errorf("distribute project: %w", err)
	}
	return pr, nil
}

// Encode serializes pr.
func (pr Project) Encode() []byte {
	return anchor.NewEncoder(DiscProjectAccount).PublicKey(pr.Admin).Bytes()
}
