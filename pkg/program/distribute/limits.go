package distribute

import (
	"sync"

	"github.com/Klingon-tech/klingdrop/pkg/program/computebudget"
	"github.com/Klingon-tech/klingdrop/pkg/tx"
	"github.com/Klingon-tech/klingdrop/pkg/types"
)

var (
	maxReceiversStatic = sync.OnceValue(func() int { return probeMaxReceivers(false) })
	maxReceiversTables = sync.OnceValue(func() int { return probeMaxReceivers(true) })
)

// MaxReceivers is the largest receiver count for which a distribution,
// preceded by both compute budget directives, fits in one packet and in the
// compute unit maximum. withTables assumes the fixed accounts are loaded
// from a lookup table built by LookupAddresses.
func MaxReceivers(withTables bool) int {
	if withTables {
		return maxReceiversTables()
	}
	return maxReceiversStatic()
}

// ComputeUnits is the metered cost of distributing to n receivers.
func ComputeUnits(n int) uint32 {
	return BaseComputeUnits + uint32(n)*ReceiverComputeUnits
}

func probeMaxReceivers(withTables bool) int {
	var (
		payer   = types.PublicKey{0xF1}
		admin   = types.PublicKey{0xF2}
		project = types.PublicKey{0xF3}
		mint    = types.PublicKey{0xF4}
	)
	var tables []tx.LookupTable
	if withTables {
		tables = []tx.LookupTable{{
			Key:       types.PublicKey{0xF5},
			Addresses: Default.LookupAddresses(types.None[types.PublicKey](), admin, project, mint, computebudget.ProgramID),
		}}
	}

	best := 0
	for n := 1; ComputeUnits(n) <= computebudget.MaxComputeUnitLimit; n++ {
		receivers := make([]Receiver, n)
		for i := range receivers {
			receivers[i] = Receiver{Owner: types.PublicKey{0x10, byte(i), byte(i >> 8)}, Amount: ^uint64(0)}
		}
		ixs := []tx.Instruction{
			computebudget.SetComputeUnitLimit(computebudget.MaxComputeUnitLimit),
			computebudget.SetComputeUnitPrice(^uint64(0)),
			Default.Distribute(DistributeParams{Payer: payer, Admin: admin, Project: project, Mint: mint, Receivers: receivers}),
		}
		msg, err := tx.CompileMessage(payer, ixs, types.Hash{1}, tables)
		if err != nil || tx.NewTransaction(msg).Size() > tx.PacketDataSize {
			break
		}
		best = n
	}
	return best
}
