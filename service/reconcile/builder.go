package reconcile

import (
	"github.com/brojonat/distadmin/service/distributor"
	"github.com/brojonat/distadmin/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
)

// BuildInstructions returns the ordered instruction list for one version:
// an optional SetComputeUnitPrice followed by exactly one admin instruction.
// The priority fee only applies in broadcast mode; offline messages stay fee-agnostic.
func BuildInstructions(
	op Operation,
	programID, address solanago.PublicKey,
	acct *distributor.MerkleDistributor,
	signer solanago.PublicKey,
	priorityFee *uint64,
	mode solana.DeliveryMode,
) []solanago.Instruction {
	if mode == solana.ModeOffline {
		signer = solanago.PublicKey{}
	}
	authority := op.Authority(acct, signer)

	ixs := make([]solanago.Instruction, 0, 2)
	if mode == solana.ModeBroadcast && priorityFee != nil {
		ixs = append(ixs, computebudget.NewSetComputeUnitPriceInstruction(*priorityFee).Build())
	}
	return append(ixs, op.Instruction(programID, address, authority))
}
