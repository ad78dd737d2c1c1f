package distributor

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// Instruction discriminators for the administrative entrypoints.
var (
	SetAdminDiscriminator            = anchorDiscriminator("global", "set_admin")
	SetClawbackReceiverDiscriminator = anchorDiscriminator("global", "set_clawback_receiver")
	SetClawbackStartTsDiscriminator  = anchorDiscriminator("global", "set_clawback_start_ts")
)

// NewSetAdminInstruction transfers the distributor admin to newAdmin.
// The current admin must sign.
func NewSetAdminInstruction(programID, distributor, admin, newAdmin solana.PublicKey) solana.Instruction {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(distributor, true, false),
		solana.NewAccountMeta(admin, true, true),
		solana.NewAccountMeta(newAdmin, false, false),
	}
	return solana.NewInstruction(programID, accounts, SetAdminDiscriminator[:])
}

// NewSetClawbackReceiverInstruction points the clawback at a new token account.
func NewSetClawbackReceiverInstruction(programID, distributor, newClawbackAccount, admin solana.PublicKey) solana.Instruction {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(distributor, true, false),
		solana.NewAccountMeta(newClawbackAccount, false, false),
		solana.NewAccountMeta(admin, true, true),
	}
	return solana.NewInstruction(programID, accounts, SetClawbackReceiverDiscriminator[:])
}

// NewSetClawbackStartTsInstruction changes the clawback start timestamp.
func NewSetClawbackStartTsInstruction(programID, distributor, admin solana.PublicKey, clawbackStartTs int64) solana.Instruction {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(distributor, true, false),
		solana.NewAccountMeta(admin, true, true),
	}

	data := make([]byte, discriminatorSize+8)
	copy(data, SetClawbackStartTsDiscriminator[:])
	binary.LittleEndian.PutUint64(data[discriminatorSize:], uint64(clawbackStartTs))

	return solana.NewInstruction(programID, accounts, data)
}
