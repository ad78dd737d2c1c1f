package reconcile

import (
	"encoding/binary"
	"testing"

	"github.com/brojonat/distadmin/service/distributor"
	"github.com/brojonat/distadmin/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var computeBudgetProgram = solanago.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

func TestKindProfile(t *testing.T) {
	tests := []struct {
		kind Kind
		want Profile
	}{
		{KindSetAdmin, Profile{DualEndpoint: true, WaitForConfirmation: false}},
		{KindSetClawbackReceiver, Profile{DualEndpoint: false, WaitForConfirmation: false}},
		{KindSetClawbackStartTs, Profile{DualEndpoint: false, WaitForConfirmation: true}},
		{Kind("bogus"), Profile{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Profile())
		})
	}
}

func TestOperation_Satisfied(t *testing.T) {
	admin := solanago.NewWallet().PublicKey()
	receiver, err := NewSetClawbackReceiver(solanago.NewWallet().PublicKey(), testMint)
	require.NoError(t, err)

	acct := &distributor.MerkleDistributor{
		Admin:            admin,
		ClawbackReceiver: receiver.TokenAccount,
		ClawbackStartTs:  42,
	}

	assert.True(t, SetAdmin{NewAdmin: admin}.Satisfied(acct))
	assert.False(t, SetAdmin{NewAdmin: solanago.NewWallet().PublicKey()}.Satisfied(acct))
	assert.True(t, receiver.Satisfied(acct))
	assert.False(t, SetClawbackReceiver{TokenAccount: admin}.Satisfied(acct))
	assert.True(t, SetClawbackStartTs{NewTs: 42}.Satisfied(acct))
	assert.False(t, SetClawbackStartTs{NewTs: 43}.Satisfied(acct))
}

func TestOperation_Messages(t *testing.T) {
	admin := solanago.NewWallet().PublicKey()
	var sig solanago.Signature
	sig[0] = 1

	assert.Equal(t, "already the same skip airdrop version 3", SetAdmin{}.SkipMessage(3))
	assert.Equal(t, "already set slot skip airdrop version 3", SetClawbackStartTs{}.SkipMessage(3))
	assert.Equal(t,
		"Successfully set admin "+admin.String()+" airdrop version 2 ! signature: "+sig.String(),
		SetAdmin{NewAdmin: admin}.SuccessMessage(2, sig),
	)
	assert.Equal(t,
		"Successfully set clawback start ts 99 airdrop version 2 ! signature: "+sig.String(),
		SetClawbackStartTs{NewTs: 99}.SuccessMessage(2, sig),
	)
}

func TestSetClawbackReceiver_TargetsAssociatedTokenAccount(t *testing.T) {
	owner := solanago.NewWallet().PublicKey()
	op, err := NewSetClawbackReceiver(owner, testMint)
	require.NoError(t, err)

	want, _, err := solanago.FindAssociatedTokenAddress(owner, testMint)
	require.NoError(t, err)
	assert.Equal(t, want, op.TokenAccount)
	assert.Equal(t, want.String(), op.Target())
}

func TestOperationSpec_RoundTrip(t *testing.T) {
	receiver, err := NewSetClawbackReceiver(solanago.NewWallet().PublicKey(), testMint)
	require.NoError(t, err)

	ops := []Operation{
		SetAdmin{NewAdmin: solanago.NewWallet().PublicKey()},
		receiver,
		SetClawbackStartTs{NewTs: -5},
	}
	for _, op := range ops {
		t.Run(string(op.Kind()), func(t *testing.T) {
			got, err := OperationFromSpec(SpecOf(op), testMint)
			require.NoError(t, err)
			assert.Equal(t, op, got)
		})
	}
}

func TestOperationFromSpec_Invalid(t *testing.T) {
	tests := []OperationSpec{
		{Kind: KindSetAdmin, Value: "not-a-key"},
		{Kind: KindSetClawbackReceiver, Value: ""},
		{Kind: KindSetClawbackStartTs, Value: "soon"},
		{Kind: "close_distributor", Value: "1"},
	}
	for _, spec := range tests {
		_, err := OperationFromSpec(spec, testMint)
		assert.Error(t, err, "spec %+v", spec)
	}
}

func TestBuildInstructions(t *testing.T) {
	address := solanago.NewWallet().PublicKey()
	admin := solanago.NewWallet().PublicKey()
	acct := &distributor.MerkleDistributor{Admin: admin}
	op := SetAdmin{NewAdmin: solanago.NewWallet().PublicKey()}
	fee := uint64(10_000)

	t.Run("broadcast with fee puts compute budget first", func(t *testing.T) {
		ixs := BuildInstructions(op, testProgramID, address, acct, admin, &fee, solana.ModeBroadcast)
		require.Len(t, ixs, 2)
		assert.Equal(t, computeBudgetProgram, ixs[0].ProgramID())
		assert.Equal(t, testProgramID, ixs[1].ProgramID())

		data, err := ixs[0].Data()
		require.NoError(t, err)
		require.Len(t, data, 9)
		assert.Equal(t, byte(3), data[0], "SetComputeUnitPrice discriminant")
		assert.Equal(t, fee, binary.LittleEndian.Uint64(data[1:]))
	})

	t.Run("broadcast without fee", func(t *testing.T) {
		ixs := BuildInstructions(op, testProgramID, address, acct, admin, nil, solana.ModeBroadcast)
		require.Len(t, ixs, 1)
		assert.Equal(t, testProgramID, ixs[0].ProgramID())
	})

	t.Run("offline never carries a fee", func(t *testing.T) {
		ixs := BuildInstructions(op, testProgramID, address, acct, admin, &fee, solana.ModeOffline)
		require.Len(t, ixs, 1)
		assert.Equal(t, testProgramID, ixs[0].ProgramID())
	})

	t.Run("set admin names the on-chain admin", func(t *testing.T) {
		signer := solanago.NewWallet().PublicKey()
		ixs := BuildInstructions(op, testProgramID, address, acct, signer, nil, solana.ModeBroadcast)
		accounts := ixs[0].Accounts()
		require.Len(t, accounts, 3)
		assert.Equal(t, address, accounts[0].PublicKey)
		assert.Equal(t, admin, accounts[1].PublicKey)
		assert.True(t, accounts[1].IsSigner)
		assert.Equal(t, op.NewAdmin, accounts[2].PublicKey)
	})
}

func TestBuildInstructions_ClawbackReceiverAuthority(t *testing.T) {
	address := solanago.NewWallet().PublicKey()
	admin := solanago.NewWallet().PublicKey()
	signer := solanago.NewWallet().PublicKey()
	acct := &distributor.MerkleDistributor{Admin: admin}
	op, err := NewSetClawbackReceiver(solanago.NewWallet().PublicKey(), testMint)
	require.NoError(t, err)

	broadcast := BuildInstructions(op, testProgramID, address, acct, signer, nil, solana.ModeBroadcast)
	accounts := broadcast[0].Accounts()
	require.Len(t, accounts, 3)
	assert.Equal(t, op.TokenAccount, accounts[1].PublicKey)
	assert.Equal(t, signer, accounts[2].PublicKey, "broadcast signs with the keypair")

	offline := BuildInstructions(op, testProgramID, address, acct, signer, nil, solana.ModeOffline)
	assert.Equal(t, admin, offline[0].Accounts()[2].PublicKey, "offline names the on-chain admin")
}
