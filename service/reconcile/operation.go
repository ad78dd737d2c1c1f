package reconcile

import (
	"fmt"
	"strconv"

	"github.com/brojonat/distadmin/service/distributor"
	"github.com/gagliardetto/solana-go"
)

// Kind names one of the administrative operations.
type Kind string

const (
	KindSetAdmin            Kind = "set_admin"
	KindSetClawbackReceiver Kind = "set_clawback_receiver"
	KindSetClawbackStartTs  Kind = "set_clawback_start_ts"
)

// Profile is the delivery behaviour fixed per operation kind.
type Profile struct {
	// DualEndpoint submits through the dedicated send endpoint.
	DualEndpoint bool
	// WaitForConfirmation blocks until the transaction is confirmed.
	WaitForConfirmation bool
}

var profiles = map[Kind]Profile{
	KindSetAdmin:            {DualEndpoint: true, WaitForConfirmation: false},
	KindSetClawbackReceiver: {DualEndpoint: false, WaitForConfirmation: false},
	KindSetClawbackStartTs:  {DualEndpoint: false, WaitForConfirmation: true},
}

// Profile returns the delivery profile for k. Unknown kinds get the zero profile.
func (k Kind) Profile() Profile {
	return profiles[k]
}

// Operation is one administrative change applied to every selected version.
type Operation interface {
	Kind() Kind
	// Target is the desired value as printed in progress lines.
	Target() string
	// Satisfied reports whether acct already holds the desired value.
	Satisfied(acct *distributor.MerkleDistributor) bool
	// Authority is the admin account the instruction names.
	// signer is the zero key in offline mode.
	Authority(acct *distributor.MerkleDistributor, signer solana.PublicKey) solana.PublicKey
	Instruction(programID, address, authority solana.PublicKey) solana.Instruction
	SkipMessage(version uint64) string
	SuccessMessage(version uint64, sig solana.Signature) string
}

// SetAdmin transfers the distributor admin.
type SetAdmin struct {
	NewAdmin solana.PublicKey
}

func (o SetAdmin) Kind() Kind     { return KindSetAdmin }
func (o SetAdmin) Target() string { return o.NewAdmin.String() }

func (o SetAdmin) Satisfied(acct *distributor.MerkleDistributor) bool {
	return acct.Admin.Equals(o.NewAdmin)
}

func (o SetAdmin) Authority(acct *distributor.MerkleDistributor, _ solana.PublicKey) solana.PublicKey {
	return acct.Admin
}

func (o SetAdmin) Instruction(programID, address, authority solana.PublicKey) solana.Instruction {
	return distributor.NewSetAdminInstruction(programID, address, authority, o.NewAdmin)
}

func (o SetAdmin) SkipMessage(version uint64) string {
	return fmt.Sprintf("already the same skip airdrop version %d", version)
}

func (o SetAdmin) SuccessMessage(version uint64, sig solana.Signature) string {
	return fmt.Sprintf("Successfully set admin %s airdrop version %d ! signature: %s", o.NewAdmin, version, sig)
}

// SetClawbackReceiver points the clawback at the receiver's token account for the mint.
type SetClawbackReceiver struct {
	// Receiver is the wallet that owns TokenAccount.
	Receiver     solana.PublicKey
	TokenAccount solana.PublicKey
}

// NewSetClawbackReceiver derives the associated token account of receiver for mint.
func NewSetClawbackReceiver(receiver, mint solana.PublicKey) (SetClawbackReceiver, error) {
	ata, err := distributor.ClawbackReceiverFor(receiver, mint)
	if err != nil {
		return SetClawbackReceiver{}, err
	}
	return SetClawbackReceiver{Receiver: receiver, TokenAccount: ata}, nil
}

func (o SetClawbackReceiver) Kind() Kind     { return KindSetClawbackReceiver }
func (o SetClawbackReceiver) Target() string { return o.TokenAccount.String() }

func (o SetClawbackReceiver) Satisfied(acct *distributor.MerkleDistributor) bool {
	return acct.ClawbackReceiver.Equals(o.TokenAccount)
}

// Authority is the signing keypair when broadcasting, the on-chain admin otherwise.
func (o SetClawbackReceiver) Authority(acct *distributor.MerkleDistributor, signer solana.PublicKey) solana.PublicKey {
	if signer.IsZero() {
		return acct.Admin
	}
	return signer
}

func (o SetClawbackReceiver) Instruction(programID, address, authority solana.PublicKey) solana.Instruction {
	return distributor.NewSetClawbackReceiverInstruction(programID, address, o.TokenAccount, authority)
}

func (o SetClawbackReceiver) SkipMessage(version uint64) string {
	return fmt.Sprintf("already the same skip airdrop version %d", version)
}

func (o SetClawbackReceiver) SuccessMessage(version uint64, sig solana.Signature) string {
	return fmt.Sprintf("Successfully set clawback receiver %s airdrop version %d ! signature: %s", o.TokenAccount, version, sig)
}

// SetClawbackStartTs changes the clawback start timestamp.
type SetClawbackStartTs struct {
	NewTs int64
}

func (o SetClawbackStartTs) Kind() Kind     { return KindSetClawbackStartTs }
func (o SetClawbackStartTs) Target() string { return strconv.FormatInt(o.NewTs, 10) }

func (o SetClawbackStartTs) Satisfied(acct *distributor.MerkleDistributor) bool {
	return acct.ClawbackStartTs == o.NewTs
}

func (o SetClawbackStartTs) Authority(acct *distributor.MerkleDistributor, _ solana.PublicKey) solana.PublicKey {
	return acct.Admin
}

func (o SetClawbackStartTs) Instruction(programID, address, authority solana.PublicKey) solana.Instruction {
	return distributor.NewSetClawbackStartTsInstruction(programID, address, authority, o.NewTs)
}

func (o SetClawbackStartTs) SkipMessage(version uint64) string {
	return fmt.Sprintf("already set slot skip airdrop version %d", version)
}

func (o SetClawbackStartTs) SuccessMessage(version uint64, sig solana.Signature) string {
	return fmt.Sprintf("Successfully set clawback start ts %d airdrop version %d ! signature: %s", o.NewTs, version, sig)
}

// OperationSpec is the serializable form of an Operation, used as
// workflow input and in audit records.
type OperationSpec struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value"`
}

// SpecOf returns the serializable form of op. Receiver changes carry the
// owner wallet so the token account can be re-derived.
func SpecOf(op Operation) OperationSpec {
	if r, ok := op.(SetClawbackReceiver); ok {
		return OperationSpec{Kind: r.Kind(), Value: r.Receiver.String()}
	}
	return OperationSpec{Kind: op.Kind(), Value: op.Target()}
}

// OperationFromSpec rebuilds an Operation. mint is needed for receiver changes.
func OperationFromSpec(spec OperationSpec, mint solana.PublicKey) (Operation, error) {
	switch spec.Kind {
	case KindSetAdmin:
		key, err := solana.PublicKeyFromBase58(spec.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid new admin %q: %w", spec.Value, err)
		}
		return SetAdmin{NewAdmin: key}, nil
	case KindSetClawbackReceiver:
		key, err := solana.PublicKeyFromBase58(spec.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid receiver %q: %w", spec.Value, err)
		}
		return NewSetClawbackReceiver(key, mint)
	case KindSetClawbackStartTs:
		ts, err := strconv.ParseInt(spec.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid clawback start ts %q: %w", spec.Value, err)
		}
		return SetClawbackStartTs{NewTs: ts}, nil
	default:
		return nil, fmt.Errorf("unknown operation kind %q", spec.Kind)
	}
}
