package solana

import (
	"errors"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrAccountNotFound means no account exists at the derived distributor address.
	ErrAccountNotFound = errors.New("distributor account not found")

	// ErrUnexpectedOwner means the account exists but belongs to another program.
	ErrUnexpectedOwner = errors.New("account not owned by distributor program")

	// ErrSigning means the transaction could not be signed with the configured keypair.
	// Retrying cannot fix it.
	ErrSigning = errors.New("failed to sign transaction")

	// ErrEncoding means the offline message could not be serialized.
	ErrEncoding = errors.New("failed to encode message")

	// ErrTransactionFailed means the transaction landed but the program rejected it.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrConfirmationTimeout means the transaction was not confirmed in time.
	ErrConfirmationTimeout = errors.New("timed out waiting for confirmation")
)

// DeliveryMode selects how instructions leave the process. One mode per run.
type DeliveryMode int

const (
	// ModeBroadcast signs and submits transactions.
	ModeBroadcast DeliveryMode = iota
	// ModeOffline prints an unsigned base-58 message for external signing.
	ModeOffline
)

func (m DeliveryMode) String() string {
	switch m {
	case ModeBroadcast:
		return "broadcast"
	case ModeOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// DispatchRequest is everything a Dispatcher needs to deliver one instruction list.
type DispatchRequest struct {
	Version      uint64
	Instructions []solana.Instruction

	// Admin is the current on-chain admin. Offline messages name it as fee payer.
	Admin solana.PublicKey

	// DualEndpoint submits through the send endpoint instead of the primary.
	DualEndpoint bool
	// WaitForConfirmation blocks until the signature is confirmed.
	WaitForConfirmation bool
}

// DispatchResult describes a delivered instruction list.
type DispatchResult struct {
	// Signature is set in broadcast mode.
	Signature solana.Signature
	// Message is the base-58 encoded unsigned message in offline mode.
	Message string
	// Confirmed is true when the dispatcher waited for and observed confirmation.
	Confirmed bool
}
