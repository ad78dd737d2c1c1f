package distributor

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const discriminatorSize = 8

var (
	// AccountDiscriminator prefixes every MerkleDistributor account.
	AccountDiscriminator = anchorDiscriminator("account", "MerkleDistributor")

	ErrInvalidDiscriminator = errors.New("invalid account discriminator")
)

// MerkleDistributor is the on-chain distributor record.
// Field order follows the program's account layout.
type MerkleDistributor struct {
	Bump               uint8
	Version            uint64
	Root               [32]uint8
	Mint               solana.PublicKey
	TokenVault         solana.PublicKey
	MaxTotalClaim      uint64
	MaxNumNodes        uint64
	TotalAmountClaimed uint64
	NumNodesClaimed    uint64
	StartTs            int64
	EndTs              int64
	ClawbackStartTs    int64
	ClawbackReceiver   solana.PublicKey
	Admin              solana.PublicKey
	ClawedBack         bool
	EnableSlot         uint64
	Closable           bool
	Buffer0            [32]uint8
	Buffer1            [32]uint8
	Buffer2            [32]uint8
}

// DecodeAccount validates the discriminator and borsh-decodes a distributor account.
func DecodeAccount(data []byte) (*MerkleDistributor, error) {
	if len(data) < discriminatorSize {
		return nil, fmt.Errorf("%w: data too short (%d bytes)", ErrInvalidDiscriminator, len(data))
	}
	if !bytes.Equal(data[:discriminatorSize], AccountDiscriminator[:]) {
		return nil, fmt.Errorf("%w: got %x, want %x", ErrInvalidDiscriminator, data[:discriminatorSize], AccountDiscriminator)
	}

	var acct MerkleDistributor
	if err := bin.NewBorshDecoder(data[discriminatorSize:]).Decode(&acct); err != nil {
		return nil, fmt.Errorf("failed to decode distributor account: %w", err)
	}
	return &acct, nil
}

// EncodeAccount serializes a distributor account with its discriminator.
// Used to build fixtures for account reads.
func EncodeAccount(acct *MerkleDistributor) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(AccountDiscriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(acct); err != nil {
		return nil, fmt.Errorf("failed to encode distributor account: %w", err)
	}
	return buf.Bytes(), nil
}

// anchorDiscriminator returns sha256("<namespace>:<name>")[:8].
func anchorDiscriminator(namespace, name string) [8]byte {
	h := sha256.Sum256([]byte(namespace + ":" + name))
	var disc [8]byte
	copy(disc[:], h[:8])
	return disc
}
