package distributor

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var seedMerkleDistributor = []byte("MerkleDistributor")

// ErrAddressDerivation is returned when no valid bump exists for the distributor seeds.
var ErrAddressDerivation = errors.New("distributor address derivation failed")

// Address is a derived distributor PDA together with its bump seed.
type Address struct {
	PublicKey solana.PublicKey
	Bump      uint8
}

// DeriveAddress computes the distributor PDA for one airdrop version.
// Seeds are ["MerkleDistributor", base, mint, version_le_u64].
func DeriveAddress(programID, base, mint solana.PublicKey, version uint64) (Address, error) {
	versionBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(versionBytes, version)

	seeds := [][]byte{seedMerkleDistributor, base.Bytes(), mint.Bytes(), versionBytes}
	address, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return Address{}, fmt.Errorf("%w: version %d: %v", ErrAddressDerivation, version, err)
	}

	return Address{PublicKey: address, Bump: bump}, nil
}

// ClawbackReceiverFor returns the associated token account of owner for mint,
// which is what a distributor stores as its clawback receiver.
func ClawbackReceiverFor(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive clawback token account for %s: %w", owner, err)
	}
	return ata, nil
}
