package chain

import (
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
)

// Well-known dev derivation paths. Never point these at a network holding value.
const (
	DevAlice = "//Alice"
	DevBob   = "//Bob"

	// GenericNetwork is the generic Substrate SS58 prefix.
	GenericNetwork uint16 = 42
)

// Signer is the identity that signs every submitted extrinsic.
type Signer struct {
	Pair signature.KeyringPair
}

// DeriveSigner derives an sr25519 key pair from a secret URI such as "//Alice"
// or "<mnemonic>//hard/soft".
func DeriveSigner(uri string, network uint16) (Signer, error) {
	pair, err := signature.KeyringPairFromSecret(uri, network)
	if err != nil {
		return Signer{}, fmt.Errorf("derive key pair: %w", err)
	}
	return Signer{Pair: pair}, nil
}

// Address returns the SS58 address of the signer.
func (s Signer) Address() string {
	return s.Pair.Address
}

// PublicKey returns the raw 32 byte public key.
func (s Signer) PublicKey() []byte {
	return s.Pair.PublicKey
}
