package pubsub

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ClientKey is spec §3's 20-byte peer identity, derived from a
// connection's static public key the same way an Ethereum address is
// derived from a secp256k1 key: the low 20 bytes of its Keccak-256.
type ClientKey [20]byte

// DeriveClientKey hashes a peer's static public key into its ClientKey.
func DeriveClientKey(staticPublic [32]byte) ClientKey {
	h := ethcrypto.Keccak256(staticPublic[:])
	var k ClientKey
	copy(k[:], h[len(h)-20:])
	return k
}
