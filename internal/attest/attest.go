// Package attest implements the pluggable message-attestation capability
// of spec §4.3: a fixed-size signature blob appended to every pubsub
// message, attributing it to the secp256k1 address that signed it.
package attest

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Attester is the capability interface spec §4.3 describes: attest signs
// a message header on origination, verify recovers the signer's address
// on receipt, and the two size hooks let the pubsub framer figure out
// how many trailing bytes belong to the attestation without out-of-band
// length fields.
type Attester interface {
	// AttestationSize returns the fixed number of bytes Attest produces.
	AttestationSize() int
	// Attest signs header and returns the attestation bytes to append.
	Attest(header []byte) ([]byte, error)
	// Verify checks attestation against header, returning the recovered
	// signer address when ok is true.
	Verify(header, attestation []byte) (ok bool, address [20]byte, err error)
	// ParseSize reads the length tag at the front of buf (which holds at
	// least 2 bytes) and returns the total attestation size, tag
	// included, so a reader can slice it off a frame.
	ParseSize(buf []byte) (int, error)
}

// EmptyAttester is the no-op attester: every message is unattested, used
// for private deployments or testing where spec §4.3's Non-goals apply.
type EmptyAttester struct{}

func (EmptyAttester) AttestationSize() int { return 0 }

func (EmptyAttester) Attest(_ []byte) ([]byte, error) { return nil, nil }

func (EmptyAttester) Verify(_, _ []byte) (bool, [20]byte, error) {
	return true, [20]byte{}, nil
}

func (EmptyAttester) ParseSize(_ []byte) (int, error) { return 0, nil }

// sigAttestationSize is 2 bytes of length tag + 64 bytes of compact
// ECDSA signature (r||s) + 1 byte of recovery id.
const sigAttestationSize = 67

// SigAttester signs with a secp256k1 key over the Keccak-256 digest of
// the header, go-ethereum style (spec §4.3's default attester).
type SigAttester struct {
	key *ecdsa.PrivateKey
}

// NewSigAttester wraps a 32-byte secp256k1 private key, as loaded from a
// keystore file.
func NewSigAttester(privateKey []byte) (*SigAttester, error) {
	k, err := ethcrypto.ToECDSA(privateKey)
	if err != nil {
		return nil, fmt.Errorf("attest: invalid private key: %w", err)
	}
	return &SigAttester{key: k}, nil
}

func (a *SigAttester) AttestationSize() int { return sigAttestationSize }

func (a *SigAttester) Attest(header []byte) ([]byte, error) {
	hash := ethcrypto.Keccak256(header)
	sig, err := ethcrypto.Sign(hash, a.key)
	if err != nil {
		return nil, fmt.Errorf("attest: sign: %w", err)
	}
	out := make([]byte, sigAttestationSize)
	binary.BigEndian.PutUint16(out[0:2], sigAttestationSize)
	copy(out[2:66], sig[0:64])
	out[66] = sig[64]
	return out, nil
}

func (a *SigAttester) Verify(header, attestation []byte) (bool, [20]byte, error) {
	if len(attestation) != sigAttestationSize {
		return false, [20]byte{}, fmt.Errorf("attest: want %d bytes, got %d", sigAttestationSize, len(attestation))
	}
	if binary.BigEndian.Uint16(attestation[0:2]) != sigAttestationSize {
		return false, [20]byte{}, fmt.Errorf("attest: bad length tag")
	}
	sig := make([]byte, 65)
	copy(sig[0:64], attestation[2:66])
	sig[64] = attestation[66]
	if sig[64] > 1 {
		return false, [20]byte{}, fmt.Errorf("attest: bad recovery id %d", sig[64])
	}
	hash := ethcrypto.Keccak256(header)
	pubkey, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return false, [20]byte{}, nil
	}
	return true, ethcrypto.PubkeyToAddress(*pubkey), nil
}

func (a *SigAttester) ParseSize(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("attest: short buffer for length tag")
	}
	n := int(binary.BigEndian.Uint16(buf[0:2]))
	if n != sigAttestationSize {
		return 0, fmt.Errorf("attest: unexpected length tag %d", n)
	}
	return n, nil
}
