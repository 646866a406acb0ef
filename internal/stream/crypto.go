package stream

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// Keypair is an X25519 static keypair, persisted per spec §6
// ("./.marlin/keys/static holds the 32-byte X25519 secret key").
type Keypair struct {
	Secret [32]byte
	Public [32]byte
}

// GenerateKeypair creates a fresh X25519 keypair.
func GenerateKeypair() (Keypair, error) {
	var kp Keypair
	if _, err := io.ReadFull(rand.Reader, kp.Secret[:]); err != nil {
		return Keypair{}, err
	}
	curve25519.ScalarBaseMult(&kp.Public, &kp.Secret)
	return kp, nil
}

// PublicFromSecret derives the public half of an existing secret, used
// when loading a persisted key file.
func PublicFromSecret(secret [32]byte) [32]byte {
	var pub [32]byte
	curve25519.ScalarBaseMult(&pub, &secret)
	return pub
}

// sessionKeys are the two per-direction symmetric keys derived at
// handshake (spec §3 "per-direction symmetric key derived at
// handshake").
type sessionKeys struct {
	sendAEAD cipher.AEAD
	recvAEAD cipher.AEAD
}

// deriveSessionKeys runs X25519 then HKDF-expands into two direction
// keys, labeled so dialer-send == listener-recv and vice versa.
func deriveSessionKeys(mySecret, peerPublic [32]byte, iAmInitiator bool) (sessionKeys, error) {
	shared, err := curve25519.X25519(mySecret[:], peerPublic[:])
	if err != nil {
		return sessionKeys{}, fmt.Errorf("stream: X25519: %w", err)
	}

	initToResp, err := hkdfExpand(shared, "marlin-stream initiator->responder")
	if err != nil {
		return sessionKeys{}, err
	}
	respToInit, err := hkdfExpand(shared, "marlin-stream responder->initiator")
	if err != nil {
		return sessionKeys{}, err
	}

	sendKey, recvKey := initToResp, respToInit
	if !iAmInitiator {
		sendKey, recvKey = respToInit, initToResp
	}

	sendAEAD, err := chacha20poly1305.NewX(sendKey)
	if err != nil {
		return sessionKeys{}, err
	}
	recvAEAD, err := chacha20poly1305.NewX(recvKey)
	if err != nil {
		return sessionKeys{}, err
	}
	return sessionKeys{sendAEAD: sendAEAD, recvAEAD: recvAEAD}, nil
}

func hkdfExpand(secret []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	out := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// packetNonce expands an 8-byte packet number into the 24-byte XChaCha20
// nonce the AEAD suite requires, left-padded with zero.
func packetNonce(packetNumber uint64) [chacha20poly1305.NonceSizeX]byte {
	var nonce [chacha20poly1305.NonceSizeX]byte
	binary.BigEndian.PutUint64(nonce[chacha20poly1305.NonceSizeX-8:], packetNumber)
	return nonce
}

// sealPayload encrypts payload into a freshly allocated slice (tag
// appended), authenticating aad (the packet header), per spec §4.1.1.
func sealPayload(aead cipher.AEAD, packetNumber uint64, aad, payload []byte) []byte {
	nonce := packetNonce(packetNumber)
	return aead.Seal(nil, nonce[:], payload, aad)
}

// openPayload decrypts and authenticates an inbound packet's payload.
func openPayload(aead cipher.AEAD, packetNumber uint64, aad, ciphertext []byte) ([]byte, error) {
	nonce := packetNonce(packetNumber)
	return aead.Open(nil, nonce[:], ciphertext, aad)
}
