package attest

import (
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestSigAttesterSignAndVerify(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	a, err := NewSigAttester(ethcrypto.FromECDSA(key))
	require.NoError(t, err)
	require.Equal(t, sigAttestationSize, a.AttestationSize())

	payload := []byte("relay this block")
	attestation, err := a.Attest(payload)
	require.NoError(t, err)
	require.Len(t, attestation, sigAttestationSize)

	ok, addr, err := a.Verify(payload, attestation)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ethcrypto.PubkeyToAddress(key.PublicKey), addr)
}

func TestSigAttesterTamperedPayloadRecoversDifferentAddress(t *testing.T) {
	key, _ := ethcrypto.GenerateKey()
	a, _ := NewSigAttester(ethcrypto.FromECDSA(key))

	attestation, err := a.Attest([]byte("original"))
	require.NoError(t, err)

	ok, addr, err := a.Verify([]byte("tampered"), attestation)
	require.NoError(t, err)
	require.True(t, ok) // signature still recovers *a* key...
	require.NotEqual(t, ethcrypto.PubkeyToAddress(key.PublicKey), addr, "...but not the signer's")
}

func TestSigAttesterRejectsWrongLength(t *testing.T) {
	key, _ := ethcrypto.GenerateKey()
	a, _ := NewSigAttester(ethcrypto.FromECDSA(key))

	_, _, err := a.Verify([]byte("x"), make([]byte, 10))
	require.Error(t, err)
}

func TestEmptyAttesterAlwaysVerifies(t *testing.T) {
	var a EmptyAttester
	require.Equal(t, 0, a.AttestationSize())
	out, err := a.Attest([]byte("anything"))
	require.NoError(t, err)
	require.Nil(t, out)

	ok, _, err := a.Verify([]byte("anything"), nil)
	require.NoError(t, err)
	require.True(t, ok)
}
