package witness

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLpfBloomWitnessMarksOwnKey(t *testing.T) {
	var w LpfBloomWitnesser
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 7)
	}

	filter, err := w.Witness(nil, key)
	require.NoError(t, err)
	require.Len(t, filter, 34)

	found, err := w.Contains(filter, key)
	require.NoError(t, err)
	require.True(t, found)
}

func TestLpfBloomWitnessDoesNotContainUnmarkedKey(t *testing.T) {
	var w LpfBloomWitnesser
	keyA := make([]byte, 32)
	keyB := make([]byte, 32)
	for i := range keyB {
		keyB[i] = 0xff
	}

	filter, err := w.Witness(nil, keyA)
	require.NoError(t, err)

	found, err := w.Contains(filter, keyB)
	require.NoError(t, err)
	require.False(t, found)
}

func TestLpfBloomWitnessAccumulates(t *testing.T) {
	var w LpfBloomWitnesser
	keyA := make([]byte, 32)
	keyB := make([]byte, 32)
	for i := range keyB {
		keyB[i] = byte(i + 100)
	}

	filter, err := w.Witness(nil, keyA)
	require.NoError(t, err)
	filter, err = w.Witness(filter, keyB)
	require.NoError(t, err)

	foundA, _ := w.Contains(filter, keyA)
	foundB, _ := w.Contains(filter, keyB)
	require.True(t, foundA)
	require.True(t, foundB)
}

func TestLegacyWitnesserAcceptsUntaggedForm(t *testing.T) {
	var lpf LpfBloomWitnesser
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	tagged, err := lpf.Witness(nil, key)
	require.NoError(t, err)
	legacy := tagged[2:] // strip the length tag to get the old 32-byte form

	var w LegacyWitnesser
	found, err := w.Contains(legacy, key)
	require.NoError(t, err)
	require.True(t, found)
}

func TestParseSizeDistinguishesVariants(t *testing.T) {
	var lpf LpfBloomWitnesser
	var legacy LegacyWitnesser

	taggedBuf := make([]byte, 34)
	taggedBuf[0], taggedBuf[1] = 0, 34
	n, err := lpf.ParseSize(taggedBuf)
	require.NoError(t, err)
	require.Equal(t, 34, n)

	legacyBuf := make([]byte, 32)
	n, err = legacy.ParseSize(legacyBuf)
	require.NoError(t, err)
	require.Equal(t, 32, n)
}
