package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marlinprotocol/relay/internal/config"
)

func TestStreamConfigFromAppliesCongestionOverrides(t *testing.T) {
	cc := config.CongestionConfig{InitialCwndBytes: 9000, MSSBytes: 1000, MinRTOMillis: 500, MaxRTOMillis: 30000}
	pc := config.PubsubConfig{OutOfOrderHoldCap: 42}

	cfg := streamConfigFrom(cc, pc)

	require.Equal(t, 9000, cfg.InitialCwndBytes)
	require.Equal(t, 1000, cfg.MSSBytes)
	require.Equal(t, 500*time.Millisecond, cfg.MinRTO)
	require.Equal(t, 30*time.Second, cfg.MaxRTO)
	require.Equal(t, 42, cfg.OutOfOrderHoldCap)
}

func TestTrimNewlineStripsTrailingCRLF(t *testing.T) {
	require.Equal(t, []byte("hunter2"), trimNewline([]byte("hunter2\r\n")))
	require.Equal(t, []byte("hunter2"), trimNewline([]byte("hunter2\n")))
	require.Equal(t, []byte("hunter2"), trimNewline([]byte("hunter2")))
}
