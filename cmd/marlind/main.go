// Command marlind runs a Marlin relay node: the reliable-stream
// transport, the pubsub overlay, and the discovery/bridge edges wired
// together per the CLI contract, following moto/run.go's flag-parse ->
// config-load -> component-start shape.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/marlinprotocol/relay/internal/attest"
	"github.com/marlinprotocol/relay/internal/beacon"
	"github.com/marlinprotocol/relay/internal/config"
	"github.com/marlinprotocol/relay/internal/keystore"
	"github.com/marlinprotocol/relay/internal/log"
	"github.com/marlinprotocol/relay/internal/metrics"
	"github.com/marlinprotocol/relay/internal/pubsub"
	"github.com/marlinprotocol/relay/internal/sockaddr"
	"github.com/marlinprotocol/relay/internal/stream"
	"github.com/marlinprotocol/relay/internal/transport"
	"github.com/marlinprotocol/relay/internal/witness"
)

const (
	exitOK            = 0
	exitConfigError   = 1
	exitRuntimeFailure = 255 // spec's "-1", the unsigned process-exit-code convention
)

func main() {
	os.Exit(run())
}

func run() int {
	confPath := flag.String("config", "", "path to JSON node config")
	discoveryAddr := flag.String("discovery-addr", "", "discovery/beacon HTTP poll URL (overrides config)")
	pubsubAddr := flag.String("pubsub-addr", "", "UDP listen address for the pubsub transport (overrides config)")
	beaconAddr := flag.String("beacon-addr", "", "beacon server address (overrides config)")
	keystorePath := flag.String("keystore-path", "./.marlin/keys/static", "path to the static secret keystore file")
	keystorePassPath := flag.String("keystore-pass-path", "", "path to a file holding the keystore passphrase")
	contracts := flag.String("contracts", "", "mainnet|kovan (overrides config)")
	flag.Parse()

	cfg := &config.Config{
		PubsubAddr: *pubsubAddr,
		BeaconAddr: *beaconAddr,
		Contracts:  *contracts,
		Congestion: config.DefaultCongestion(),
		Pubsub:     config.DefaultPubsub(),
	}
	if *confPath != "" {
		if err := config.Load(*confPath); err != nil {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			return exitConfigError
		}
		cfg = config.GlobalCfg
		if *pubsubAddr != "" {
			cfg.PubsubAddr = *pubsubAddr
		}
		if *beaconAddr != "" {
			cfg.BeaconAddr = *beaconAddr
		}
		if *contracts != "" {
			cfg.Contracts = *contracts
		}
	}
	if *discoveryAddr != "" {
		cfg.DiscoveryAddr = *discoveryAddr
	}
	if cfg.PubsubAddr == "" {
		fmt.Fprintln(os.Stderr, "config error: --pubsub-addr (or config pubsub_addr) is required")
		return exitConfigError
	}

	logger := log.New(log.Config{Path: cfg.Log.Path, Level: cfg.Log.Level, Console: cfg.Log.Path == ""})
	defer logger.Sync()
	logger.Info("marlind starting", zap.String("pubsub_addr", cfg.PubsubAddr), zap.String("contracts", cfg.Contracts))

	passphrase, err := readPassphrase(*keystorePassPath)
	if err != nil {
		logger.Error("keystore passphrase", zap.Error(err))
		return exitConfigError
	}
	staticSecret, err := keystore.LoadOrCreate(*keystorePath, passphrase)
	if err != nil {
		logger.Error("keystore load", zap.Error(err))
		return exitRuntimeFailure
	}

	self, err := sockaddr.FromString(cfg.PubsubAddr)
	if err != nil {
		logger.Error("bad pubsub_addr", zap.Error(err))
		return exitConfigError
	}

	// The attestation signing key is derived from the same persisted
	// secret as the noise-style session key (spec §6 names one
	// persistent file; a 32-byte scalar is valid input to both X25519
	// and, with overwhelming probability, secp256k1).
	attester, err := attest.NewSigAttester(staticSecret[:])
	if err != nil {
		logger.Error("derive signing key", zap.Error(err))
		return exitRuntimeFailure
	}
	staticPublic := stream.PublicFromSecret(staticSecret)

	registry := prometheus.NewRegistry()
	streamCollector := metrics.NewStreamCollector()
	pubsubMetrics := metrics.NewPubsubMetrics()
	registry.MustRegister(streamCollector)
	pubsubMetrics.MustRegisterAll(registry)

	app := &loggingApplication{log: logger.Named("app")}

	var node *pubsub.Node
	streamCfg := streamConfigFrom(cfg.Congestion, cfg.Pubsub)
	mgr, err := transport.New(self, staticSecret, streamCfg, func(sockaddr.SocketAddress) stream.Delegate {
		return delegateWithMetrics{inner: node, sc: streamCollector}
	})
	if err != nil {
		logger.Error("transport manager init", zap.Error(err))
		return exitRuntimeFailure
	}
	node = pubsub.New(mgr, staticPublic[:], attester, witness.LpfBloomWitnesser{}, app, cfg.Pubsub, pubsubMetrics)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, registry, logger)
	}

	var beaconClient *beacon.Client
	if cfg.DiscoveryAddr != "" {
		consumer := beacon.FilteredConsumer{Want: cfg.Pubsub.ProtocolID, Next: discoveryBridge{mgr: mgr, log: logger.Named("beacon")}}
		beaconClient = beacon.NewClient(cfg.DiscoveryAddr, 30*time.Second, consumer, logger.Named("beacon"))
		go beaconClient.Run()
	}

	go node.Run()
	go func() {
		if err := mgr.Run(); err != nil {
			logger.Error("transport manager exited", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("marlind shutting down")
	node.Stop()
	if beaconClient != nil {
		beaconClient.Stop()
	}
	_ = mgr.Close()
	return exitOK
}

func readPassphrase(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore passphrase: %w", err)
	}
	return trimNewline(buf), nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func streamConfigFrom(cc config.CongestionConfig, pc config.PubsubConfig) stream.Config {
	base := stream.DefaultConfig()
	base.InitialCwndBytes = cc.InitialCwndBytes
	base.MSSBytes = cc.MSSBytes
	base.MinRTO = time.Duration(cc.MinRTOMillis) * time.Millisecond
	base.MaxRTO = time.Duration(cc.MaxRTOMillis) * time.Millisecond
	base.OutOfOrderHoldCap = pc.OutOfOrderHoldCap
	return base
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server", zap.Error(err))
	}
}

// delegateWithMetrics wraps a stream.Delegate so every connection
// registers/unregisters its live gauges with the Prometheus collector
// around the delegate's own lifecycle callbacks.
type delegateWithMetrics struct {
	inner stream.Delegate
	sc    *metrics.StreamCollector
}

func (d delegateWithMetrics) DidConnect(conn *stream.Connection) {
	d.sc.Register(conn.RemoteAddr().String(), conn)
	d.inner.DidConnect(conn)
}

func (d delegateWithMetrics) DidClose(conn *stream.Connection, reason error) {
	d.sc.Unregister(conn.RemoteAddr().String())
	d.inner.DidClose(conn, reason)
}

func (d delegateWithMetrics) DidRecvStreamData(conn *stream.Connection, streamID uint16, data []byte) {
	d.inner.DidRecvStreamData(conn, streamID, data)
}

func (d delegateWithMetrics) DidRecvSkipStream(conn *stream.Connection, streamID uint16) {
	d.inner.DidRecvSkipStream(conn, streamID)
}

// discoveryBridge dials any peer the beacon advertises for our
// protocol, priming the transport manager's connection table ahead of
// the first SUBSCRIBE (spec §6's beacon consumer contract).
type discoveryBridge struct {
	mgr *transport.Manager
	log *zap.Logger
}

func (d discoveryBridge) NewPeerProtocol(e beacon.Event) {
	d.log.Info("discovered peer", zap.String("addr", e.Addr.String()), zap.Uint32("protocol", e.Protocol))
	d.mgr.GetOrCreate(e.Addr)
}

// loggingApplication is the default consumer of forwarded pubsub
// messages when no richer application is wired in: it just logs
// delivery, matching the "otherwise opaque" scope of spec §3 for the
// core/application boundary.
type loggingApplication struct {
	log *zap.Logger
}

func (a *loggingApplication) DidRecv(channel pubsub.ChannelID, messageID uint64, origin [20]byte, payload []byte) {
	a.log.Debug("message delivered",
		zap.Uint16("channel", uint16(channel)),
		zap.Uint64("message_id", messageID),
		zap.Binary("origin", origin[:]),
		zap.Int("bytes", len(payload)),
	)
}
