package beacon

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marlinprotocol/relay/internal/sockaddr"
)

// wirePeer is the JSON shape returned by the discovery endpoint's
// peer-list poll. The beacon server's own wire format is opaque per
// spec; this is the minimal shape a JSON-polling client needs.
type wirePeer struct {
	ClientKey string `json:"client_key"`
	Addr      string `json:"addr"`
	StaticPK  string `json:"static_pk"`
	Protocol  uint32 `json:"protocol"`
	Version   uint16 `json:"version"`
}

// Client polls a discovery endpoint on an interval and delivers
// new_peer_protocol events to a Consumer, the way moto's config.Reload
// re-reads its JSON source on a schedule rather than reacting to pushes.
type Client struct {
	url      string
	interval time.Duration
	consumer Consumer
	http     *http.Client
	log      *zap.Logger

	seen map[[20]byte]struct{}
	stop chan struct{}
}

// NewClient builds a polling beacon client against url, delivering
// events to consumer every interval.
func NewClient(url string, interval time.Duration, consumer Consumer, log *zap.Logger) *Client {
	return &Client{
		url:      url,
		interval: interval,
		consumer: consumer,
		http:     &http.Client{Timeout: interval},
		log:      log,
		seen:     make(map[[20]byte]struct{}),
		stop:     make(chan struct{}),
	}
}

// Run polls until Stop is called, blocking the calling goroutine.
func (c *Client) Run() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	c.pollOnce()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.pollOnce()
		}
	}
}

// Stop ends the polling loop.
func (c *Client) Stop() {
	close(c.stop)
}

func (c *Client) pollOnce() {
	resp, err := c.http.Get(c.url)
	if err != nil {
		if c.log != nil {
			c.log.Warn("beacon poll failed", zap.Error(err))
		}
		return
	}
	defer resp.Body.Close()

	var peers []wirePeer
	if err := json.NewDecoder(resp.Body).Decode(&peers); err != nil {
		if c.log != nil {
			c.log.Warn("beacon poll: bad json", zap.Error(err))
		}
		return
	}

	for _, p := range peers {
		e, err := decodePeer(p)
		if err != nil {
			if c.log != nil {
				c.log.Warn("beacon poll: bad peer entry", zap.Error(err))
			}
			continue
		}
		if _, dup := c.seen[e.ClientKey]; dup {
			continue
		}
		c.seen[e.ClientKey] = struct{}{}
		c.consumer.NewPeerProtocol(e)
	}
}

func decodePeer(p wirePeer) (Event, error) {
	ckBytes, err := hex.DecodeString(p.ClientKey)
	if err != nil || len(ckBytes) != 20 {
		return Event{}, fmt.Errorf("beacon: bad client_key %q", p.ClientKey)
	}
	pkBytes, err := hex.DecodeString(p.StaticPK)
	if err != nil || len(pkBytes) != 32 {
		return Event{}, fmt.Errorf("beacon: bad static_pk %q", p.StaticPK)
	}
	addr, err := sockaddr.FromString(p.Addr)
	if err != nil {
		return Event{}, fmt.Errorf("beacon: bad addr %q: %w", p.Addr, err)
	}

	var e Event
	copy(e.ClientKey[:], ckBytes)
	copy(e.StaticPK[:], pkBytes)
	e.Addr = addr
	e.Protocol = p.Protocol
	e.Version = p.Version
	return e, nil
}
