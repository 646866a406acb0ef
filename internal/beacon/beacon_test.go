package beacon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type collectingConsumer struct {
	events []Event
}

func (c *collectingConsumer) NewPeerProtocol(e Event) {
	c.events = append(c.events, e)
}

func TestFilteredConsumerDropsWrongProtocol(t *testing.T) {
	inner := &collectingConsumer{}
	f := FilteredConsumer{Want: 0x10000000, Next: inner}

	f.NewPeerProtocol(Event{Protocol: 0x10000000})
	f.NewPeerProtocol(Event{Protocol: 0x20000000})

	require.Len(t, inner.events, 1)
	require.Equal(t, uint32(0x10000000), inner.events[0].Protocol)
}

func TestClientPollOnceDeliversAndDedups(t *testing.T) {
	peer := wirePeer{
		ClientKey: "0102030405060708090a0b0c0d0e0f1011121314",
		Addr:      "127.0.0.1:8000",
		StaticPK:  "0102030405060708090a0b0c0d0e0f100102030405060708090a0b0c0d0e0f10",
		Protocol:  0x10000000,
		Version:   1,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]wirePeer{peer})
	}))
	defer srv.Close()

	consumer := &collectingConsumer{}
	c := NewClient(srv.URL, time.Second, consumer, nil)

	c.pollOnce()
	require.Len(t, consumer.events, 1)
	require.Equal(t, uint32(0x10000000), consumer.events[0].Protocol)

	// second poll of the same peer is deduped by client_key.
	c.pollOnce()
	require.Len(t, consumer.events, 1)
}

func TestDecodePeerRejectsBadHex(t *testing.T) {
	_, err := decodePeer(wirePeer{ClientKey: "not-hex", StaticPK: "00", Addr: "127.0.0.1:1"})
	require.Error(t, err)
}
