// Package bridge implements the node's ABCI/spam-check bridge edge
// (spec §6): an outbound TCP connection to an external block analyzer
// that accepts or rejects relayed blocks, in one of two wire shapes
// depending on chain.
package bridge

import "context"

// Verdict is the analyzer's response to a Check call, covering both
// wire shapes: the length-prefixed chain only ever sets OK, while the
// HTTP/JSON-RPC chain also fills the parsed block fields (or Error).
type Verdict struct {
	OK           bool
	Hash         string
	HeaderOffset int
	HeaderLength int
	Coinbase     string
	Error        string
}

// Bridge submits a block to the external analyzer and reports its
// verdict. RequestID correlates the outstanding call with its response
// on both wire shapes.
type Bridge interface {
	Check(ctx context.Context, requestID uint64, block []byte) (Verdict, error)
	Close() error
}
