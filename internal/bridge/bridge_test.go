package bridge

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLengthPrefixedBridgeCheck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		header := make([]byte, 16)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		reqID := binary.BigEndian.Uint64(header[0:8])
		blockLen := binary.BigEndian.Uint64(header[8:16])
		block := make([]byte, blockLen)
		_, _ = io.ReadFull(conn, block)

		resp := make([]byte, 9)
		binary.BigEndian.PutUint64(resp[0:8], reqID)
		resp[8] = 1
		_, _ = conn.Write(resp)
	}()

	b, err := DialLengthPrefixed(ln.Addr().String())
	require.NoError(t, err)
	defer b.Close()

	v, err := b.Check(context.Background(), 42, []byte("a-block"))
	require.NoError(t, err)
	require.True(t, v.OK)
}

func TestLengthPrefixedBridgeRejectsMismatchedID(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		header := make([]byte, 16)
		_, _ = io.ReadFull(conn, header)
		blockLen := binary.BigEndian.Uint64(header[8:16])
		block := make([]byte, blockLen)
		_, _ = io.ReadFull(conn, block)

		resp := make([]byte, 9)
		binary.BigEndian.PutUint64(resp[0:8], 999) // wrong id
		resp[8] = 1
		_, _ = conn.Write(resp)
	}()

	b, err := DialLengthPrefixed(ln.Addr().String())
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Check(context.Background(), 42, []byte("x"))
	require.Error(t, err)
}

func TestJSONRPCBridgeCheckSuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		tp := textproto.NewReader(r)
		if _, err := tp.ReadLine(); err != nil {
			return
		}
		headers, err := tp.ReadMIMEHeader()
		if err != nil {
			return
		}
		n, _ := strconv.Atoi(headers.Get("Content-Length"))
		body := make([]byte, n)
		_, _ = io.ReadFull(r, body)

		var req rpcRequest
		_ = json.Unmarshal(body, &req)

		resp := rpcResponse{ID: req.ID, Result: &rpcResult{Hash: "0xdead", HeaderOffset: 8, HeaderLength: 80, Coinbase: "0xbeef"}}
		out, _ := json.Marshal(resp)
		fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s", len(out), out)
	}()

	b, err := DialJSONRPC(ln.Addr().String())
	require.NoError(t, err)
	defer b.Close()

	v, err := b.Check(context.Background(), 7, []byte{0x01, 0x02})
	require.NoError(t, err)
	require.True(t, v.OK)
	require.Equal(t, "0xdead", v.Hash)
	require.Equal(t, 8, v.HeaderOffset)
}

func TestJSONRPCBridgeCheckError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		tp := textproto.NewReader(r)
		if _, err := tp.ReadLine(); err != nil {
			return
		}
		headers, err := tp.ReadMIMEHeader()
		if err != nil {
			return
		}
		n, _ := strconv.Atoi(headers.Get("Content-Length"))
		body := make([]byte, n)
		_, _ = io.ReadFull(r, body)

		var req rpcRequest
		_ = json.Unmarshal(body, &req)

		resp := rpcResponse{ID: req.ID, Error: &rpcError{Message: "malformed block"}}
		out, _ := json.Marshal(resp)
		fmt.Fprintf(conn, "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s", len(out), out)
	}()

	b, err := DialJSONRPC(ln.Addr().String())
	require.NoError(t, err)
	defer b.Close()

	v, err := b.Check(context.Background(), 3, []byte{0xff})
	require.NoError(t, err)
	require.False(t, v.OK)
	require.Equal(t, "malformed block", v.Error)
}
