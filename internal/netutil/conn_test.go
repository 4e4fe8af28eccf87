package netutil

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeCopiesUntilEOF(t *testing.T) {
	srcClient, srcProxy := net.Pipe()
	dstProxy, dstServer := net.Pipe()

	errCh := make(chan error, 1)
	go Bridge(context.Background(), zerolog.Nop(), errCh, dstProxy, srcProxy)

	go func() {
		_, _ = srcClient.Write([]byte("hello"))
		_ = srcClient.Close()
	}()

	buf := make([]byte, 5)
	_, err := io.ReadFull(dstServer, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bridge did not finish")
	}

	// Both ends are closed once the copy loop returns.
	_, err = dstServer.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestBridgeClosesOnContextCancel(t *testing.T) {
	srcClient, srcProxy := net.Pipe()
	dstProxy, dstServer := net.Pipe()
	defer CloseConns(srcClient, dstServer)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go Bridge(ctx, zerolog.Nop(), errCh, dstProxy, srcProxy)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop on cancel")
	}
}

func TestCloseConnsIsNilSafe(t *testing.T) {
	a, b := net.Pipe()
	CloseConns(a, nil, b)

	_, err := a.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestDialFirstSuccessfulNoAddrs(t *testing.T) {
	_, err := DialFirstSuccessful(context.Background(), nil, 80, time.Second)
	assert.Error(t, err)
}

func TestDialFirstSuccessful(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	addrs := []net.IPAddr{{IP: net.ParseIP("127.0.0.1")}}

	conn, err := DialFirstSuccessful(context.Background(), addrs, port, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "127.0.0.1", conn.RemoteAddr().(*net.TCPAddr).IP.String())
}
