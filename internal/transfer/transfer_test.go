package transfer

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/iluksbr/groupfiled/internal/lifecycle"
	"github.com/iluksbr/groupfiled/internal/logging"
	"github.com/iluksbr/groupfiled/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedHandshake struct {
	port uint64
	done chan struct{}
}

func (c *capturedHandshake) WriteToUDP(b []byte, _ *net.UDPAddr) (int, error) {
	cc, err := protocol.DecodeComplex(b)
	if err == nil {
		c.port = cc.Param
	}
	close(c.done)
	return len(b), nil
}

func waitForPort(t *testing.T, c *capturedHandshake) int {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("handshake datagram never sent")
	}
	return int(c.port)
}

func TestSendStreamsFileToPeer(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello world"), 0o644))

	cw := &capturedHandshake{done: make(chan struct{})}
	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		Send(ctx, cw, nil, 7, "note.txt", src, 2*time.Second, nil, logging.NewDefault())
		close(done)
	}()

	port := waitForPort(t, cw)
	conn, err := net.Dial("tcp4", "127.0.0.1:"+itoa(port))
	require.NoError(t, err)
	buf := make([]byte, 11)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf))
	conn.Close()
	<-done
}

func TestSendTimesOutWithoutPeer(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	cw := &capturedHandshake{done: make(chan struct{})}
	done := make(chan struct{})
	go func() {
		Send(context.Background(), cw, nil, 1, "note.txt", src, 100*time.Millisecond, nil, logging.NewDefault())
		close(done)
	}()
	waitForPort(t, cw)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("send worker did not exit after timeout")
	}
}

func TestReceiveWritesExactLength(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "upload.bin")

	cw := &capturedHandshake{done: make(chan struct{})}
	pending := lifecycle.NewPendingUploads()
	pending.Add(dest) // caller registers before spawning, as dispatcher.handleAdd does
	done := make(chan struct{})
	go func() {
		Receive(context.Background(), cw, nil, 1, dest, 10, 2*time.Second, pending, nil, logging.NewDefault())
		close(done)
	}()

	port := waitForPort(t, cw)
	conn, err := net.Dial("tcp4", "127.0.0.1:"+itoa(port))
	require.NoError(t, err)
	_, err = conn.Write(make([]byte, 10))
	require.NoError(t, err)
	conn.Close()
	<-done

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.EqualValues(t, 10, info.Size())
	assert.False(t, pending.Has(dest))
}

func TestReceiveDeletesPartialFileOnShortPeer(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "upload.bin")

	cw := &capturedHandshake{done: make(chan struct{})}
	pending := lifecycle.NewPendingUploads()
	pending.Add(dest)
	done := make(chan struct{})
	go func() {
		Receive(context.Background(), cw, nil, 1, dest, 10, 2*time.Second, pending, nil, logging.NewDefault())
		close(done)
	}()

	port := waitForPort(t, cw)
	conn, err := net.Dial("tcp4", "127.0.0.1:"+itoa(port))
	require.NoError(t, err)
	_, err = conn.Write(make([]byte, 4)) // short of the announced 10 bytes
	require.NoError(t, err)
	conn.Close()
	<-done

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
	assert.False(t, pending.Has(dest))
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
