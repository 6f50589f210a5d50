// Package transfer implements the one-shot per-file TCP worker:
// negotiate an ephemeral port over the inherited UDP socket, wait
// bounded time for the peer, then stream one file in either direction.
// Each transfer runs as its own goroutine rather than its own process,
// so failure isolation and socket cleanup are scoped with ctx and
// defer instead of process exit.
package transfer

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/iluksbr/groupfiled/internal/lifecycle"
	"github.com/iluksbr/groupfiled/internal/logging"
	"github.com/iluksbr/groupfiled/internal/metrics"
	"github.com/iluksbr/groupfiled/internal/protocol"
)

// copyBufSize is sized for a full-speed TCP stream rather than one
// MTU-sized UDP segment.
const copyBufSize = 32 * 1024

// UDPWriter is the narrow, write-only view of the command socket a
// worker needs to send its handshake datagram. Only the lifecycle
// manager closes the real socket; workers never see more than this.
type UDPWriter interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

// listen opens a TCP listener on an ephemeral port bound to
// INADDR_ANY. Go's net package does not expose backlog directly; the
// kernel default is more than sufficient for a single expected peer.
func listen() (*net.TCPListener, int, error) {
	l, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, 0, err
	}
	return l, l.Addr().(*net.TCPAddr).Port, nil
}

// acceptWithTimeout waits up to timeout for one connection, honoring
// ctx cancellation, and closes the listener in every case.
func acceptWithTimeout(ctx context.Context, l *net.TCPListener, timeout time.Duration) (net.Conn, error) {
	defer l.Close()

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := l.Accept()
		done <- result{c, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-timer.C:
		return nil, errors.New("transfer: timed out waiting for peer")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send announces CONNECT_ME (echoing basename, with the ephemeral TCP
// port as param) to peer, then streams path's contents to the peer
// that connects within timeout. basename is used for the handshake
// payload and for logging.
func Send(ctx context.Context, conn UDPWriter, peer *net.UDPAddr, seq uint64, basename, path string, timeout time.Duration, m *metrics.Server, log *logging.Logger) {
	l, port, err := listen()
	if err != nil {
		log.Error("send worker: listen: %v", err)
		return
	}

	hs := protocol.EncodeComplex(protocol.ConnectMe, seq, uint64(port), []byte(basename))
	if _, err := conn.WriteToUDP(hs, peer); err != nil {
		log.Error("send worker: handshake write: %v", err)
		l.Close()
		return
	}

	if m != nil {
		m.TransfersStarted.Inc()
		m.ActiveTransfers.Inc()
		defer m.ActiveTransfers.Dec()
	}

	c, err := acceptWithTimeout(ctx, l, timeout)
	if err != nil {
		log.Warn("send worker: %s: %v", basename, err)
		if m != nil {
			m.Timeouts.Inc()
		}
		return
	}
	defer c.Close()

	f, err := os.Open(path)
	if err != nil {
		log.Error("send worker: open %s: %v", path, err)
		if m != nil {
			m.TransfersFailed.Inc()
		}
		return
	}
	defer f.Close()

	buf := make([]byte, copyBufSize)
	n, err := io.CopyBuffer(c, f, buf)
	if err != nil {
		log.Error("send worker: copy %s: %v", basename, err)
		if m != nil {
			m.TransfersFailed.Inc()
		}
		return
	}
	if m != nil {
		m.BytesSent.Add(float64(n))
	}
	log.Info("sent %s: %d bytes", basename, n)
}

// Receive accepts exactly length bytes from the peer that connects
// within timeout after CAN_ADD is announced, writing them to destPath
// (mode rw-r--r--, opened O_CREATE|O_WRONLY|O_TRUNC, so a file already
// at destPath is truncated rather than rejected).
//
// destPath must already be registered in pending by the caller before
// Receive is spawned, so that a DEL racing the handshake window (before
// the peer has even connected) sees it as in-flight; Receive only owns
// unregistering it, which it does unconditionally on every return path,
// deleting the partial file unless the whole transfer succeeded.
func Receive(ctx context.Context, conn UDPWriter, peer *net.UDPAddr, seq uint64, destPath string, length int64, timeout time.Duration, pending *lifecycle.PendingUploads, m *metrics.Server, log *logging.Logger) {
	ok := false
	defer func() {
		if !ok {
			os.Remove(destPath)
		}
		pending.Remove(destPath)
	}()

	l, port, err := listen()
	if err != nil {
		log.Error("receive worker: listen: %v", err)
		return
	}

	hs := protocol.EncodeComplex(protocol.CanAdd, seq, uint64(port), nil)
	if _, err := conn.WriteToUDP(hs, peer); err != nil {
		log.Error("receive worker: handshake write: %v", err)
		l.Close()
		return
	}

	if m != nil {
		m.TransfersStarted.Inc()
		m.ActiveTransfers.Inc()
		defer m.ActiveTransfers.Dec()
	}

	c, err := acceptWithTimeout(ctx, l, timeout)
	if err != nil {
		log.Warn("receive worker: %s: %v", destPath, err)
		if m != nil {
			m.Timeouts.Inc()
		}
		return
	}
	defer c.Close()

	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		log.Error("receive worker: open %s: %v", destPath, err)
		if m != nil {
			m.TransfersFailed.Inc()
		}
		return
	}
	defer f.Close()

	buf := make([]byte, copyBufSize)
	n, err := io.CopyBuffer(f, io.LimitReader(c, length), buf)
	if err != nil {
		log.Error("receive worker: copy %s: %v", destPath, err)
		if m != nil {
			m.TransfersFailed.Inc()
		}
		return
	}
	if n != length {
		log.Error("receive worker: %s: peer closed early, got %d of %d bytes", destPath, n, length)
		if m != nil {
			m.TransfersFailed.Inc()
		}
		return
	}

	ok = true
	if m != nil {
		m.BytesReceived.Add(float64(n))
	}
	log.Info("received %s: %d bytes", destPath, n)
}
