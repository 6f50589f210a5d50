// Package lifecycle installs SIGINT handling and the scoped cleanup
// that runs on shutdown: drop multicast membership once, close the UDP
// socket, unlink every still-pending upload.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/iluksbr/groupfiled/internal/logging"
)

// Closer is anything the manager must close exactly once on shutdown
// (the multicast endpoint satisfies this).
type Closer interface {
	Close() error
}

// Manager owns the top-level cancellation context and the cleanup
// that must run when it fires.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc

	socket  Closer
	pending *PendingUploads
	log     *logging.Logger
}

// New installs a SIGINT/SIGTERM handler and returns a Manager whose
// Context is cancelled on signal. socket is closed and every
// PendingUploads entry unlinked exactly once when Shutdown runs.
func New(socket Closer, pending *PendingUploads, log *logging.Logger) *Manager {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return &Manager{ctx: ctx, cancel: cancel, socket: socket, pending: pending, log: log}
}

// Context is cancelled once a shutdown signal arrives; the dispatcher
// and every transfer worker should select on Context.Done() at their
// suspension points.
func (m *Manager) Context() context.Context { return m.ctx }

// Wait blocks until the context is cancelled, then runs the shutdown
// sequence: drop multicast membership, close the socket, unlink
// pending uploads. It does not itself call os.Exit; callers decide the
// final exit code.
func (m *Manager) Wait() {
	<-m.ctx.Done()
	m.Shutdown()
}

// Shutdown runs the cleanup sequence immediately; safe to call more
// than once (Closer implementations must themselves be idempotent,
// which mcast.Endpoint.Close is).
func (m *Manager) Shutdown() {
	m.cancel()
	if m.socket != nil {
		if err := m.socket.Close(); err != nil {
			m.log.Warn("closing command socket: %v", err)
		}
	}
	for _, path := range m.pending.Snapshot() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.log.Warn("removing pending upload %s: %v", path, err)
			continue
		}
		m.pending.Remove(path)
	}
}
