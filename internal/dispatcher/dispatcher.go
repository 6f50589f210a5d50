// Package dispatcher implements the single-goroutine UDP command loop:
// decode, validate, route to HELLO/LIST/GET/DEL/ADD handlers, spawning
// a transfer worker for GET and ADD.
package dispatcher

import (
	"context"
	"math"
	"net"
	"strings"
	"time"

	"github.com/iluksbr/groupfiled/internal/inventory"
	"github.com/iluksbr/groupfiled/internal/lifecycle"
	"github.com/iluksbr/groupfiled/internal/logging"
	"github.com/iluksbr/groupfiled/internal/metrics"
	"github.com/iluksbr/groupfiled/internal/protocol"
)

const recvBufSize = 4096

// Endpoint is the narrow view of the joined multicast socket the
// dispatcher needs; mcast.Endpoint satisfies it. Kept as an interface
// so the dispatcher can be driven by a plain loopback UDP socket in
// tests without a real multicast join.
type Endpoint interface {
	Conn() *net.UDPConn
}

// Dispatcher owns the inventory and drives the command loop.
type Dispatcher struct {
	ep      Endpoint
	inv     *inventory.Inventory
	group   string
	pending *lifecycle.PendingUploads
	timeout time.Duration
	metrics *metrics.Server
	log     *logging.Logger
}

// New builds a Dispatcher over an already-joined multicast endpoint.
func New(ep Endpoint, inv *inventory.Inventory, group string, pending *lifecycle.PendingUploads, timeout time.Duration, m *metrics.Server, log *logging.Logger) *Dispatcher {
	return &Dispatcher{ep: ep, inv: inv, group: group, pending: pending, timeout: timeout, metrics: m, log: log}
}

// Run blocks, reading datagrams until ctx is cancelled or the socket
// errors. A receive error is fatal to the loop; ctx cancellation is
// treated as a clean stop rather than an error.
func (d *Dispatcher) Run(ctx context.Context) error {
	buf := make([]byte, recvBufSize)
	for {
		n, addr, err := d.ep.Conn().ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		msg := append([]byte(nil), buf[:n]...)
		d.handle(ctx, msg, addr)
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg []byte, addr *net.UDPAddr) {
	simple, err := protocol.DecodeSimple(msg)
	if err != nil {
		d.protoErr(addr, "datagram too short")
		return
	}

	switch {
	case protocol.MatchCommand(simple.Cmd, protocol.HELLO):
		d.handleHello(simple, addr)
	case protocol.MatchCommand(simple.Cmd, protocol.LIST):
		d.handleList(simple, addr)
	case protocol.MatchCommand(simple.Cmd, protocol.GET):
		d.handleGet(ctx, simple, addr)
	case protocol.MatchCommand(simple.Cmd, protocol.DEL):
		d.handleDel(simple, addr)
	case protocol.MatchCommand(simple.Cmd, protocol.ADD):
		d.handleAdd(ctx, msg, simple, addr)
	default:
		d.protoErr(addr, "unknown command")
	}
}

func (d *Dispatcher) protoErr(addr *net.UDPAddr, msg string) {
	if d.metrics != nil {
		d.metrics.ProtocolErrors.Inc()
	}
	d.log.Warn("protocol error from %s: %s", addr, msg)
}

func (d *Dispatcher) handleHello(c protocol.SimpleCmd, addr *net.UDPAddr) {
	reply := protocol.EncodeComplex(protocol.GoodDay, c.Seq, uint64(d.inv.Available()), []byte(d.group))
	d.ep.Conn().WriteToUDP(reply, addr)
}

// handleList emits one or more MY_LIST datagrams, each reusing the
// request's sequence number, accumulating newline-joined basenames up
// to protocol.MaxSimpleDataLen per datagram.
func (d *Dispatcher) handleList(c protocol.SimpleCmd, addr *net.UDPAddr) {
	names := d.inv.Search(string(c.Data))
	if len(names) == 0 {
		return
	}

	var batch strings.Builder
	flush := func() {
		if batch.Len() == 0 {
			return
		}
		reply := protocol.EncodeSimple(protocol.MyList, c.Seq, []byte(batch.String()))
		d.ep.Conn().WriteToUDP(reply, addr)
		batch.Reset()
	}

	for _, name := range names {
		addition := name
		if batch.Len() > 0 {
			addition = "\n" + name
		}
		if batch.Len()+len(addition) > protocol.MaxSimpleDataLen {
			flush()
			addition = name
		}
		batch.WriteString(addition)
	}
	flush()
}

func (d *Dispatcher) handleGet(ctx context.Context, c protocol.SimpleCmd, addr *net.UDPAddr) {
	basename := string(c.Data)
	if basename == "" {
		d.protoErr(addr, "GET with empty basename")
		return
	}
	rec, ok := d.inv.Find(basename)
	if !ok {
		d.ep.Conn().WriteToUDP(protocol.EncodeSimple(protocol.NoWay, c.Seq, c.Data), addr)
		return
	}
	d.spawnSend(ctx, addr, c.Seq, basename, d.inv.Path(rec.Basename))
}

func (d *Dispatcher) handleDel(c protocol.SimpleCmd, addr *net.UDPAddr) {
	basename := string(c.Data)
	if basename == "" {
		d.protoErr(addr, "DEL with empty basename")
		return
	}
	// Reject DEL of a basename whose upload is still in flight rather
	// than racing a receive worker's own cleanup.
	if d.pending.Has(d.inv.Path(basename)) {
		return
	}
	if err := d.inv.Remove(basename); err != nil {
		d.log.Error("DEL %s: %v", basename, err)
	}
}

func (d *Dispatcher) handleAdd(ctx context.Context, raw []byte, c protocol.SimpleCmd, addr *net.UDPAddr) {
	complex, err := protocol.DecodeComplex(raw)
	if err != nil {
		d.protoErr(addr, "ADD too short for complex form")
		return
	}
	basename := string(complex.Data)

	reject := func() {
		d.ep.Conn().WriteToUDP(protocol.EncodeSimple(protocol.NoWay, complex.Seq, complex.Data), addr)
	}

	if basename == "" || strings.Contains(basename, "/") {
		reject()
		return
	}
	// complex.Param is a wire uint64; reject anything that would
	// overflow int64 rather than let it wrap negative through Reserve
	// and silently inflate available_space.
	if complex.Param > math.MaxInt64 {
		reject()
		return
	}
	if _, exists := d.inv.Find(basename); exists {
		reject()
		return
	}
	size := int64(complex.Param)
	if !d.inv.Reserve(size) {
		reject()
		return
	}
	d.inv.RegisterBasename(basename, size)
	path := d.inv.Path(basename)
	// Mark the destination pending before the worker is even spawned,
	// so a DEL arriving during the handshake window (before the peer
	// has connected) sees the basename as in-flight and is rejected,
	// matching the space already reserved for it.
	d.pending.Add(path)
	d.spawnReceive(ctx, addr, complex.Seq, path, size)
}

func (d *Dispatcher) spawnSend(ctx context.Context, addr *net.UDPAddr, seq uint64, basename, path string) {
	go sendWorker(ctx, d, addr, seq, basename, path)
}

func (d *Dispatcher) spawnReceive(ctx context.Context, addr *net.UDPAddr, seq uint64, path string, length int64) {
	go receiveWorker(ctx, d, addr, seq, path, length)
}
