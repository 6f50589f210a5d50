package dispatcher

import (
	"context"
	"net"

	"github.com/iluksbr/groupfiled/internal/transfer"
)

func sendWorker(ctx context.Context, d *Dispatcher, addr *net.UDPAddr, seq uint64, basename, path string) {
	transfer.Send(ctx, d.ep.Conn(), addr, seq, basename, path, d.timeout, d.metrics, d.log)
}

func receiveWorker(ctx context.Context, d *Dispatcher, addr *net.UDPAddr, seq uint64, path string, length int64) {
	transfer.Receive(ctx, d.ep.Conn(), addr, seq, path, length, d.timeout, d.pending, d.metrics, d.log)
}
