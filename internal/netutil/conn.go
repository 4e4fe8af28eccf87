package netutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/spliceproxy/spliceproxy/internal/logging"
)

// bufferPool holds 32KB buffers for io.CopyBuffer so the tunnel hot
// path does not allocate per connection.
var bufferPool = sync.Pool{
	New: func() any {
		// 32KB matches io.Copy's default buffer size.
		b := make([]byte, 32*1024)
		return &b
	},
}

// Bridge copies bytes from src to dst until either side closes or ctx
// is canceled, then closes both ends exactly once. The proxy runs two
// Bridge goroutines per tunnel, one for each direction; the shared
// close makes the peer's copy loop return as well. Expected shutdown
// errors are reported as nil on errCh.
func Bridge(
	ctx context.Context,
	logger zerolog.Logger,
	errCh chan<- error,
	dst net.Conn,
	src net.Conn,
) {
	var n int64
	logger = logging.WithLocalScope(ctx, logger, "tunnel")

	var once sync.Once
	closeOnce := func() {
		once.Do(func() {
			CloseConns(src, dst)
		})
	}

	stop := context.AfterFunc(ctx, closeOnce)

	defer func() {
		stop()
		closeOnce()

		logger.Trace().
			Int64("len", n).
			Str("route", fmt.Sprintf("%s -> %s", src.RemoteAddr(), dst.RemoteAddr())).
			Msg("done")
	}()

	bufPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)

	n, err := io.CopyBuffer(dst, src, *bufPtr)
	if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) &&
		!errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, syscall.EPIPE) &&
		!IsConnectionResetByPeer(err) {
		errCh <- err
		return
	}

	errCh <- nil
}

// CloseConns closes the given closers, skipping nils and ignoring
// Close errors.
func CloseConns(closers ...io.Closer) {
	for _, c := range closers {
		if c != nil {
			_ = c.Close()
		}
	}
}
