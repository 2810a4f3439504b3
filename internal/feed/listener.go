package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/fieldtrack-data/fieldtrack.report/internal/monitoring"
)

// ListenerConfig configures the UDP sensor listener.
type ListenerConfig struct {
	Address string
	// RcvBuf sets the socket receive buffer; 0 keeps the OS default.
	RcvBuf int
	// LogInterval spaces the periodic packet statistics lines.
	LogInterval time.Duration
}

// Listener receives newline-delimited JSON sensor frames over UDP and feeds
// them to a dispatcher. A datagram may carry several frames.
type Listener struct {
	cfg        ListenerConfig
	dispatcher *Dispatcher

	packets   int64
	frames    int64
	malformed int64
}

// NewListener creates a listener bound to d.
func NewListener(cfg ListenerConfig, d *Dispatcher) *Listener {
	if cfg.LogInterval == 0 {
		cfg.LogInterval = time.Minute
	}
	return &Listener{cfg: cfg, dispatcher: d}
}

// ListenAndServe receives frames until ctx is cancelled.
func (l *Listener) ListenAndServe(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("feed: resolve %s: %w", l.cfg.Address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("feed: listen %s: %w", l.cfg.Address, err)
	}
	defer conn.Close()

	if l.cfg.RcvBuf > 0 {
		if err := conn.SetReadBuffer(l.cfg.RcvBuf); err != nil {
			monitoring.Logf("feed: could not set receive buffer to %d: %v", l.cfg.RcvBuf, err)
		}
	}
	monitoring.Logf("feed: listening on %s", conn.LocalAddr())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	lastLog := time.Now()
	buf := make([]byte, 64*1024)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("feed: read: %w", err)
		}
		l.packets++
		l.handlePacket(buf[:n])

		if time.Since(lastLog) >= l.cfg.LogInterval {
			monitoring.Logf("feed: %d packets, %d frames, %d malformed", l.packets, l.frames, l.malformed)
			lastLog = time.Now()
		}
	}
}

// handlePacket splits a datagram into lines and dispatches each frame.
func (l *Listener) handlePacket(data []byte) {
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		f, err := ParseFrame(line)
		if err != nil {
			l.malformed++
			monitoring.Logf("feed: %v", err)
			continue
		}
		l.frames++
		l.dispatcher.Enqueue(f)
	}
}
