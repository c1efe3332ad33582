package engine

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/strand-protocol/strandsock/pkg/endpoint"
)

// dialer maintains one configured connect endpoint: it dials, runs the peer
// to completion, and reconnects with capped exponential backoff. Failures
// never surface to the caller directly; they show up as mute-state
// WouldBlock or, for routed sends, HostUnreachable.
type dialer struct {
	h    *Handle
	ep   endpoint.Endpoint
	done chan struct{}
	once sync.Once
}

func (d *dialer) stop() {
	d.once.Do(func() { close(d.done) })
}

func (d *dialer) run() {
	backoff := initialBackoff
	lastContact := time.Now()
	for {
		select {
		case <-d.done:
			return
		case <-d.h.done:
			return
		default:
		}

		conn, err := d.dial()
		if err == nil {
			p := newPeer(d.h, conn)
			started := time.Now()
			_ = p.run(true, nil)
			// Only a connection that made it through the handshake
			// counts as contact; a peer that accepts TCP but rejects
			// every handshake must still exhaust the ttl.
			if p.id != 0 {
				lastContact = time.Now()
			}
			// A connection that lived for a while earns a fresh
			// backoff; an instant failure (e.g. handshake reject)
			// keeps backing off.
			if time.Since(started) > time.Second {
				backoff = initialBackoff
			}
		} else {
			d.h.log.Debug("dial failed", zap.Stringer("endpoint", d.ep), zap.Error(err))
		}

		if ttl := d.h.opts.HeartbeatTTL; ttl > 0 && time.Since(lastContact) > ttl {
			d.h.log.Warn("peer considered permanently gone",
				zap.Stringer("endpoint", d.ep), zap.Duration("ttl", ttl))
			return
		}

		select {
		case <-time.After(backoff):
		case <-d.done:
			return
		case <-d.h.done:
			return
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (d *dialer) dial() (net.Conn, error) {
	if d.ep.Transport() == endpoint.Inproc {
		return d.h.sess.connectInproc(d.ep.Name())
	}
	network, addr := d.ep.NetworkAddr()
	return net.DialTimeout(network, addr, d.h.opts.ConnectTimeout)
}
