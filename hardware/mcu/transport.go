package mcu

import (
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/twibridge/hardware/i2c"
	"github.com/temoto/twibridge/log2"
)

// MaxFrame is block transfer limit on both directions.
const MaxFrame = 32

// BusTransport is synchronous block I/O against one peer.
type BusTransport interface {
	ReadBlock(addr, reg byte, length int) ([]byte, error)
	WriteBlock(addr, reg byte, data []byte) error
}

// Transport implements BusTransport with SMBus style block semantics:
// read = write register offset, then read length bytes in one combined transaction;
// write = register offset followed by data.
// Bus is not reentrant, every call holds the transport lock.
type Transport struct {
	Log *log2.Log
	bus i2c.Bus
	mu  sync.Mutex
}

var _ BusTransport = &Transport{}

func NewTransport(bus i2c.Bus, log *log2.Log) *Transport {
	return &Transport{bus: bus, Log: log}
}

func (t *Transport) ReadBlock(addr, reg byte, length int) ([]byte, error) {
	if length < 1 || length > MaxFrame {
		return nil, errors.NotValidf("read length=%d max=%d", length, MaxFrame)
	}
	buf := make([]byte, length)
	t.mu.Lock()
	err := t.bus.Tx(addr, []byte{reg}, buf)
	t.mu.Unlock()
	if err != nil {
		return nil, &BusError{Op: "read", Addr: addr, Err: err}
	}
	t.Log.Debugf("mcu read addr=%02x reg=%02x buf=%x", addr, reg, buf)
	return buf, nil
}

func (t *Transport) WriteBlock(addr, reg byte, data []byte) error {
	if len(data) == 0 || len(data) > MaxFrame {
		return errors.NotValidf("write length=%d max=%d", len(data), MaxFrame)
	}
	w := make([]byte, 1+len(data))
	w[0] = reg
	copy(w[1:], data)
	t.mu.Lock()
	err := t.bus.Tx(addr, w, nil)
	t.mu.Unlock()
	if err != nil {
		return &BusError{Op: "write", Addr: addr, Err: err}
	}
	t.Log.Debugf("mcu write addr=%02x reg=%02x data=%x", addr, reg, data)
	return nil
}
