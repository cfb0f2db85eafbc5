package i2c

import (
	"github.com/juju/errors"
	periph_i2c "periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

type periphBus struct {
	bus periph_i2c.BusCloser
}

func openPeriph(name string) (*periphBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Annotatef(err, "periph i2c open name=%s", name)
	}
	return &periphBus{bus: bus}, nil
}

func (b *periphBus) Tx(addr byte, w, r []byte) error {
	if len(w) == 0 && len(r) == 0 {
		return errors.Errorf("i2c Tx both w=r=empty nothing to do")
	}
	if err := b.bus.Tx(uint16(addr), w, r); err != nil {
		return errors.Annotatef(err, "periph i2c addr=%02x", addr)
	}
	return nil
}

func (b *periphBus) Close() error { return b.bus.Close() }
