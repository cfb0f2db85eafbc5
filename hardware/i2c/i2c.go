// Package i2c provides the host side of a two-wire bus.
// Two drivers: raw Linux i2c-dev ioctl and periph.io host drivers.
package i2c

// Thanks to
// https://github.com/kidoman/embd and https://bitbucket.org/gmcbay/i2c

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

const (
	DriverDev    = "i2c-dev"
	DriverPeriph = "periph"
)

const (
	// as defined in /usr/include/linux/i2c-dev.h
	I2C_RDWR = 0x0707 /* Combined R/W transfer (one STOP only) */

	// i2c_msg flags
	// as defined in /usr/include/linux/i2c.h
	I2C_M_RD = 0x0001 /* read data, from slave to master */
)

// Bus is one I2C adapter. Tx writes w then reads r in one combined
// transaction, either may be empty but not both.
type Bus interface {
	Tx(addr byte, w, r []byte) error
	Close() error
}

// Open bus by driver name.
// i2c-dev: name is adapter number "1" or device path "/dev/i2c-1".
// periph: name as understood by periph i2creg, empty for first bus.
func Open(driver, name string) (Bus, error) {
	switch driver {
	case "", DriverDev:
		return openDev(name)
	case DriverPeriph:
		return openPeriph(name)
	}
	return nil, errors.NotValidf("i2c driver=%s", driver)
}

type i2c_msg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type i2c_rdwr_ioctl_data struct {
	msgs uintptr
	nmsg uint32
}

type devBus struct {
	path string
	lk   sync.Mutex
	file *os.File
}

func DevPath(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	if _, err := strconv.ParseUint(name, 10, 8); err == nil {
		return fmt.Sprintf("/dev/i2c-%s", name)
	}
	return "/dev/" + name
}

func openDev(name string) (*devBus, error) {
	if name == "" {
		return nil, errors.NotValidf("i2c-dev bus name empty")
	}
	b := &devBus{path: DevPath(name)}
	f, err := os.OpenFile(b.path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Annotatef(err, "i2c open path=%s", b.path)
	}
	b.file = f
	return b, nil
}

func (b *devBus) Tx(addr byte, w, r []byte) error {
	b.lk.Lock()
	defer b.lk.Unlock()
	if b.file == nil {
		return errors.Errorf("i2c path=%s closed", b.path)
	}

	nmsg := uint32(0)
	msgs := [2]i2c_msg{}
	if len(w) != 0 {
		msgs[nmsg] = i2c_msg{
			addr: uint16(addr), flags: 0,
			buf: uintptr(unsafe.Pointer(&w[0])), len: uint16(len(w)),
		}
		nmsg++
	}
	if len(r) != 0 {
		msgs[nmsg] = i2c_msg{
			addr: uint16(addr), flags: I2C_M_RD,
			buf: uintptr(unsafe.Pointer(&r[0])), len: uint16(len(r)),
		}
		nmsg++
	}
	if nmsg == 0 {
		return errors.Errorf("i2c Tx both w=r=empty nothing to do")
	}

	rdwr := i2c_rdwr_ioctl_data{
		msgs: uintptr(unsafe.Pointer(&msgs[0])),
		nmsg: nmsg,
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL,
		b.file.Fd(), uintptr(I2C_RDWR), uintptr(unsafe.Pointer(&rdwr)))
	if errno != 0 {
		return errors.Annotatef(errno, "i2c ioctl addr=%02x", addr)
	}
	return nil
}

func (b *devBus) Close() error {
	b.lk.Lock()
	defer b.lk.Unlock()
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}
