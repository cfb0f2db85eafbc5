package mcu

import (
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/twibridge/hardware/i2c"
	"github.com/temoto/twibridge/helpers/atomic_clock"
	"github.com/temoto/twibridge/log2"
)

const modName string = "mcu"

const (
	DefaultAddress  = 0x08
	DefaultRegister = 0x00
)

type Config struct {
	Address    byte
	Register   byte
	FrameSize  int
	RelayCount int
	Fields     []string
	MinFields  int
}

// Client talks to one microcontroller on a shared bus:
// telemetry reads and relay commands.
type Client struct {
	Log      *log2.Log
	config   Config
	bus      i2c.Bus
	tr       *Transport
	decoder  *Decoder
	encoder  *Encoder
	relays   *RelayStore
	stat     Stat
	onSent   atomic.Value // func(Intent)
	lastRead atomic_clock.Clock
}

type Stat struct {
	Read       uint32 `json:"read"`
	Write      uint32 `json:"write"`
	BusError   uint32 `json:"bus_error"`
	Incomplete uint32 `json:"incomplete"`
	Invalid    uint32 `json:"invalid"`
}

func NewClient(bus i2c.Bus, config Config, log *log2.Log) (*Client, error) {
	if config.FrameSize == 0 {
		config.FrameSize = MaxFrame
	}
	if config.FrameSize < 1 || config.FrameSize > MaxFrame {
		return nil, errors.NotValidf("%s frame size=%d max=%d", modName, config.FrameSize, MaxFrame)
	}
	if config.RelayCount == 0 {
		config.RelayCount = DefaultRelayCount
	}
	relays, err := NewRelayStore(config.RelayCount)
	if err != nil {
		return nil, errors.Annotate(err, modName)
	}

	self := &Client{
		Log:     log,
		config:  config,
		bus:     bus,
		tr:      NewTransport(bus, log),
		decoder: NewDecoder(config.Fields, config.MinFields),
		relays:  relays,
	}
	self.encoder = NewEncoder(self.tr, relays, config.Address, config.Register, log)
	return self, nil
}

func (self *Client) Close() error { return self.bus.Close() }

func (self *Client) Relays() *RelayStore { return self.relays }

func (self *Client) Decoder() *Decoder { return self.decoder }

// ReadTelemetry reads one full frame and decodes it.
// BusError returns empty Reading, DecodeError returns partial Reading.
func (self *Client) ReadTelemetry() (Reading, error) {
	atomic.AddUint32(&self.stat.Read, 1)
	raw, err := self.tr.ReadBlock(self.config.Address, self.config.Register, self.config.FrameSize)
	if err != nil {
		self.countError(err)
		return Reading{expect: self.decoder.Fields}, errors.Annotate(err, "read telemetry")
	}
	r, err := self.decoder.Decode(raw)
	if err != nil {
		atomic.AddUint32(&self.stat.Incomplete, 1)
		self.Log.Debugf("%s %v", modName, err)
		return r, err
	}
	self.lastRead.SetNow()
	return r, nil
}

func (self *Client) Send(i Intent) error {
	atomic.AddUint32(&self.stat.Write, 1)
	err := self.encoder.Send(i)
	if err != nil {
		self.countError(err)
		return err
	}
	if f, ok := self.onSent.Load().(func(Intent)); ok && f != nil {
		f(i)
	}
	return nil
}

// SetOnSent registers callback after each successful Send, e.g. to publish relay states.
func (self *Client) SetOnSent(f func(Intent)) { self.onSent.Store(f) }

// SendText parses command text like r2on and sends it.
func (self *Client) SendText(s string) (Intent, error) {
	i, err := ParseCommand(s)
	if err != nil {
		atomic.AddUint32(&self.stat.Invalid, 1)
		return i, err
	}
	return i, self.Send(i)
}

func (self *Client) Stat() Stat {
	return Stat{
		Read:       atomic.LoadUint32(&self.stat.Read),
		Write:      atomic.LoadUint32(&self.stat.Write),
		BusError:   atomic.LoadUint32(&self.stat.BusError),
		Incomplete: atomic.LoadUint32(&self.stat.Incomplete),
		Invalid:    atomic.LoadUint32(&self.stat.Invalid),
	}
}

// LastRead is time of last complete enough telemetry read, zero if none.
func (self *Client) LastRead() time.Time { return self.lastRead.Time() }

func (self *Client) countError(err error) {
	switch {
	case IsBusError(err):
		atomic.AddUint32(&self.stat.BusError, 1)
	case IsValidation(err):
		atomic.AddUint32(&self.stat.Invalid, 1)
	}
}
