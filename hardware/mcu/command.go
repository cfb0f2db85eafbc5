package mcu

import (
	"strconv"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/twibridge/log2"
)

// Command text grammar: R<digit>(ON|OFF), upper case on the wire.

type Intent struct {
	Relay int
	On    bool
}

func (i Intent) StateString() string {
	if i.On {
		return "on"
	}
	return "off"
}

// String is canonical command text.
func (i Intent) String() string {
	return "R" + strconv.Itoa(i.Relay) + strings.ToUpper(i.StateString())
}

// ParseState accepts on/off, 1/0, true/false in any case.
func ParseState(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, errors.NotValidf("state=%q", s)
}

// ParseCommand is inverse of Intent.String, case-insensitive.
// Relay id is one digit, range is not checked here.
func ParseCommand(s string) (Intent, error) {
	text := strings.ToUpper(strings.TrimSpace(s))
	if len(text) < 4 || text[0] != 'R' {
		return Intent{}, errors.NotValidf("command=%q", s)
	}
	var on bool
	var digits string
	switch {
	case strings.HasSuffix(text, "OFF"):
		digits = text[1 : len(text)-3]
	case strings.HasSuffix(text, "ON"):
		on = true
		digits = text[1 : len(text)-2]
	default:
		return Intent{}, errors.NotValidf("command=%q", s)
	}
	// single digit, range is up to Encode
	if len(digits) != 1 || digits[0] < '0' || digits[0] > '9' {
		return Intent{}, errors.NotValidf("command=%q relay", s)
	}
	return Intent{Relay: int(digits[0] - '0'), On: on}, nil
}

// Encoder turns intents into frames and commits RelayStore on write success.
// State tracking is optimistic: no read-back from microcontroller exists.
type Encoder struct {
	Log       *log2.Log
	transport BusTransport
	relays    *RelayStore
	addr      byte
	reg       byte

	// held from bus write to store commit, so store matches last frame on the wire
	mu sync.Mutex
}

func NewEncoder(transport BusTransport, relays *RelayStore, addr, reg byte, log *log2.Log) *Encoder {
	return &Encoder{
		Log:       log,
		transport: transport,
		relays:    relays,
		addr:      addr,
		reg:       reg,
	}
}

func (e *Encoder) Encode(i Intent) ([]byte, error) {
	if err := e.relays.Valid(i.Relay); err != nil {
		return nil, err
	}
	b := []byte(i.String())
	if len(b) > MaxFrame {
		return nil, errors.NotValidf("command length=%d max=%d", len(b), MaxFrame)
	}
	return b, nil
}

// Send validates before any I/O. On bus error store is untouched.
func (e *Encoder) Send(i Intent) error {
	frame, err := e.Encode(i)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err = e.transport.WriteBlock(e.addr, e.reg, frame); err != nil {
		return errors.Annotatef(err, "send %s", i.String())
	}
	e.relays.set(i.Relay, i.On)
	e.Log.Debugf("mcu sent %s", frame)
	return nil
}
