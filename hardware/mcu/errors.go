package mcu

import (
	"fmt"

	"github.com/juju/errors"
)

// BusError is a transport level failure: device absent, NACK, arbitration, timeout.
// Never retried here, caller decides.
type BusError struct {
	Op   string
	Addr byte
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus %s addr=%02x: %v", e.Op, e.Addr, e.Err)
}
func (e *BusError) Unwrap() error { return e.Err }

// DecodeError means telemetry text was empty or had too few fields.
// It comes together with best effort Reading, not instead of it.
type DecodeError struct {
	Raw   string
	Found int
	Min   int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("telemetry incomplete fields=%d min=%d raw=%q", e.Found, e.Min, e.Raw)
}

// IsValidation reports bad caller input: relay id, state string, frame size.
func IsValidation(err error) bool { return errors.IsNotValid(err) }

func IsBusError(err error) bool {
	_, ok := errors.Cause(err).(*BusError)
	return ok
}

func IsIncomplete(err error) bool {
	_, ok := errors.Cause(err).(*DecodeError)
	return ok
}
