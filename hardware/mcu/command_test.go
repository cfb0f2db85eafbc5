package mcu

import (
	"fmt"
	"sync"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/twibridge/hardware/i2c"
	"github.com/temoto/twibridge/helpers"
	"github.com/temoto/twibridge/log2"
)

func newTestEncoder(t testing.TB, count int) (*Encoder, *RelayStore, *i2c.MockBus) {
	bus := i2c.NewMockBus(t)
	relays, err := NewRelayStore(count)
	require.NoError(t, err)
	log := log2.NewTest(t, log2.LDebug)
	return NewEncoder(NewTransport(bus, log), relays, DefaultAddress, DefaultRegister, log), relays, bus
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input     string
		expect    Intent
		expectErr bool
	}{
		{"R1ON", Intent{1, true}, false},
		{"r2off", Intent{2, false}, false},
		{" R4On ", Intent{4, true}, false},
		{"R12ON", Intent{}, true},
		{"R01ON", Intent{}, true},
		{"R+1ON", Intent{}, true},
		{"R0OFF", Intent{0, false}, false},
		{"ROFF", Intent{}, true},
		{"R1", Intent{}, true},
		{"X1ON", Intent{}, true},
		{"R1MAYBE", Intent{}, true},
		{"R-1ON", Intent{}, true},
		{"", Intent{}, true},
	}
	for _, c := range cases {
		c := c
		t.Run(c.input, func(t *testing.T) {
			i, err := ParseCommand(c.input)
			if c.expectErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expect, i)
		})
	}
}

func TestParseState(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"on", "ON", "1", "true"} {
		on, err := ParseState(s)
		require.NoError(t, err, s)
		assert.True(t, on, s)
	}
	for _, s := range []string{"off", "Off", "0", "false"} {
		on, err := ParseState(s)
		require.NoError(t, err, s)
		assert.False(t, on, s)
	}
	_, err := ParseState("toggle")
	assert.True(t, IsValidation(err))
}

func TestEncodeRoundTrip(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEncoder(t, 4)
	for id := 1; id <= 4; id++ {
		for _, on := range []bool{true, false} {
			intent := Intent{Relay: id, On: on}
			b, err := e.Encode(intent)
			require.NoError(t, err)
			back, err := ParseCommand(string(b))
			require.NoError(t, err)
			assert.Equal(t, intent, back)
		}
	}
	b, err := e.Encode(Intent{Relay: 2, On: true})
	require.NoError(t, err)
	assert.Equal(t, []byte{'R', '2', 'O', 'N'}, b)
}

func TestSendOutOfRange(t *testing.T) {
	t.Parallel()
	e, relays, bus := newTestEncoder(t, 4)
	before := relays.GetAll()
	for _, id := range []int{-1, 0, 5, 9, 10, 42} {
		err := e.Send(Intent{Relay: id, On: true})
		require.Error(t, err, "id=%d", id)
		assert.True(t, IsValidation(err), "id=%d", id)
		assert.False(t, IsBusError(err), "id=%d", id)
	}
	assert.Equal(t, before, relays.GetAll())
	assert.Empty(t, bus.Written())
}

func TestSendSuccess(t *testing.T) {
	t.Parallel()
	e, relays, bus := newTestEncoder(t, 4)
	// register 0 then ascii R3ON, R3OFF
	bus.ExpectWrite(DefaultAddress, helpers.MustHex("0052334f4e"), nil)
	bus.ExpectWrite(DefaultAddress, helpers.MustHex("0052334f4646"), nil)

	require.NoError(t, e.Send(Intent{Relay: 3, On: true}))
	on, err := relays.Get(3)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, e.Send(Intent{Relay: 3, On: false}))
	on, _ = relays.Get(3)
	assert.False(t, on)
	require.NoError(t, bus.ExpectationsWereMet())
}

func TestSendBusFailureKeepsState(t *testing.T) {
	t.Parallel()
	e, relays, bus := newTestEncoder(t, 4)
	bus.ExpectWrite(DefaultAddress, []byte("\x00R1ON"), nil)
	bus.ExpectWrite(DefaultAddress, []byte("\x00R1OFF"), errors.New("nack"))

	require.NoError(t, e.Send(Intent{Relay: 1, On: true}))
	err := e.Send(Intent{Relay: 1, On: false})
	require.Error(t, err)
	assert.True(t, IsBusError(err))
	assert.Contains(t, err.Error(), "nack")
	on, _ := relays.Get(1)
	assert.True(t, on, "state must remain last successfully sent")
	require.NoError(t, bus.ExpectationsWereMet())
}

func TestSendConcurrent(t *testing.T) {
	t.Parallel()
	const n = MaxRelays
	e, relays, bus := newTestEncoder(t, n)
	bus.Fun = func(addr byte, w, r []byte) error { return nil }

	expect := make(map[int]bool, n)
	wg := sync.WaitGroup{}
	for id := 1; id <= n; id++ {
		on := id%2 == 1
		expect[id] = on
		wg.Add(1)
		go func(id int, on bool) {
			defer wg.Done()
			for k := 0; k < 20; k++ {
				assert.NoError(t, e.Send(Intent{Relay: id, On: !on}))
			}
			assert.NoError(t, e.Send(Intent{Relay: id, On: on}))
		}(id, on)
	}
	wg.Wait()
	assert.Equal(t, expect, relays.GetAll())
	assert.Len(t, bus.Written(), n*21)
}

func TestSendSameRelayMatchesLastFrame(t *testing.T) {
	t.Parallel()
	e, relays, bus := newTestEncoder(t, 1)
	bus.Fun = func(addr byte, w, r []byte) error { return nil }

	wg := sync.WaitGroup{}
	for k := 0; k < 50; k++ {
		wg.Add(1)
		go func(on bool) {
			defer wg.Done()
			assert.NoError(t, e.Send(Intent{Relay: 1, On: on}))
		}(k%2 == 0)
	}
	wg.Wait()
	written := bus.Written()
	last := string(written[len(written)-1][1:])
	on, _ := relays.Get(1)
	assert.Equal(t, last, fmt.Sprintf("R1%s", map[bool]string{true: "ON", false: "OFF"}[on]))
}
