package state

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/twibridge/hardware/i2c"
	"github.com/temoto/twibridge/hardware/mcu"
	"github.com/temoto/twibridge/log2"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty-defaults", "", func(t testing.TB, c *Config) {
			assert.Equal(t, i2c.DriverDev, c.Bus.Driver)
			assert.Equal(t, "1", c.Bus.Name)
			assert.Equal(t, mcu.DefaultAddress, c.Bus.Address)
			assert.Equal(t, mcu.MaxFrame, c.Bus.FrameSize)
			assert.Equal(t, 4, c.Relay.Count)
			assert.Equal(t, mcu.DefaultFields, c.Telemetry.Fields)
			assert.Equal(t, DefaultHTTPListen, c.HTTP.Listen)
			assert.False(t, c.Tele.Enable)
			assert.Equal(t, DefaultTopicPrefix, c.Tele.TopicPrefix)
			assert.Equal(t, DefaultIntervalSec, c.Tele.IntervalSec)
		}, ""},

		{"tele-poll-off", `tele { interval_sec = -1 }`, func(t testing.TB, c *Config) {
			assert.Equal(t, -1, c.Tele.IntervalSec)
		}, ""},

		{"bus", `
bus {
	driver = "periph"
	name = "I2C1"
	address = 9
	register = 2
	frame_size = 16
}
relay { count = 8 }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, i2c.DriverPeriph, c.Bus.Driver)
				assert.Equal(t, "I2C1", c.Bus.Name)
				mc := c.MCU()
				assert.Equal(t, byte(9), mc.Address)
				assert.Equal(t, byte(2), mc.Register)
				assert.Equal(t, 16, mc.FrameSize)
				assert.Equal(t, 8, mc.RelayCount)
			},
			"",
		},

		{"telemetry-http-tele", `
telemetry {
	fields = ["temperature", "humidity"]
	min_fields = 2
}
http { listen = "127.0.0.1:8080" cors_origin = "*" }
tele {
	enable = true
	broker = "tcp://localhost:1883"
	topic_prefix = "greenhouse"
	interval_sec = 30
	queue_path = "/var/lib/twibridge/tele"
}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, []string{"temperature", "humidity"}, c.Telemetry.Fields)
				assert.Equal(t, 2, c.MCU().MinFields)
				assert.Equal(t, "127.0.0.1:8080", c.HTTP.Listen)
				assert.Equal(t, "*", c.HTTP.CorsOrigin)
				assert.True(t, c.Tele.Enable)
				assert.Equal(t, "greenhouse", c.Tele.TopicPrefix)
				assert.Equal(t, 30, c.Tele.IntervalSec)
			},
			"",
		},

		{"include", `
relay { count = 2 }
include "site.hcl" {}
include "missing.hcl" { optional = true }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 3, c.Relay.Count)
				assert.True(t, c.LogDebug)
			},
			"",
		},

		{"include-required-missing", `include "nope.hcl" {}`, nil, "config required name=nope.hcl path=nope.hcl not found"},
		{"include-loop", `include "loop.hcl" {}`, nil, "config include loop: from=loop.hcl include=main.hcl"},
		{"relay-count-range", `relay { count = 10 }`, nil, "config: relay.count=10 range 1..9 not valid"},
		{"address-range", `bus { address = 200 }`, nil, "config: bus.address=0xc8 not valid"},
		{"min-fields", `telemetry { min_fields = 5 }`, nil, "config: telemetry.min_fields=5 not valid"},
		{"tele-no-broker", `tele { enable = true }`, nil, "config: tele.broker empty not valid"},
		{"syntax", `bus {`, nil, "config unmarshal source=main.hcl"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			fs := NewMockFullReader(map[string]string{
				"main.hcl": c.input,
				"site.hcl": "relay { count = 3 }\nlog_debug = true",
				"loop.hcl": `include "main.hcl" {}`,
			})
			log := log2.NewTest(t, log2.LDebug)
			config, err := ReadConfig(log, fs, "main.hcl")
			if c.expectErr == "" {
				require.NoError(t, err)
				c.check(t, config)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), c.expectErr), "expected error containing '%s' actual '%s'", c.expectErr, err.Error())
		})
	}
}

func TestGlobalInit(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	config, err := ReadConfig(log, NewMockFullReader(map[string]string{"main.hcl": `relay { count = 2 }`}), "main.hcl")
	require.NoError(t, err)

	ctx, g := NewContext(log)
	bus := i2c.NewMockBus(t)
	bus.ExpectWrite(mcu.DefaultAddress, []byte("\x00R2ON"), nil)
	g.Bus = bus
	require.NoError(t, g.Init(ctx, config))
	assert.Equal(t, g, GetGlobal(ctx))

	_, err = g.Client.SendText("R2ON")
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: false, 2: true}, g.Client.Relays().GetAll())
	assert.False(t, g.Tele.Enabled())
	require.NoError(t, bus.ExpectationsWereMet())
	assert.True(t, g.StopWait(time.Second))
}

func TestConfigString(t *testing.T) {
	t.Parallel()
	config, err := ReadConfig(log2.NewTest(t, log2.LDebug), NewMockFullReader(map[string]string{"main.hcl": `
tele {
	broker = "tcp://mqtt.local:1883"
	username = "bridge"
	password = "hunter2"
}`}), "main.hcl")
	require.NoError(t, err)
	s := config.String()
	assert.NotContains(t, s, "hunter2")
	assert.Contains(t, s, "Password:***")
	assert.Contains(t, s, "Username:bridge")
	assert.Contains(t, s, "Broker:tcp://mqtt.local:1883")
	assert.Equal(t, "hunter2", config.Tele.Password)
}

func TestGetGlobalPanic(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { GetGlobal(context.Background()) })
}

func TestGlobalInitBusError(t *testing.T) {
	t.Parallel()
	config := &Config{}
	config.Bus.Driver = "spi"
	require.Error(t, config.Validate())

	_, g := NewContext(log2.NewTest(t, log2.LDebug))
	err := g.Init(context.Background(), config)
	require.Error(t, err)
	assert.True(t, errors.IsNotValid(err))
}
