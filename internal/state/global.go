package state

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/twibridge/hardware/i2c"
	"github.com/temoto/twibridge/hardware/mcu"
	"github.com/temoto/twibridge/internal/tele"
	"github.com/temoto/twibridge/log2"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Log          *log2.Log
	// Bus is opened from config unless set before Init, tests set mock here.
	Bus    i2c.Bus
	Client *mcu.Client
	Tele   *tele.Tele
}

const ContextKey = "run/state-global"

func NewGlobal(log *log2.Log) *Global {
	return &Global{
		Alive:        alive.NewAlive(),
		BuildVersion: "unknown",
		Log:          log,
		Tele:         tele.New(),
	}
}

func NewContext(log *log2.Log) (context.Context, *Global) {
	g := NewGlobal(log)
	return context.WithValue(context.Background(), ContextKey, g), g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	g.Log.Infof("build version=%s", g.BuildVersion)
	if cfg.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}

	if g.Bus == nil {
		bus, err := i2c.Open(cfg.Bus.Driver, cfg.Bus.Name)
		if err != nil {
			return errors.Annotatef(err, "config: bus driver=%s name=%s", cfg.Bus.Driver, cfg.Bus.Name)
		}
		g.Bus = bus
	}
	busLog := g.Log.Clone(log2.LInfo)
	if cfg.Bus.LogDebug {
		busLog.SetLevel(log2.LDebug)
	}
	client, err := mcu.NewClient(g.Bus, cfg.MCU(), busLog)
	if err != nil {
		return errors.Annotate(err, "mcu client")
	}
	g.Client = client
	g.Log.Debugf("mcu address=%#02x register=%d relays=%d", cfg.Bus.Address, cfg.Bus.Register, cfg.Relay.Count)

	// detached, tele errors must not feed back into tele
	if err := g.Tele.Init(ctx, g.Log.CloneDetached(log2.LInfo), cfg.Tele, client); err != nil {
		return errors.Annotate(err, "tele init")
	}
	// shared by every g.Log clone, busLog and api included
	if g.Tele.Enabled() {
		g.Log.SetErrorFunc(g.Tele.Error)
	}
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	if err := g.Init(ctx, cfg); err != nil {
		g.Fatal(err)
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

// Stop is safe to call multiple times.
func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Stop()
	select {
	case <-g.Alive.WaitChan():
	case <-time.After(timeout):
		return false
	}
	g.Log.SetErrorFunc(nil)
	g.Tele.Close()
	if g.Client != nil {
		if err := g.Client.Close(); err != nil {
			g.Log.Errorf("bus close err=%v", err)
		}
	}
	return true
}
