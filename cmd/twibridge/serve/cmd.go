package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/twibridge/cmd/twibridge/subcmd"
	"github.com/temoto/twibridge/internal/api"
	"github.com/temoto/twibridge/internal/state"
	"github.com/temoto/twibridge/log2"
)

const stopTimeout = 10 * time.Second

var Mod = subcmd.Mod{Name: "serve", Usage: "HTTP API and optional MQTT telemetry", Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "serve init")
	}
	g.Log.Debugf("config %s", config)

	apiLog := g.Log.Clone(log2.LInfo)
	if config.LogDebug {
		apiLog.SetLevel(log2.LDebug)
	}
	server := api.NewServer(g.Client, apiLog, config.HTTP.Listen, config.HTTP.CorsOrigin)
	if err := server.Run(g.Alive); err != nil {
		return errors.Annotate(err, "serve")
	}

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigch)
	go func() {
		select {
		case sig := <-sigch:
			g.Log.Infof("signal=%v stopping", sig)
			g.Stop()
		case <-g.Alive.StopChan():
		}
	}()

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("serve init complete, running")
	<-g.Alive.StopChan()

	subcmd.SdNotify(daemon.SdNotifyStopping)
	if !g.StopWait(stopTimeout) {
		return errors.Errorf("serve stop timeout=%v", stopTimeout)
	}
	return nil
}
