// Package oneshot holds single action commands for scripts and cron.
package oneshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/twibridge/cmd/twibridge/subcmd"
	"github.com/temoto/twibridge/hardware/mcu"
	"github.com/temoto/twibridge/internal/state"
)

var ReadMod = subcmd.Mod{Name: "read", Usage: "read telemetry once, print JSON", Main: ReadMain}
var SendMod = subcmd.Mod{Name: "send", Usage: "send one command, e.g. `send R1ON`", Main: SendMain}

const stopTimeout = 5 * time.Second

// Output is replaced by tests.
var Output io.Writer = os.Stdout

func ReadMain(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	config.Tele.Enable = false
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "read init")
	}
	defer g.StopWait(stopTimeout)

	r, err := g.Client.ReadTelemetry()
	if err != nil && !mcu.IsIncomplete(err) {
		return errors.Annotate(err, "read")
	}
	if err != nil {
		g.Log.Error(err)
	}
	b, err := json.Marshal(r)
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Fprintln(Output, string(b))
	return nil
}

func SendMain(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	text := strings.Join(args, "")
	if text == "" {
		return errors.NotValidf("send requires command text, e.g. R1ON")
	}
	// fail fast before touching the bus
	if _, err := mcu.ParseCommand(text); err != nil {
		return err
	}
	config.Tele.Enable = false
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "send init")
	}
	defer g.StopWait(stopTimeout)

	intent, err := g.Client.SendText(text)
	if err != nil {
		return err
	}
	fmt.Fprintf(Output, "sent %s relay%d=%s\n", intent, intent.Relay, intent.StateString())
	return nil
}
