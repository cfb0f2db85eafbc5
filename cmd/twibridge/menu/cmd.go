// Package menu is interactive shell for manual testing on device.
package menu

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/twibridge/cmd/twibridge/subcmd"
	"github.com/temoto/twibridge/hardware/mcu"
	"github.com/temoto/twibridge/helpers/cli"
	"github.com/temoto/twibridge/internal/state"
)

const modName = "cli"

var Mod = subcmd.Mod{Name: modName, Usage: "interactive menu, reads stdin lines when not a terminal", Main: Main}

const usage = `commands:
- read       read telemetry
- status     last commanded relay states
- on N       switch relay N on
- off N      switch relay N off
- R1ON       send raw command text
- stat       bus counters
- help
- quit
`

func Main(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "cli init")
	}
	defer g.StopWait(time.Second)
	g.Log.Debugf("cli init complete, relays=%d", g.Client.Relays().Count())

	cli.MainLoop(modName, newExecutor(g.Client, os.Stdout), newCompleter(g.Client))
	return nil
}

func newCompleter(client *mcu.Client) func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "read", Description: "read telemetry"},
		{Text: "status", Description: "relay states"},
		{Text: "on", Description: "on N"},
		{Text: "off", Description: "off N"},
		{Text: "stat", Description: "bus counters"},
		{Text: "help"},
		{Text: "quit"},
	}
	for id := 1; id <= client.Relays().Count(); id++ {
		for _, on := range []bool{true, false} {
			i := mcu.Intent{Relay: id, On: on}
			suggests = append(suggests, prompt.Suggest{Text: i.String()})
		}
	}
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

// Executor returns false on quit, errors are printed and the loop continues.
func newExecutor(client *mcu.Client, w io.Writer) func(string) bool {
	return func(line string) bool {
		words := strings.Fields(line)
		if len(words) == 0 {
			return true
		}
		if err := execute(client, w, words); err != nil {
			if err == errQuit {
				return false
			}
			fmt.Fprintf(w, "error: %v\n", err)
		}
		return true
	}
}

var errQuit = fmt.Errorf("quit")

func execute(client *mcu.Client, w io.Writer, words []string) error {
	switch cmd := strings.ToLower(words[0]); cmd {
	case "help", "?":
		fmt.Fprint(w, usage)

	case "quit", "exit", "q":
		return errQuit

	case "read":
		r, err := client.ReadTelemetry()
		if err != nil && !mcu.IsIncomplete(err) {
			return err
		}
		fmt.Fprintln(w, r.String())
		if missing := r.Missing(); len(missing) != 0 {
			fmt.Fprintf(w, "missing: %s\n", strings.Join(missing, ","))
		}
		if err != nil {
			fmt.Fprintf(w, "warning: %v\n", err)
		}

	case "status":
		states := client.Relays().GetAll()
		for id := 1; id <= len(states); id++ {
			fmt.Fprintf(w, "%s=%s\n", mcu.RelayName(id), mcu.Intent{Relay: id, On: states[id]}.StateString())
		}
		fmt.Fprintln(w, "(last commanded)")

	case "on", "off":
		if len(words) != 2 {
			return errors.NotValidf("usage: %s N", cmd)
		}
		id, err := strconv.Atoi(words[1])
		if err != nil {
			return errors.NotValidf("relay=%q", words[1])
		}
		intent := mcu.Intent{Relay: id, On: cmd == "on"}
		if err = client.Send(intent); err != nil {
			return err
		}
		fmt.Fprintf(w, "sent %s\n", intent)

	case "stat":
		s := client.Stat()
		fmt.Fprintf(w, "read=%d write=%d bus_error=%d incomplete=%d invalid=%d last_read=%v\n",
			s.Read, s.Write, s.BusError, s.Incomplete, s.Invalid, client.LastRead())

	default:
		intent, err := client.SendText(strings.Join(words, ""))
		if err != nil {
			if mcu.IsValidation(err) {
				return errors.Annotate(err, "unknown command, try help")
			}
			return err
		}
		fmt.Fprintf(w, "sent %s\n", intent)
	}
	return nil
}
