package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/temoto/twibridge/cmd/twibridge/menu"
	"github.com/temoto/twibridge/cmd/twibridge/oneshot"
	"github.com/temoto/twibridge/cmd/twibridge/serve"
	"github.com/temoto/twibridge/cmd/twibridge/subcmd"
	"github.com/temoto/twibridge/internal/state"
	"github.com/temoto/twibridge/log2"
)

var BuildVersion string = "unknown" // set by ldflags -X

var log = log2.NewStderr(log2.LInfo)

var modules = []subcmd.Mod{
	serve.Mod,
	menu.Mod,
	oneshot.ReadMod,
	oneshot.SendMod,
}

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagConfig := cmdline.String("config", state.DefaultConfigName, "")
	flagDebug := cmdline.Bool("debug", false, "debug logging")
	cmdline.Usage = func() {
		fmt.Fprintf(cmdline.Output(), "usage: %s [flags] command [args]\ncommands:\n%s\nflags:\n", os.Args[0], subcmd.Usage(modules))
		cmdline.PrintDefaults()
	}
	if err := cmdline.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			return
		}
		os.Exit(2)
	}

	mod, err := subcmd.Parse(cmdline.Arg(0), modules)
	if err != nil {
		cmdline.Usage()
		log.Fatal(err)
	}

	// under systemd assume journal logging, remove timestamp
	if mod.Name == serve.Mod.Name && subcmd.SdNotify("start") {
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}
	if *flagDebug {
		log.SetLevel(log2.LDebug)
	}

	ctx, g := state.NewContext(log)
	g.BuildVersion = BuildVersion
	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	if *flagDebug {
		config.LogDebug = true
	}

	if err := mod.Main(ctx, config, cmdline.Args()[1:]); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
