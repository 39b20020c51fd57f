// Command fimoctl is a small CLI collaborator around the runtime's
// init/deinit lifecycle: it exists to prove out the library's exit
// code contract (0 on success, nonzero if init or deinit fails) rather
// than to be a full-featured administration tool.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fimoengine/fimo"
	"github.com/fimoengine/fimo/tracing"
	"github.com/fimoengine/fimo/tracing/stderrsub"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("fimoctl", flag.ContinueOnError)
	appName := fs.String("app-name", "fimoctl", "application name reported to tracing subscribers")
	registerThread := fs.Bool("register-thread", true, "register the main goroutine as a tracing thread")
	profileDev := fs.Bool("dev", false, "run the modules subsystem in dev profile")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	sub := stderrsub.New(stderrsub.WithAppName(*appName))
	defer sub.Close()

	profile := fimo.ProfileRelease
	if *profileDev {
		profile = fimo.ProfileDev
	}

	ctx, err := fimo.Init(fimo.Options{
		fimo.TracingConfig{
			MaxLevel:       tracing.LevelInformational,
			Subscribers:    []tracing.Subscriber{sub},
			AppName:        *appName,
			RegisterThread: *registerThread,
		},
		fimo.ModulesConfig{Profile: profile},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fimoctl: init failed: %v\n", err)
		return 1
	}

	if err := ctx.Deinit(); err != nil {
		fmt.Fprintf(os.Stderr, "fimoctl: deinit failed: %v\n", err)
		return 1
	}
	return 0
}
