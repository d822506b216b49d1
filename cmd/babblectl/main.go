// Command babblectl inspects and edits the configuration BabbleBot persists:
// ignore rules, announcement channels and plugin records.
//
//	babblectl -config babblebot.yaml ping
//	babblectl ignore add <guild> user|channel <id> [by]
//	babblectl ignore rm <guild> <id>
//	babblectl ignore ls <guild>
//	babblectl ignore check <guild> <channel> <user>
//	babblectl announce set <guild> <channel>
//	babblectl announce get|rm <guild>
//	babblectl plugin put <plugin> <guild> <key> <json>
//	babblectl plugin get|rm <plugin> <guild> <key>
//	babblectl plugin ls <plugin> <guild>
//
// Use "-" as the guild for a plugin's global scope.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/babblebot-server/server-sub000/internal/audit"
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "babblectl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("babblectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("BABBLEBOT_CONFIG"), "path to the YAML configuration file")
	actor := fs.String("actor", os.Getenv("USER"), "name recorded in the audit log")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: babblectl [-config file] [-actor name] <ping|ignore|announce|plugin> ...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", fs.Arg(0))
		fs.Usage()
		return errUsage
	}

	ctx = audit.WithActor(ctx, *actor)
	ctx = audit.WithCommand(ctx, strings.Join(fs.Args()[:min(fs.NArg(), 2)], " "))

	a, err := newApp(ctx, *configPath, stdout, stderr)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if err := cmd(ctx, a, fs.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(stderr, err)
		}
		return err
	}
	return nil
}
