// Package main provides the stamp command for control panels that run shell commands.
//
//	stamp start [-name NAME] [-auto]
//	stamp marker MESSAGE...
//	stamp stop
//	stamp status
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/thebtf/notionstamp/pkg/control"
)

// requestTimeout covers a restart's worst case: stop, create database and
// "start", each bounded by the daemon's 10s Notion timeout, plus queueing.
const requestTimeout = 45 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("stamp", flag.ContinueOnError)
	global.SetOutput(stderr)
	addr := global.String("addr", control.ServerAddr(), "Daemon address")
	if err := global.Parse(args); err != nil {
		return control.ExitFailure
	}
	if global.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: stamp [-addr host:port] start|marker|stop|status")
		return control.ExitFailure
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	client := control.NewClient(*addr, requestTimeout)

	sub, rest := global.Arg(0), global.Args()[1:]
	var (
		result map[string]any
		err    error
	)
	switch sub {
	case "start":
		fs := flag.NewFlagSet("start", flag.ContinueOnError)
		fs.SetOutput(stderr)
		name := fs.String("name", "", "Database name (default: current ISO timestamp)")
		auto := fs.Bool("auto", false, "Automatically create start record")
		if err := fs.Parse(rest); err != nil {
			return control.ExitFailure
		}
		result, err = client.POST(ctx, "/api/session/start", map[string]any{
			"databaseName":          *name,
			"autoCreateStartRecord": *auto,
		})
	case "marker":
		result, err = client.POST(ctx, "/api/marker", map[string]string{
			"message": strings.Join(rest, " "),
		})
	case "stop":
		result, err = client.POST(ctx, "/api/session/stop", nil)
	case "status":
		result, err = client.GET(ctx, "/api/status")
	default:
		fmt.Fprintf(stderr, "[stamp] Error: unknown command %q\n", sub)
		return control.ExitFailure
	}

	if result != nil {
		_ = json.NewEncoder(stdout).Encode(result)
	}
	if err != nil {
		fmt.Fprintf(stderr, "[stamp] Error: %v\n", err)
		var statusErr *control.StatusError
		if errors.As(err, &statusErr) {
			return control.ExitFailure
		}
		return control.ExitUnavailable
	}
	return control.ExitSuccess
}
