package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.LockerCtl/client"
)

var errUsage = errors.New("usage: lockerctl [--server URL] <health|lockers|messages|events|state|unlock> [args]")

type globalFlags struct {
	server     string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var g globalFlags
	flagSet := pflag.NewFlagSet("lockerctl", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&g.server, "server", envOr("LOCKER_API_URL", "http://localhost:8000"), "locker service base URL")
	flagSet.DurationVar(&g.timeout, "timeout", 10*time.Second, "per-request timeout")
	flagSet.IntVar(&g.retries, "retries", 3, "retries on server errors, including 503 while MQTT is down")
	flagSet.DurationVar(&g.retryDelay, "retry-delay", time.Second, "initial backoff between retries")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		return errUsage
	}

	api := client.NewAPIClient(g.server, g.timeout, g.retries, g.retryDelay)
	cmd, cmdArgs := rest[0], rest[1:]

	switch cmd {
	case "health":
		h, err := api.Health(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, h)

	case "lockers":
		ids, err := api.ListLockers(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]interface{}{"lockers": ids})

	case "messages":
		fs := pflag.NewFlagSet("messages", pflag.ContinueOnError)
		limit := fs.IntP("limit", "n", 0, "maximum messages to return (server default 50)")
		if err := fs.Parse(cmdArgs); err != nil {
			return err
		}
		msgs, err := api.RecentMessages(ctx, *limit)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]interface{}{"messages": msgs})

	case "events":
		fs := pflag.NewFlagSet("events", pflag.ContinueOnError)
		limit := fs.IntP("limit", "n", 0, "maximum events to return (server default 50)")
		id, err := parseLocker(fs, cmdArgs)
		if err != nil {
			return err
		}
		events, err := api.LockerEvents(ctx, id, *limit)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]interface{}{"events": events})

	case "state":
		fs := pflag.NewFlagSet("state", pflag.ContinueOnError)
		id, err := parseLocker(fs, cmdArgs)
		if err != nil {
			return err
		}
		state, err := api.LockerState(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(out, state)

	case "unlock":
		fs := pflag.NewFlagSet("unlock", pflag.ContinueOnError)
		duration := fs.IntP("duration", "d", 0, "unlock duration in ms, 50..10000 (server default when unset)")
		cmdID := fs.String("cmd-id", "", "command id (server assigns one when unset)")
		id, err := parseLocker(fs, cmdArgs)
		if err != nil {
			return err
		}
		var d *int
		if fs.Changed("duration") {
			d = duration
		}
		res, err := api.Unlock(ctx, id, d, *cmdID)
		if err != nil {
			return err
		}
		return printJSON(out, res)

	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

// parseLocker parses fs and returns its single positional locker id.
func parseLocker(fs *pflag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%s requires exactly one locker id", fs.Name())
	}
	return fs.Arg(0), nil
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
