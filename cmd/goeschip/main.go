package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()

	app.Name = "goeschip"
	app.Usage = "GOES fixed-grid geolocation and image chip extraction"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			EnvVars: []string{"GOESCHIP_LOG_LEVEL"},
			Value:   "info",
			Usage:   "log level (debug, info, warn, error)",
		},
		&cli.StringFlag{
			Name:    "satellite",
			EnvVars: []string{"GOESCHIP_SATELLITE"},
			Value:   "goes-16",
			Usage:   "projection preset for commands that take no scene",
		},
	}

	app.Commands = []*cli.Command{
		locateCommand(),
		geolocateCommand(),
		synthCommand(),
		extractCommand(),
		batchCommand(),
		catalogCommand(),
		serveCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "goeschip:", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. Logs go to stderr so that command
// output on stdout stays machine readable.
func newLogger(c *cli.Context) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(c.String("log-level")))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.String("log-level"), err)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}
