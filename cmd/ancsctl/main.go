package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/user/ancs-blue/config"
	"github.com/user/ancs-blue/eventlog"
	"github.com/user/ancs-blue/logger"
	"github.com/user/ancs-blue/util"
)

var cfg *config.Config

var (
	flgJSON   = cli.BoolFlag{Name: "json", Usage: "Print notifications as JSON"}
	flgRecord = cli.StringFlag{Name: "record, r", Usage: "Record protocol events to a CBOR file (\"auto\" picks a path in the data dir)"}
)

func main() {
	app := cli.NewApp()

	app.Name = "ancsctl"
	app.Usage = "Apple Notification Center Service client"
	app.Version = "0.1.0"
	app.Action = cli.ShowAppHelp
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Value: util.GetConfigPath(), Usage: "YAML config file"},
		cli.StringFlag{Name: "log-level, l", Usage: "TRACE, DEBUG, INFO, WARN or ERROR"},
		cli.BoolFlag{Name: "log-json", Usage: "Log as JSON"},
	}

	app.Commands = []cli.Command{
		{
			Name:    "monitor",
			Aliases: []string{"m"},
			Usage:   "Mirror notifications from a bonded iPhone over BlueZ",
			Action:  cmdMonitor,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "addr, a", Usage: "Address of the phone"},
				cli.StringFlag{Name: "adapter", Usage: "BlueZ adapter (default from config)"},
				flgJSON,
				flgRecord,
			},
		},
		{
			Name:    "simulate",
			Aliases: []string{"sim"},
			Usage:   "Run the session against a simulated phone",
			Action:  cmdSimulate,
			Flags: []cli.Flag{
				cli.IntFlag{Name: "mtu", Value: 23, Usage: "ATT MTU of the simulated link"},
				cli.DurationFlag{Name: "step", Value: 250 * time.Millisecond, Usage: "Delay between scripted phone events"},
				flgJSON,
				flgRecord,
			},
		},
		{
			Name:      "dump",
			Aliases:   []string{"d"},
			Usage:     "Print a recorded event log",
			ArgsUsage: "<file.cbor>",
			Action:    cmdDump,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "link", Usage: "Only events from this link id"},
				cli.StringFlag{Name: "category", Usage: "Only frame, state, request or error events"},
				cli.IntFlag{Name: "uid", Value: -1, Usage: "Only events about this notification uid"},
				flgJSON,
			},
		},
	}

	app.Before = setup
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ancsctl: %v\n", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	loaded, err := config.Load(c.String("config"))
	if err != nil {
		return errors.Wrap(err, "can't load config")
	}
	if lvl := c.String("log-level"); lvl != "" {
		loaded.Log.Level = lvl
	}
	if c.Bool("log-json") {
		loaded.Log.JSON = true
	}

	logger.SetOutput(os.Stderr)
	loaded.ApplyLogging()
	cfg = loaded
	return nil
}

// openRecorder returns the event recorder selected by --record or the config file
func openRecorder(c *cli.Context, device string) (eventlog.Logger, func(), error) {
	path := c.String("record")
	if path == "" {
		path = cfg.EventLog
	}
	if path == "" {
		return eventlog.NoopLogger{}, func() {}, nil
	}
	if path == "auto" {
		p, err := util.NewEventLogPath(device, time.Now())
		if err != nil {
			return nil, nil, errors.Wrap(err, "can't create event log dir")
		}
		path = p
	}

	fl, err := eventlog.NewFileLogger(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "can't open event log")
	}
	logger.Info("ancsctl", "recording events to %s", path)
	return fl, func() {
		if err := fl.Close(); err != nil {
			logger.Warn("ancsctl", "closing event log: %v", err)
		}
	}, nil
}

func chkErr(err error) error {
	switch errors.Cause(err) {
	case context.Canceled, context.DeadlineExceeded:
		return nil
	}
	return err
}
