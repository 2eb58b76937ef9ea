package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/user/ancs-blue/logger"
	"github.com/user/ancs-blue/session"
	"github.com/user/ancs-blue/transport/bluez"
)

func cmdMonitor(c *cli.Context) error {
	addr := c.String("addr")
	if addr == "" {
		return errors.New("--addr is required")
	}
	adapter := c.String("adapter")
	if adapter == "" {
		adapter = cfg.Adapter
	}

	sc, err := cfg.SessionConfig()
	if err != nil {
		return errors.Wrap(err, "invalid session config")
	}

	t, err := bluez.Dial(adapter, addr)
	if err != nil {
		return errors.Wrap(err, "can't open device")
	}
	defer t.Close()

	rec, closeRec, err := openRecorder(c, addr)
	if err != nil {
		return err
	}
	defer closeRec()

	s, err := session.New(t, sc,
		session.WithDelegate(newPrinter(os.Stdout, c.Bool("json"))),
		session.WithRecorder(rec),
	)
	if err != nil {
		return errors.Wrap(err, "can't create session")
	}
	if err := s.Start(); err != nil {
		return errors.Wrap(err, "can't start session")
	}
	defer func() {
		if err := s.Stop(); err != nil {
			logger.Warn("ancsctl", "stop: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("ancsctl", "monitoring %s, press Ctrl-C to stop", addr)
	return chkErr(s.Run(ctx, cfg.TickInterval.Duration))
}
