package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/user/ancs-blue/logger"
	"github.com/user/ancs-blue/session"
	"github.com/user/ancs-blue/transport/sim"
	"github.com/user/ancs-blue/wire/ancs"
)

// scriptStep is one phone-side event in the simulate demo
type scriptStep struct {
	desc string
	run  func(p *sim.Peer, s *session.Session, uids map[string]uint32) error
}

func demoScript() []scriptStep {
	return []scriptStep{
		{"incoming call from Alice", func(p *sim.Peer, _ *session.Session, uids map[string]uint32) error {
			uids["call"] = p.AddNotification(ancs.CategoryIncomingCall, ancs.FlagImportant|ancs.FlagPositiveAction|ancs.FlagNegativeAction, map[ancs.AttributeID]string{
				ancs.AttrAppIdentifier:       "com.apple.mobilephone",
				ancs.AttrTitle:               "Alice",
				ancs.AttrMessage:             "Incoming Call",
				ancs.AttrPositiveActionLabel: "Answer",
				ancs.AttrNegativeActionLabel: "Decline",
			})
			return nil
		}},
		{"decline the call", func(p *sim.Peer, s *session.Session, uids map[string]uint32) error {
			if err := s.PerformAction(uids["call"], ancs.ActionNegative); err != nil {
				return err
			}
			return p.RemoveNotification(uids["call"])
		}},
		{"message from Bob", func(p *sim.Peer, _ *session.Session, uids map[string]uint32) error {
			uids["chat"] = p.AddNotification(ancs.CategorySocial, 0, map[ancs.AttributeID]string{
				ancs.AttrAppIdentifier: "com.apple.MobileSMS",
				ancs.AttrTitle:         "Bob",
				ancs.AttrMessage:       "Lunch at noon?",
				ancs.AttrDate:          time.Now().Format("20060102T150405"),
			})
			return nil
		}},
		{"Bob sends a follow-up", func(p *sim.Peer, _ *session.Session, uids map[string]uint32) error {
			return p.ModifyNotification(uids["chat"], map[ancs.AttributeID]string{
				ancs.AttrMessage: "Lunch at noon? I found a new place near the station that does excellent ramen",
			})
		}},
		{"reordered response (desync, retried)", func(p *sim.Peer, _ *session.Session, uids map[string]uint32) error {
			p.ReorderNextResponse()
			uids["news"] = p.AddNotification(ancs.CategoryNews, ancs.FlagSilent, map[ancs.AttributeID]string{
				ancs.AttrAppIdentifier: "com.apple.news",
				ancs.AttrTitle:         "Markets",
				ancs.AttrMessage:       "Stocks close higher",
			})
			return nil
		}},
		{"mail is read on the phone", func(p *sim.Peer, _ *session.Session, uids map[string]uint32) error {
			return p.RemoveNotification(uids["mail"])
		}},
	}
}

func cmdSimulate(c *cli.Context) error {
	sc, err := cfg.SessionConfig()
	if err != nil {
		return errors.Wrap(err, "invalid session config")
	}
	sc.FetchAppNames = true

	peer := sim.NewPeer(sim.WithMTU(c.Int("mtu")))
	peer.SetAppName("com.apple.mobilephone", "Phone")
	peer.SetAppName("com.apple.MobileSMS", "Messages")
	peer.SetAppName("com.apple.mobilemail", "Mail")
	peer.SetAppName("com.apple.news", "News")

	uids := map[string]uint32{
		"mail": peer.AddNotification(ancs.CategoryEmail, 0, map[ancs.AttributeID]string{
			ancs.AttrAppIdentifier: "com.apple.mobilemail",
			ancs.AttrTitle:         "Quarterly report",
			ancs.AttrMessage:       "Please find the figures attached.",
		}),
	}

	rec, closeRec, err := openRecorder(c, "sim")
	if err != nil {
		return err
	}
	defer closeRec()

	s, err := session.New(peer, sc,
		session.WithDelegate(newPrinter(os.Stdout, c.Bool("json"))),
		session.WithRecorder(rec),
	)
	if err != nil {
		return errors.Wrap(err, "can't create session")
	}
	if err := s.Start(); err != nil {
		return errors.Wrap(err, "can't start session")
	}
	peer.Pump()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(c.Duration("step"))
	defer ticker.Stop()

	for _, step := range demoScript() {
		select {
		case <-ctx.Done():
			return chkErr(ctx.Err())
		case <-ticker.C:
		}

		logger.Info("sim", "phone: %s", step.desc)
		if err := step.run(peer, s, uids); err != nil {
			return errors.Wrapf(err, "step %q", step.desc)
		}
		// Let a settle pause elapse so aborted fetches are retried
		for i := 0; i < 3; i++ {
			peer.Pump()
			s.Tick()
			if s.PendingCount() == 0 {
				break
			}
			time.Sleep(sc.SettleDelay)
		}
		peer.Pump()
	}

	printSummary(s)
	return s.Stop()
}

func printSummary(s *session.Session) {
	active := s.ActiveNotifications()
	uids := make([]uint32, 0, len(active))
	for uid := range active {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	fmt.Printf("\n%d active notifications:\n", len(active))
	for _, uid := range uids {
		n := active[uid]
		app := n.AppDisplayName
		if app == "" {
			app = n.AppID()
		}
		fmt.Printf("  %s [%s]\n", n, app)
	}
}
