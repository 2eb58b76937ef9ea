package main

import (
	"fmt"
	"io"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"

	"github.com/user/ancs-blue/notify"
	"github.com/user/ancs-blue/session"
	"github.com/user/ancs-blue/wire/ancs"
)

// printer writes session callbacks to out, one line each
type printer struct {
	mu   sync.Mutex
	out  io.Writer
	json bool
}

func newPrinter(out io.Writer, json bool) *printer {
	return &printer{out: out, json: json}
}

func (p *printer) printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) notification(mark string, n notify.Notification) {
	if p.json {
		b, err := protojson.Marshal(n.Proto())
		if err != nil {
			p.printf("%s %s\n", mark, n)
			return
		}
		p.printf("%s\n", b)
		return
	}
	p.printf("%s %s\n", mark, n)
}

func (p *printer) StateChanged(from, to session.State) {
	p.printf("* %s -> %s\n", from, to)
}

func (p *printer) NotificationLoaded(n notify.Notification) {
	p.notification("+", n)
}

func (p *printer) NotificationRemoved(uid uint32) {
	p.printf("- #%d\n", uid)
}

func (p *printer) NotificationUnavailable(n notify.Notification) {
	p.notification("?", n)
}

func (p *printer) AppAttributesLoaded(appID string, attrs map[ancs.AppAttributeID]string) {
	p.printf("@ %s = %q\n", appID, attrs[ancs.AppAttrDisplayName])
}

func (p *printer) SessionError(err error) {
	p.printf("! %v\n", err)
}

var _ session.Delegate = (*printer)(nil)
