package notification

import (
	"context"
	"io"
	"log"
	"net/url"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/sensorhub/annotator/internal/errors"
)

// sender is the subset of the shoutrrr router used for delivery.
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// PushSink sends notifications through shoutrrr service URLs. Only error
// notifications are pushed unless other types are configured.
type PushSink struct {
	urls   []string
	types  map[Type]bool
	sender sender
}

// NewPushSink builds a router for urls. An empty types list pushes errors only.
func NewPushSink(urls []string, timeout time.Duration, types ...Type) (*PushSink, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one push URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	router, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, errors.Newf("invalid push URL: %s", redact(err.Error(), urls)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("url_count", len(urls)).
			Build()
	}
	if timeout > 0 {
		router.Timeout = timeout
	}
	router.SetLogger(log.New(io.Discard, "", 0))
	return newPushSink(urls, router, types), nil
}

func newPushSink(urls []string, s sender, types []Type) *PushSink {
	p := &PushSink{urls: slices.Clone(urls), types: map[Type]bool{}, sender: s}
	if len(types) == 0 {
		types = []Type{TypeError}
	}
	for _, t := range types {
		p.types[t] = true
	}
	return p
}

// Name implements Sink.
func (p *PushSink) Name() string { return "shoutrrr" }

// SupportsType implements TypeFilter.
func (p *PushSink) SupportsType(t Type) bool { return p.types[t] }

// Deliver implements Sink. The router applies its own timeout.
func (p *PushSink) Deliver(ctx context.Context, n *Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}
	for _, err := range p.sender.Send(n.Message, &params) {
		if err != nil {
			return errors.Newf("push failed: %s", redact(err.Error(), p.urls)).
				Component("notification").
				Category(errors.CategoryNetwork).
				Context("notification_id", n.ID).
				Build()
		}
	}
	return nil
}

// redact strips configured service URLs from msg since they embed tokens.
func redact(msg string, urls []string) string {
	for _, raw := range urls {
		scheme := "push"
		if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
			scheme = u.Scheme
		}
		msg = strings.ReplaceAll(msg, raw, scheme+"://[redacted]")
	}
	return msg
}
