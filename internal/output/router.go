package output

import (
	"context"
	"fmt"

	"github.com/rsilvagit/go-rent/internal/model"
)

// Router picks the sender for an alert's channel.
type Router struct {
	senders  map[model.Channel]Sender
	fallback Sender
}

func NewRouter() *Router {
	return &Router{senders: make(map[model.Channel]Sender)}
}

// Handle registers s for channel c.
func (r *Router) Handle(c model.Channel, s Sender) *Router {
	r.senders[c] = s
	return r
}

// Fallback sets the sender used for channels without a registered sender.
// Dry runs route everything to the console this way.
func (r *Router) Fallback(s Sender) *Router {
	r.fallback = s
	return r
}

// Notify delivers msg over channel c.
func (r *Router) Notify(ctx context.Context, c model.Channel, msg Message) error {
	s, ok := r.senders[c]
	if !ok {
		s = r.fallback
	}
	if s == nil {
		return fmt.Errorf("output: no sender for channel %q", c)
	}
	return s.Send(ctx, msg)
}
