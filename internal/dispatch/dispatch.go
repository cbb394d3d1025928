// Package dispatch delivers one digest per alert and isolates failures so
// one broken recipient never blocks the rest of the batch.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rsilvagit/go-rent/internal/model"
	"github.com/rsilvagit/go-rent/internal/output"
)

// Notifier delivers a rendered message over a channel.
type Notifier interface {
	Notify(ctx context.Context, channel model.Channel, msg output.Message) error
}

// Batch is an alert with the listings it should be told about.
type Batch struct {
	Alert    model.Alert
	Listings []model.Listing
}

// Result summarizes one dispatch run.
type Result struct {
	Attempted int
	Sent      int
	Failed    int
	Errors    []error
	// Delivered holds the batches that were sent successfully, in order.
	Delivered []Batch
}

// Dispatcher renders and sends alert digests.
type Dispatcher struct {
	notifier  Notifier
	manageURL string
	logger    *slog.Logger
}

func New(n Notifier, manageURL string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{notifier: n, manageURL: manageURL, logger: logger}
}

// Dispatch sends one notification per batch with at least one listing. A
// failure is recorded and the loop continues; nothing is retried here.
func (d *Dispatcher) Dispatch(ctx context.Context, batches []Batch) Result {
	var res Result

	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err)
			break
		}
		if len(b.Listings) == 0 {
			continue
		}
		res.Attempted++

		if err := d.send(ctx, b); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, err)
			d.logger.Error("alert notification failed",
				"alert", b.Alert.ID, "channel", b.Alert.Channel, "listings", len(b.Listings), "error", err)
			continue
		}

		res.Sent++
		res.Delivered = append(res.Delivered, b)
		d.logger.Info("alert notified", "alert", b.Alert.ID, "channel", b.Alert.Channel, "listings", len(b.Listings))
	}
	return res
}

func (d *Dispatcher) send(ctx context.Context, b Batch) error {
	msg, err := output.Render(b.Alert, b.Listings, d.manageURL)
	if err != nil {
		return fmt.Errorf("dispatch: alert %s: %w", b.Alert.ID, err)
	}
	if err := d.notifier.Notify(ctx, b.Alert.Channel, msg); err != nil {
		return fmt.Errorf("dispatch: alert %s: %w", b.Alert.ID, err)
	}
	return nil
}
