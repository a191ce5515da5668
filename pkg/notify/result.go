package notify

import (
	"errors"
	"fmt"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
)

// ChannelResult is the outcome of one delivery channel
type ChannelResult struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient,omitempty"`
	Sent      bool   `json:"sent"`
	Error     string `json:"error,omitempty"`

	err error
}

// Err returns the delivery error, if any
func (c ChannelResult) Err() error {
	return c.err
}

// Result reports what happened on every configured channel for one status change
type Result struct {
	InvoiceID string                `json:"invoice_id"`
	Status    billing.InvoiceStatus `json:"status"`

	// Skipped is set when the status does not notify or no channel is configured
	Skipped  bool            `json:"skipped"`
	Channels []ChannelResult `json:"channels"`
}

// Failed returns the channels that did not deliver
func (r *Result) Failed() []ChannelResult {
	if r == nil {
		return nil
	}
	var out []ChannelResult
	for _, c := range r.Channels {
		if !c.Sent {
			out = append(out, c)
		}
	}
	return out
}

// Err joins the per-channel errors into one
func (r *Result) Err() error {
	var errs []error
	for _, c := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", c.Channel, c.err))
	}
	return errors.Join(errs...)
}

func sentResult(channel, recipient string) ChannelResult {
	return ChannelResult{Channel: channel, Recipient: recipient, Sent: true}
}

func failedResult(channel, recipient string, err error) ChannelResult {
	return ChannelResult{Channel: channel, Recipient: recipient, Error: err.Error(), err: err}
}
