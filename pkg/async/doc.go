// Package async runs background and fan-out work without letting a failing
// or panicking task take the process down.
//
// SafeGo is fire-and-forget. Status notifications use it after the invoice
// has been persisted:
//
//	async.SafeGo(context.WithoutCancel(ctx), logger, 30*time.Second, "status notification", func(ctx context.Context) error {
//		_, err := notifier.NotifyStatusChange(ctx, invoiceID, status)
//		return err
//	})
//
// ForEach fans a slice out over a bounded number of goroutines and returns
// one error slot per item:
//
//	errs := async.ForEach(ctx, logger, deliveries, len(deliveries), "fan-out", timeout, func(ctx context.Context, d delivery) error {
//		return d.send(ctx)
//	})
package async
