// Package notify delivers client notifications when an invoice enters a
// status that the client should hear about: paid, overdue or cancelled.
//
// # Channels
//
// Two transports are provided:
//
//   - SMTPSender sends the HTML template body by email
//   - MessagingSender posts the text template to an HTTP messaging API,
//     signing the body with HMAC-SHA256 in the X-Billing-Signature header
//     and retrying 5xx and 429 responses with exponential backoff
//
// Service fans a status change out to every configured channel and reports
// the outcome per channel in a Result. Delivery failures never surface as an
// error from NotifyStatusChange; callers inspect Result.Failed.
//
// # Templates
//
// Templates are keyed by status and use brace placeholders:
//
//	{client_name} {invoice_number} {company_name} {amount}
//	{due_date} {project_name} {paid_date} {deletion_remark}
//
// A YAML file can override any of the built-in templates:
//
//	version: "2025-06"
//	templates:
//	  overdue:
//	    subject: "Reminder: invoice {invoice_number} is overdue"
//	    message: "{invoice_number} for {amount} was due {due_date}"
//
// TemplateStore.StartWatching reloads the file on change. A file that fails
// to parse leaves the previous set active.
//
// # Verifying messaging signatures
//
//	body, _ := io.ReadAll(r.Body)
//	if !notify.VerifySignature(body, r.Header.Get("X-Billing-Signature"), secret) {
//		http.Error(w, "invalid signature", http.StatusUnauthorized)
//		return
//	}
package notify
