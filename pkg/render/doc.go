// Package render turns an invoice snapshot into a PDF document.
//
// # Overview
//
// Rendering happens in two pure steps. Build lays the snapshot out into a
// Document: the line item grid for the project's layout, the status ribbon,
// summary rows and the payment block. Write draws the Document with gofpdf.
// The snapshot's GeneratedAt is the only clock input, so identical snapshots
// produce byte-identical PDFs.
//
// # Layouts
//
// Two closed layout variants exist. StandardLayout prints a description and
// an amount. EmployeeBasedLayout adds role, hours and rate columns and is
// used for employee-based hourly and retainer projects.
//
// # Usage Example
//
//	pdf, err := render.Render(render.Snapshot{
//		Invoice:     inv,
//		Project:     project,
//		Client:      client,
//		BankAccount: bank,
//		Company:     company,
//		GeneratedAt: time.Now(),
//	})
//	if errors.Is(err, billing.ErrRenderFailure) {
//		// project or payment instructions missing
//	}
//
// # Pagination
//
// Rows that do not fit move to a new page with the column headers repeated.
// The payment and signature block is never split across pages.
package render
