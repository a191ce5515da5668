// Package documents serves rendered invoice PDFs.
//
// Lookups go through two tiers before rendering:
//
//  1. an in-process expirable LRU keyed by invoice id and version
//  2. the object archive, at invoices/{id}/v{version}.pdf
//
// A miss on both resolves a render.Snapshot from the stores, renders it and
// writes the result to both tiers. The archived object carries the generation
// timestamp in its metadata, so a document served from the archive reports
// when it was first produced.
//
// Both tiers are keyed by invoice version only. Edits to the project, client,
// bank account or company profile reach the PDF once the invoice version is
// bumped (any lifecycle write) or the archived object is purged.
//
//	docs := documents.NewService(documents.Deps{
//		Invoices: store,
//		Projects: store,
//		Refs:     store,
//		Archive:  s3Archive,
//		Metrics:  metrics,
//		Config:   documents.DefaultConfig(),
//	})
//	doc, err := docs.Get(ctx, invoiceID)
package documents
