// Package app assembles the billing components from a config.Config.
//
// Both binaries start from New, which opens storage, the invoice number
// counter and the notification channels, and builds the lifecycle manager
// on top of them. The API server additionally asks for the document service
// and the payment ledger. Every resource opened by New is handed to the
// process's ShutdownManager through RegisterShutdown.
package app
