// Package kindlebeam turns a web article into an EPUB and emails it to a
// Kindle address.
//
// # Quick Start
//
// Build a deliverer and a Beamer from a loaded config, then process requests:
//
//	cfg, err := config.LoadConfig(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	deliverer := kindlebeam.NewSMTPDelivererFromConfig(cfg, logger)
//	beamer, err := kindlebeam.NewBeamer(kindlebeam.SettingsFromConfig(cfg), deliverer)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp := beamer.Process(ctx, kindlebeam.Request{
//	    Title:   "Article",
//	    Content: "<p>Hello <img src=\"/a.png\"></p>",
//	    URL:     "https://example.com/post",
//	})
//
// Process never returns an error: every failure is reported in the Response.
// Use Run to get the underlying error and KindOf to classify it.
//
// # Pipeline
//
// A request moves through these stages:
//
//  1. Validation (whitespace-only content is rejected before any I/O)
//  2. Image extraction and concurrent download into a private workspace
//  3. Image source rewriting to the local file names
//  4. EPUB assembly by the external converter (pandoc) under a timeout
//  5. Delivery by SMTP with the EPUB attached
//
// Images that cannot be fetched are left pointing at their original URL.
// The workspace and the EPUB are removed on every exit path.
//
// # Errors
//
// Failures wrap one of the sentinel errors (ErrEmptyContent,
// ErrConversionTimeout, ErrConversionFailed, ErrDeliveryAuth,
// ErrDeliveryTransport, ErrIO) or a config error. ResponseFor maps them to
// the messages shown in the browser.
package kindlebeam
