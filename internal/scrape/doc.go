// Package scrape implements the fetch engine of urlscraper: URL validation,
// body decoding, single-URL fetch classification, and the result table that the
// dispatcher fills in place.
//
// Every fetch failure is converted into a row status here; nothing in this
// package returns a network error to its caller.
package scrape
