// Package gallery implements media synchronisation between a local
// source and a device gallery.
//
// A sync run examines source items one at a time: each item is
// re-encoded to a device-ready JPEG, fingerprinted by content, and
// either uploaded, skipped as a duplicate of something already on the
// device, or recorded as a failure. The run holds the device session
// exclusively from first listing to last upload, so concurrent API
// callers queue behind it rather than interleaving.
//
// Duplicate detection works without downloading device bytes: uploaded
// filenames embed a fingerprint prefix which later runs recover from
// the gallery listing.
//
// Run history is persisted to SQLite through the Ledger.
package gallery
