// Package commerce is a thin client for the upstream commerce platform's
// paginated admin REST API.
//
// The client fetches exactly one page per call and returns the raw JSON of
// each record so that callers can validate records one at a time. It never
// retries: retry policy belongs to the caller, which knows what has been
// committed.
//
// Pagination follows the platform's Link header. The first request of a
// walk may filter by modification time; later requests carry only the
// opaque page token from the previous response.
package commerce
