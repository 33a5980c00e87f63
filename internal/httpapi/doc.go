// Package httpapi exposes sync and analytics triggers over HTTP.
//
// Routes:
//
//	GET  /healthz
//	POST /api/v1/stores/{store_id}/sync/{orders|variants|all}?dry=&days=&pageCap=&maxDuration=
//	GET  /api/v1/stores/{store_id}/analytics?windowDays=&minStock=&inactivityDays=&discountPct=&maxSalesInWindow=&rule=
//
// Sync failures map to statuses by error code: CONFIGURATION is 404 for an
// unknown store and 409 for one that is not authorized, UPSTREAM_REJECTED is
// 502, TRANSIENT_UPSTREAM and CANCELED are 503, STORAGE is 500. The body
// always carries the run summaries, including failed ones.
package httpapi
