// Package testutil provides deterministic collaborators for tests: a wall
// clock that only moves on request, predetermined run ids, and a fake
// commerce upstream served over httptest.
package testutil
