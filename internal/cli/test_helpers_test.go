package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/shelfwise/internal/testutil"
)

const (
	testStoreID = "demo.myshopify.com"
	testToken   = "shpat_test"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// cliHarness runs commands against a temporary database and a fake upstream.
type cliHarness struct {
	t        *testing.T
	dir      string
	env      map[string]string
	clock    *testutil.FixedClock
	runIDs   *testutil.FixedRunIDs
	upstream *testutil.FakeUpstream
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	dir := t.TempDir()
	up := testutil.NewFakeUpstream(t, testToken)
	return &cliHarness{
		t:     t,
		dir:   dir,
		clock: testutil.NewFixedClock(testNow),
		// Shared across invocations so ledger ids never collide.
		runIDs:   testutil.SequentialRunIDs("run", 50),
		upstream: up,
		env: map[string]string{
			"SHELFWISE_DATABASE":            filepath.Join(dir, "shelfwise.db"),
			"SHELFWISE_BASE_URL":            up.URL(),
			"SHELFWISE_REQUESTS_PER_SECOND": "0",
		},
	}
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// run executes the root command with args.
func (h *cliHarness) run(args ...string) cliResult {
	return h.runContext(context.Background(), nil, args...)
}

func (h *cliHarness) runContext(ctx context.Context, ready func(string), args ...string) cliResult {
	h.t.Helper()
	opts := &RootOptions{
		Getenv:     func(k string) string { return h.env[k] },
		Now:        h.clock.Now,
		RunIDs:     h.runIDs,
		Sleep:      func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
		serveReady: ready,
	}
	cmd := newRootCommand(opts)

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(h.dir, "missing.env")))

	err := cmd.ExecuteContext(ctx)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// connect registers the test store.
func (h *cliHarness) connect() {
	h.t.Helper()
	res := h.run("store", "connect", testStoreID, "--token", testToken)
	require.NoError(h.t, res.err, res.stdout+res.stderr)
}

// decode parses a JSON envelope from stdout.
func decode(t *testing.T, stdout string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), stdout)
	return resp
}

// dataAs re-decodes the envelope payload into v.
func dataAs(t *testing.T, resp CLIResponse, v any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

// detailsAs re-decodes the error details of the envelope into v.
func detailsAs(t *testing.T, resp CLIResponse, v any) {
	t.Helper()
	require.NotNil(t, resp.Error)
	raw, err := json.Marshal(resp.Error.Details)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

// ordersPage renders one upstream page of orders. Order n was updated
// 48-n hours before testNow and sells two units of variant 100+n.
func ordersPage(ids ...int) string {
	records := make([]string, len(ids))
	for i, id := range ids {
		at := testNow.Add(-time.Duration(48-id) * time.Hour).Format(time.RFC3339)
		records[i] = fmt.Sprintf(`{"id":%d,"created_at":%q,"updated_at":%q,"total_price":"20.00","line_items":[{"variant_id":%d,"quantity":2}]}`,
			id, at, at, 100+id)
	}
	return "[" + strings.Join(records, ",") + "]"
}

func productsPage() string {
	return `[{"id":900,"title":"Linen Shirt","updated_at":"2026-05-30T00:00:00Z","variants":[
		{"id":101,"price":"30.00","inventory_quantity":5,"title":"S"},
		{"id":150,"price":"45.00","inventory_quantity":60,"title":"XL"}]}]`
}
