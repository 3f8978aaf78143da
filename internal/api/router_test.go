package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/davidterpay/transfer-contract/internal/ledger"
	"github.com/davidterpay/transfer-contract/internal/security"
	"github.com/davidterpay/transfer-contract/internal/store"
	"github.com/davidterpay/transfer-contract/pkg/audit"
)

type fakeLedger struct {
	initCalls     int
	depositCalls  int
	withdrawCalls int

	err   error
	instr *ledger.TransferInstruction
}

func (f *fakeLedger) Initialize(ctx context.Context, owner string, feePercent uint8) error {
	f.initCalls++
	return f.err
}

func (f *fakeLedger) SplitDeposit(ctx context.Context, req ledger.DepositRequest) error {
	f.depositCalls++
	return f.err
}

func (f *fakeLedger) Withdraw(ctx context.Context, caller string, amount uint64, denom string) (*ledger.TransferInstruction, error) {
	f.withdrawCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.instr, nil
}

func (f *fakeLedger) WithdrawAll(ctx context.Context, caller, denom string) (*ledger.TransferInstruction, error) {
	return f.Withdraw(ctx, caller, 0, denom)
}

func (f *fakeLedger) Owner(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "creator", nil
}

func (f *fakeLedger) FeePercent(ctx context.Context) (uint8, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 10, nil
}

func (f *fakeLedger) Balance(ctx context.Context, account, denom string) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 45, nil
}

type auditSpy struct{ records []audit.Record }

func (a *auditSpy) Append(rec audit.Record) *audit.LogEntry {
	a.records = append(a.records, rec)
	return &audit.LogEntry{Record: rec}
}

type publisherSpy struct {
	published []ledger.TransferInstruction
	err       error
}

func (p *publisherSpy) Publish(ctx context.Context, instr ledger.TransferInstruction) error {
	p.published = append(p.published, instr)
	return p.err
}

func newTestDeps(t *testing.T) (Dependencies, *fakeLedger, *publisherSpy, *auditSpy) {
	t.Helper()

	fl := &fakeLedger{instr: &ledger.TransferInstruction{ID: "tx-1", To: "alice", Denom: "usei", Amount: 20}}
	ps := &publisherSpy{}
	as := &auditSpy{}

	deps := Dependencies{
		LedgerReader: fl,
		LedgerWriter: fl,
		Publisher:    ps,
		Auditor:      as,
		MaxBodyBytes: 1 << 20,
	}
	return deps, fl, ps, as
}

func newTestServer(t *testing.T, deps Dependencies) *httptest.Server {
	t.Helper()

	h, err := NewRouter(deps)
	require.NoError(t, err)

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, account string, body any) *http.Response {
	t.Helper()

	b, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		req.Header.Set(security.AccountIDHeader, account)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealthz(t *testing.T) {
	deps, _, _, _ := newTestDeps(t)
	ts := newTestServer(t, deps)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMutationsRequireCaller(t *testing.T) {
	deps, fl, _, _ := newTestDeps(t)
	ts := newTestServer(t, deps)

	resp := postJSON(t, ts.URL+"/v1/ledger/config", "", map[string]any{"fee_percent": 10})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/v1/ledger/config", "bad header!", map[string]any{"fee_percent": 10})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.Equal(t, 0, fl.initCalls)
}

func TestValidationRunsBeforeEngine(t *testing.T) {
	deps, fl, _, _ := newTestDeps(t)
	ts := newTestServer(t, deps)

	// missing funds
	resp := postJSON(t, ts.URL+"/v1/ledger/deposits", "creator", map[string]any{
		"recipient1": "alice",
		"recipient2": "bob",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// zero amount
	resp = postJSON(t, ts.URL+"/v1/ledger/deposits", "creator", map[string]any{
		"recipient1": "alice",
		"recipient2": "bob",
		"funds":      []map[string]any{{"denom": "usei", "amount": 0}},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.Equal(t, 0, fl.depositCalls)
}

func TestConfigureSuccess(t *testing.T) {
	deps, fl, _, _ := newTestDeps(t)
	ts := newTestServer(t, deps)

	resp := postJSON(t, ts.URL+"/v1/ledger/config", "creator", map[string]any{"fee_percent": 10})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(security.CorrelationIDHeader))
	require.Equal(t, 1, fl.initCalls)

	var body configureResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "creator", body.Owner)
	require.Equal(t, uint8(10), body.FeePercent)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid fee", &ledger.InvalidFeePercentageError{Fees: 101}, http.StatusUnprocessableEntity, "invalid_fee_percentage"},
		{"already configured", ledger.ErrAlreadyConfigured, http.StatusConflict, "already_configured"},
		{"not initialized", store.ErrNotInitialized, http.StatusConflict, "not_initialized"},
		{"store fault", context.DeadlineExceeded, http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deps, fl, _, _ := newTestDeps(t)
			fl.err = tc.err
			ts := newTestServer(t, deps)

			resp := postJSON(t, ts.URL+"/v1/ledger/config", "creator", map[string]any{"fee_percent": 10})
			require.Equal(t, tc.wantStatus, resp.StatusCode)

			var body security.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.Equal(t, tc.wantCode, body.Error)
		})
	}
}

func TestInsufficientBalanceBody(t *testing.T) {
	deps, fl, ps, _ := newTestDeps(t)
	fl.err = &ledger.InsufficientBalanceError{Balance: 45, Requested: 46}
	ts := newTestServer(t, deps)

	resp := postJSON(t, ts.URL+"/v1/ledger/withdrawals", "alice", map[string]any{"denom": "usei", "amount": 46})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var body insufficientBalanceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "insufficient_balance", body.Error)
	require.Equal(t, uint64(45), body.Balance)
	require.Equal(t, uint64(46), body.Requested)

	require.Empty(t, ps.published)
}

func TestWithdrawPublishesTransfer(t *testing.T) {
	deps, _, ps, _ := newTestDeps(t)
	ts := newTestServer(t, deps)

	resp := postJSON(t, ts.URL+"/v1/ledger/withdrawals", "alice", map[string]any{"denom": "usei", "amount": 20})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body withdrawResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "tx-1", body.Transfer.ID)
	require.Equal(t, uint64(20), body.Transfer.Amount)

	require.Len(t, ps.published, 1)
	require.Equal(t, "alice", ps.published[0].To)
}

func TestPublishFailureDoesNotFailWithdraw(t *testing.T) {
	deps, _, ps, _ := newTestDeps(t)
	ps.err = context.DeadlineExceeded
	ts := newTestServer(t, deps)

	resp := postJSON(t, ts.URL+"/v1/ledger/withdrawals/all", "alice", map[string]any{"denom": "usei"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, ps.published, 1)
}

func TestQueries(t *testing.T) {
	deps, _, _, _ := newTestDeps(t)
	ts := newTestServer(t, deps)

	resp, err := http.Get(ts.URL + "/v1/ledger/config/owner")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ob ownerResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ob))
	require.Equal(t, "creator", ob.Owner)

	resp, err = http.Get(ts.URL + "/v1/ledger/config/fee")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fb feePercentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fb))
	require.Equal(t, uint8(10), fb.FeePercent)

	resp, err = http.Get(ts.URL + "/v1/ledger/balances/alice/usei")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bb balanceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&bb))
	require.Equal(t, uint64(45), bb.Balance)

	resp, err = http.Get(ts.URL + "/v1/ledger/balances/bad%20account/usei")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimitTrips(t *testing.T) {
	deps, _, _, _ := newTestDeps(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	deps.RateLimiter = &security.RedisTokenBucket{Redis: rdb, Prefix: "test", Capacity: 1, RefillRate: 0.0000001}

	ts := newTestServer(t, deps)

	resp, err := http.Get(ts.URL + "/v1/ledger/config/owner")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/v1/ledger/config/owner")
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestBodySizeLimit(t *testing.T) {
	deps, _, _, _ := newTestDeps(t)
	deps.MaxBodyBytes = 16
	ts := newTestServer(t, deps)

	resp := postJSON(t, ts.URL+"/v1/ledger/deposits", "creator", map[string]any{
		"recipient1": "alice",
		"recipient2": "bob",
		"funds":      []map[string]any{{"denom": "usei", "amount": 10}},
	})
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestAuditTrailRecordsOperations(t *testing.T) {
	deps, _, _, as := newTestDeps(t)
	ts := newTestServer(t, deps)

	resp := postJSON(t, ts.URL+"/v1/ledger/config", "creator", map[string]any{"fee_percent": 10})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.Len(t, as.records, 1)
	require.Equal(t, "POST /v1/ledger/config", as.records[0].Operation)
	require.Equal(t, "creator", as.records[0].Actor)
	require.Equal(t, "201", as.records[0].Outcome)
	require.NotEmpty(t, as.records[0].CorrelationID)
}
