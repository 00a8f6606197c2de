package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/client-ledger/internal/ledger"
	"github.com/sheikh-saqib/client-ledger/internal/metrics"
	"github.com/sheikh-saqib/client-ledger/internal/models"
	"github.com/sheikh-saqib/client-ledger/internal/statement"
	"github.com/sheikh-saqib/client-ledger/internal/storage/memory"
)

var t0 = time.Date(2021, 2, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...ledger.Option) *httptest.Server {
	t.Helper()
	return newInstrumentedServer(t, nil, opts...)
}

func newInstrumentedServer(t *testing.T, m *metrics.Metrics, opts ...ledger.Option) *httptest.Server {
	t.Helper()
	store := memory.NewMemoryLedgerStore()
	next := t0
	clock := func() time.Time {
		now := next
		next = next.Add(time.Minute)
		return now
	}
	l := ledger.NewLedger(store, append([]ledger.Option{ledger.WithClock(clock)}, opts...)...)
	h := NewHandler(l, statement.NewBuilder(store, nil), m, nil)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, srv *httptest.Server, path string, query url.Values) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path + "?" + query.Encode())
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBalance(t *testing.T, resp *http.Response) balanceResponse {
	t.Helper()
	var out balanceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHandler_DepositAndWithdraw(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv, "/deposits", `{"client":"John Jones","amount":"100","description":"ATM Deposit"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decodeBalance(t, resp)
	assert.Equal(t, "John Jones", out.Client)
	assert.True(t, out.Balance.Equal(decimal.NewFromInt(100)))

	resp = post(t, srv, "/withdrawals", `{"client":"John Jones","amount":50,"description":"ATM Withdrawal"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, decodeBalance(t, resp).Balance.Equal(decimal.NewFromInt(50)))

	resp = get(t, srv, "/balance", url.Values{"client": {"John Jones"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBalance(t, resp).Balance.Equal(decimal.NewFromInt(50)))
}

func TestHandler_OperationErrors(t *testing.T) {
	srv := newTestServer(t, ledger.WithOverdraft(false))

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"malformed body", "/deposits", `{"client":`, http.StatusBadRequest},
		{"missing client", "/deposits", `{"amount":"10"}`, http.StatusBadRequest},
		{"zero amount", "/deposits", `{"client":"Alice","amount":"0"}`, http.StatusBadRequest},
		{"negative amount", "/withdrawals", `{"client":"Alice","amount":"-1"}`, http.StatusBadRequest},
		{"overdraft", "/withdrawals", `{"client":"Alice","amount":"1"}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestHandler_GetBalance_UnknownClient(t *testing.T) {
	srv := newTestServer(t)

	resp := get(t, srv, "/balance", url.Values{"client": {"Nobody"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = get(t, srv, "/balance", url.Values{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_Statement(t *testing.T) {
	srv := newTestServer(t)
	post(t, srv, "/deposits", `{"client":"Alice","amount":"100","description":"init"}`)
	post(t, srv, "/withdrawals", `{"client":"Alice","amount":"30","description":"atm"}`)

	resp := get(t, srv, "/statement", url.Values{
		"client": {"Alice"},
		"since":  {"2021-02-01 00:00:00"},
		"till":   {"2021-02-01"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stmt models.Statement
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stmt))
	require.Len(t, stmt.Rows, 2)
	assert.True(t, stmt.PreviousBalance.IsZero())
	assert.True(t, stmt.TotalDeposits.Equal(decimal.NewFromInt(100)))
	assert.True(t, stmt.TotalWithdrawals.Equal(decimal.NewFromInt(30)))
	assert.True(t, stmt.ClosingBalance.Equal(decimal.NewFromInt(70)))
	assert.True(t, stmt.Rows[1].Withdrawal.Valid)
	assert.False(t, stmt.Rows[1].Deposit.Valid)
}

func TestHandler_StatementCSV(t *testing.T) {
	srv := newTestServer(t)
	post(t, srv, "/deposits", `{"client":"Alice","amount":"100","description":"init"}`)

	resp := get(t, srv, "/statement", url.Values{
		"client": {"Alice"},
		"since":  {"2021-02-01T00:00:00Z"},
		"till":   {"2021-02-02 00:00:00"},
		"format": {"csv"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	var body strings.Builder
	_, err := io.Copy(&body, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "2021-02-01 12:00:00,init,,$100.00,$100.00")
	assert.Contains(t, body.String(), ",Totals,,$100.00,$100.00")
}

func TestHandler_StatementErrors(t *testing.T) {
	srv := newTestServer(t)
	post(t, srv, "/deposits", `{"client":"Alice","amount":"100"}`)

	resp := get(t, srv, "/statement", url.Values{"client": {"Alice"}, "since": {"2022-01-01"}, "till": {"2022-02-01"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = get(t, srv, "/statement", url.Values{"client": {"Alice"}, "since": {"yesterday"}, "till": {"2022-02-01"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = get(t, srv, "/statement", url.Values{"client": {"Alice"}, "since": {"2022-02-01"}, "till": {"2022-01-01"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = get(t, srv, "/statement", url.Values{"client": {"Alice"}, "since": {"2021-01-01"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_ListClientsAndHealth(t *testing.T) {
	srv := newTestServer(t)
	post(t, srv, "/deposits", `{"client":"Bob","amount":"5"}`)
	post(t, srv, "/deposits", `{"client":"Alice","amount":"7"}`)

	resp := get(t, srv, "/clients", url.Values{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var clients []balanceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&clients))
	require.Len(t, clients, 2)
	assert.Equal(t, "Alice", clients[0].Client)

	resp = get(t, srv, "/health", url.Values{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("2021-04-01", true)
	require.NoError(t, err)
	assert.True(t, time.Date(2021, 4, 1, 23, 59, 59, 0, time.UTC).Equal(got))

	got, err = parseTime("2021-04-01", false)
	require.NoError(t, err)
	assert.True(t, time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC).Equal(got))

	got, err = parseTime("2021-04-01 10:11:12", true)
	require.NoError(t, err)
	assert.True(t, time.Date(2021, 4, 1, 10, 11, 12, 0, time.UTC).Equal(got))

	_, err = parseTime("", false)
	assert.Error(t, err)
}

func TestHandler_Metrics(t *testing.T) {
	m := metrics.New()
	srv := newInstrumentedServer(t, m)
	post(t, srv, "/deposits", `{"client":"Alice","amount":"1"}`)
	get(t, srv, "/balance", url.Values{"client": {"Nobody"}})

	resp := get(t, srv, "/metrics", url.Values{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body strings.Builder
	_, err := io.Copy(&body, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), `ledger_http_request_duration_seconds_count{method="POST",route="/deposits",status="201"} 1`)
	assert.Contains(t, body.String(), `ledger_http_request_duration_seconds_count{method="GET",route="/balance",status="404"} 1`)
}

func TestHandler_NoMetricsRoute(t *testing.T) {
	srv := newTestServer(t)
	resp := get(t, srv, "/metrics", url.Values{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
