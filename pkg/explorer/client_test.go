package explorer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencollective/odoo-web3/pkg/chain"
)

const (
	testWallet = "0x1111111111111111111111111111111111111111"
	testToken  = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	testOther  = "0x2222222222222222222222222222222222222222"
)

func transferJSON(i int) string {
	return fmt.Sprintf(`{"blockNumber":"%d","timeStamp":"1726358400","hash":"0x%064x","from":"%s","to":"%s",
		"value":"1500000","contractAddress":"%s","tokenName":"USD Coin","tokenSymbol":"USDC","tokenDecimal":"6",
		"logIndex":"%d","transactionIndex":"9"}`, 100+i, i, testOther, testWallet, testToken, i)
}

func TestFetchPaginates(t *testing.T) {
	total := 5
	var pages []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "tokentx", q.Get("action"))
		assert.Equal(t, testWallet, q.Get("address"))
		assert.Equal(t, testToken, q.Get("contractaddress"))
		assert.Equal(t, "asc", q.Get("sort"))
		assert.Equal(t, "key", q.Get("apikey"))
		assert.Equal(t, "1", q.Get("chainid"))
		pages = append(pages, q.Get("page"))

		page, _ := strconv.Atoi(q.Get("page"))
		size, _ := strconv.Atoi(q.Get("offset"))
		start := (page - 1) * size

		body := `{"status":"1","message":"OK","result":[`
		for i := start; i < start+size && i < total; i++ {
			if i > start {
				body += ","
			}
			body += transferJSON(i)
		}
		body += `]}`
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIURL: srv.URL, APIKey: "key", ChainID: 1, PageSize: 2, MinDelay: time.Millisecond})

	events, err := c.Fetch(context.Background(), testWallet, testToken, nil)
	require.NoError(t, err)
	require.Len(t, events, total)
	assert.Equal(t, []string{"1", "2", "3"}, pages)

	e := events[0]
	assert.Equal(t, int64(0), e.LogIndex)
	assert.Equal(t, int64(100), e.BlockNumber)
	assert.Equal(t, int32(6), e.Decimals)
	assert.Equal(t, "1500000", e.Value)
	assert.Equal(t, "USDC", e.TokenSymbol)
	assert.Equal(t, "2024-09-15", e.Date())
}

func TestFetchNoTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"0","message":"No transactions found","result":[]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIURL: srv.URL, MinDelay: time.Millisecond})

	events, err := c.Fetch(context.Background(), testWallet, testToken, &chain.BlockRange{From: 10, To: 20})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "rate limit message",
			status: http.StatusOK,
			body:   `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrRateLimited) },
		},
		{
			name:   "http 429",
			status: http.StatusTooManyRequests,
			body:   ``,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrRateLimited) },
		},
		{
			name:   "api error",
			status: http.StatusOK,
			body:   `{"status":"0","message":"NOTOK","result":"Invalid API Key"}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, "Invalid API Key", apiErr.Result)
			},
		},
		{
			name:   "malformed json",
			status: http.StatusOK,
			body:   `<html>oops</html>`,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrMalformedResponse) },
		},
		{
			name:   "malformed transfer",
			status: http.StatusOK,
			body:   `{"status":"1","message":"OK","result":[{"hash":"0x1","blockNumber":"x"}]}`,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrMalformedResponse) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(ClientConfig{APIURL: srv.URL, MinDelay: time.Millisecond})
			_, err := c.Fetch(context.Background(), testWallet, testToken, nil)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestFetchRejectsInvalidAddresses(t *testing.T) {
	c := NewClient(ClientConfig{APIURL: "http://127.0.0.1:1"})

	_, err := c.Fetch(context.Background(), "not-an-address", testToken, nil)
	assert.ErrorIs(t, err, chain.ErrInvalidAddress)
}

func TestRequestsAreSpaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"0","message":"No transactions found","result":[]}`))
	}))
	defer srv.Close()

	delay := 30 * time.Millisecond
	c := NewClient(ClientConfig{APIURL: srv.URL, MinDelay: delay})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.ListTokenTransfers(context.Background(), testWallet, testToken, nil, 1)
		require.NoError(t, err)
	}

	assert.GreaterOrEqual(t, time.Since(start), 2*delay)
}

func TestFetchMultipleTransfersInOneTransaction(t *testing.T) {
	row := func(hash, value, logIndex string) string {
		s := fmt.Sprintf(`{"blockNumber":"200","timeStamp":"1726358400","hash":"%s","from":"%s","to":"%s",
			"value":"%s","contractAddress":"%s","tokenSymbol":"USDC","tokenDecimal":"6","transactionIndex":"3"`,
			hash, testOther, testWallet, value, testToken)
		if logIndex != "" {
			s += fmt.Sprintf(`,"logIndex":"%s"`, logIndex)
		}
		return s + "}"
	}
	multi := fmt.Sprintf("0x%064x", 7)
	single := fmt.Sprintf("0x%064x", 8)
	indexed := fmt.Sprintf("0x%064x", 9)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"status":"1","message":"OK","result":[%s,%s,%s,%s]}`,
			row(multi, "1000000", ""), row(multi, "2000000", ""), row(single, "3000000", ""), row(indexed, "4000000", "41"))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIURL: srv.URL, MinDelay: time.Millisecond})
	events, err := c.Fetch(context.Background(), testWallet, testToken, nil)
	require.NoError(t, err)
	require.Len(t, events, 4)

	tests := []struct {
		name     string
		event    chain.TransferEvent
		logIndex int64
	}{
		{"first transfer of transaction", events[0], 0},
		{"second transfer of transaction", events[1], 1},
		{"other transaction restarts", events[2], 0},
		{"explorer log index wins", events[3], 41},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.logIndex, tt.event.LogIndex)
		})
	}

	assert.NotEqual(t, events[0].Key(), events[1].Key())
	assert.Equal(t, "1000000", events[0].Value)
	assert.Equal(t, "2000000", events[1].Value)
}
