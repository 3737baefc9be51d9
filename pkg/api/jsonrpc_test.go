package api

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablelabs/dusd/pkg/dusd"
)

func newTestServer(t *testing.T) (*JSONRPCServer, *dusd.Engine) {
	t.Helper()

	engine := dusd.NewEngine(dusd.EngineConfig{Admin: "admin", FeeReceiver: "fee-receiver"})

	dollar := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(dusd.PriceDecimals)), nil)
	require.NoError(t, engine.Oracle.RegisterFeed(dusd.NewStaticFeed(dusd.ReceiptSymbol, dollar)))
	require.NoError(t, engine.Oracle.RegisterFeed(dusd.NewStaticFeed("USDC", dollar)))

	usdc := dusd.NewToken("USDC", 6)
	require.NoError(t, engine.Collateral.Allow("admin", usdc))
	require.NoError(t, usdc.Mint("alice", big.NewInt(1_000_000_000))) // 1000 USDC

	level, _ := log.ToLevel("debug")
	logger := log.NewTestLogger(level)
	return NewJSONRPCServer(engine, logger), engine
}

func call(t *testing.T, server *JSONRPCServer, body string) map[string]interface{} {
	t.Helper()

	req := httptest.NewRequest("POST", "/rpc", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "2.0", resp["jsonrpc"])
	return resp
}

func TestJSONRPCServer_Ping(t *testing.T) {
	server, _ := newTestServer(t)

	resp := call(t, server, `{"jsonrpc":"2.0","method":"dusd_ping","params":{},"id":1}`)
	assert.Equal(t, "pong", resp["result"])
	assert.Equal(t, float64(1), resp["id"])
}

func TestJSONRPCServer_Issue(t *testing.T) {
	server, engine := newTestServer(t)

	resp := call(t, server, `{"jsonrpc":"2.0","method":"dusd_issue","params":{"caller":"alice","amount":"100000000","asset":"USDC"},"id":2}`)

	result := resp["result"].(map[string]interface{})
	assert.Equal(t, "issued", result["status"])
	assert.Equal(t, "100000000", result["receiptAmount"]) // 100 dUSD at 6 decimals
	assert.Equal(t, big.NewInt(100_000_000), engine.Receipt.BalanceOf("alice"))
}

func TestJSONRPCServer_Redeem(t *testing.T) {
	server, engine := newTestServer(t)

	call(t, server, `{"jsonrpc":"2.0","method":"dusd_issue","params":{"caller":"alice","amount":"100000000","asset":"USDC"},"id":1}`)

	resp := call(t, server, `{"jsonrpc":"2.0","method":"dusd_redeem","params":{"caller":"alice","amount":"100000000","asset":"USDC"},"id":2}`)

	result := resp["result"].(map[string]interface{})
	assert.Equal(t, "redeemed", result["status"])
	assert.Equal(t, "100000000", result["collateralAmount"])
	assert.Equal(t, int64(0), engine.Receipt.TotalSupply().Int64())
}

func TestJSONRPCServer_TotalValue(t *testing.T) {
	server, _ := newTestServer(t)

	call(t, server, `{"jsonrpc":"2.0","method":"dusd_issue","params":{"caller":"alice","amount":"250000000","asset":"USDC"},"id":1}`)

	resp := call(t, server, `{"jsonrpc":"2.0","method":"dusd_totalValue","params":{},"id":2}`)
	result := resp["result"].(map[string]interface{})
	assert.Equal(t, "25000000000", result["totalValue"]) // $250 in 8-decimal units
}

func TestJSONRPCServer_GetPrice(t *testing.T) {
	server, _ := newTestServer(t)

	resp := call(t, server, `{"jsonrpc":"2.0","method":"dusd_getPrice","params":{"asset":"USDC"},"id":3}`)
	result := resp["result"].(map[string]interface{})
	assert.Equal(t, "100000000", result["price"])
	assert.Equal(t, true, result["alive"])

	resp = call(t, server, `{"jsonrpc":"2.0","method":"dusd_getPrice","params":{"asset":"FRAX"},"id":4}`)
	result = resp["result"].(map[string]interface{})
	assert.Equal(t, false, result["alive"])
}

func TestJSONRPCServer_EngineErrorsSurface(t *testing.T) {
	server, _ := newTestServer(t)

	// Alice holds no dUSD yet, so redemption must fail.
	resp := call(t, server, `{"jsonrpc":"2.0","method":"dusd_redeem","params":{"caller":"alice","amount":"100000000","asset":"USDC"},"id":5}`)
	rpcErr := resp["error"].(map[string]interface{})
	assert.Equal(t, float64(InternalError), rpcErr["code"])
	assert.NotEmpty(t, rpcErr["message"])
}

func TestJSONRPCServer_InvalidRequests(t *testing.T) {
	server, _ := newTestServer(t)

	t.Run("BadAmount", func(t *testing.T) {
		resp := call(t, server, `{"jsonrpc":"2.0","method":"dusd_issue","params":{"caller":"alice","amount":"not-a-number","asset":"USDC"},"id":6}`)
		rpcErr := resp["error"].(map[string]interface{})
		assert.Equal(t, float64(InvalidParams), rpcErr["code"])
	})

	t.Run("UnknownMethod", func(t *testing.T) {
		resp := call(t, server, `{"jsonrpc":"2.0","method":"dusd_unknown","params":{},"id":7}`)
		rpcErr := resp["error"].(map[string]interface{})
		assert.Equal(t, float64(MethodNotFound), rpcErr["code"])
	})

	t.Run("WrongVersion", func(t *testing.T) {
		resp := call(t, server, `{"jsonrpc":"1.0","method":"dusd_ping","params":{},"id":8}`)
		rpcErr := resp["error"].(map[string]interface{})
		assert.Equal(t, float64(InvalidRequest), rpcErr["code"])
	})

	t.Run("GetNotAllowed", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/rpc", nil)
		w := httptest.NewRecorder()
		server.ServeHTTP(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestJSONRPCServer_GetInfo(t *testing.T) {
	server, _ := newTestServer(t)

	resp := call(t, server, `{"jsonrpc":"2.0","method":"dusd_getInfo","params":{},"id":9}`)
	result := resp["result"].(map[string]interface{})
	assert.Equal(t, dusd.ReceiptSymbol, result["symbol"])
	assert.Equal(t, float64(dusd.ReceiptDecimals), result["decimals"])
	assert.Equal(t, float64(1), result["assetCount"])
}
