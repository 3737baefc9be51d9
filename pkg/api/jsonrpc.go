package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/luxfi/log"

	"github.com/stablelabs/dusd/pkg/dusd"
)

// JSONRPCServer handles JSON-RPC 2.0 requests against the engine.
// Amounts cross the wire as decimal strings so precision never depends
// on JSON number handling.
type JSONRPCServer struct {
	engine *dusd.Engine
	logger log.Logger
}

// NewJSONRPCServer creates a new JSON-RPC server
func NewJSONRPCServer(engine *dusd.Engine, logger log.Logger) *JSONRPCServer {
	return &JSONRPCServer{
		engine: engine,
		logger: logger,
	}
}

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements error interface
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC Error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// ServeHTTP implements http.Handler
func (s *JSONRPCServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, nil, ParseError, "Parse error")
		return
	}

	if req.JSONRPC != "2.0" {
		s.sendError(w, req.ID, InvalidRequest, "Invalid Request")
		return
	}

	result, err := s.handleMethod(req.Method, req.Params)
	if err != nil {
		rpcErr, ok := err.(*RPCError)
		if !ok {
			// Engine errors surface with their typed message intact.
			rpcErr = &RPCError{Code: InternalError, Message: err.Error()}
		}
		s.sendError(w, req.ID, rpcErr.Code, rpcErr.Message)
		return
	}

	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *JSONRPCServer) handleMethod(method string, params json.RawMessage) (interface{}, error) {
	switch method {
	// Issuance and redemption
	case "dusd_issue":
		return s.issue(params)
	case "dusd_redeem":
		return s.redeem(params)

	// Collateral queries
	case "dusd_totalValue":
		return s.totalValue(params)
	case "dusd_getAssets":
		return s.getAssets(params)
	case "dusd_getBalance":
		return s.getBalance(params)
	case "dusd_getPrice":
		return s.getPrice(params)

	// AMO operations
	case "dusd_allocateAmo":
		return s.allocateAmo(params)
	case "dusd_deallocateAmo":
		return s.deallocateAmo(params)
	case "dusd_getAllocation":
		return s.getAllocation(params)
	case "dusd_availableProfit":
		return s.availableProfit(params)

	// Info methods
	case "dusd_getSnapshot":
		return s.getSnapshot(params)
	case "dusd_getInfo":
		return s.getInfo(params)
	case "dusd_ping":
		return "pong", nil

	default:
		return nil, &RPCError{Code: MethodNotFound, Message: "Method not found"}
	}
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: fmt.Sprintf("invalid amount %q", s)}
	}
	return amount, nil
}

// optionalAmount parses a minimum-out bound, nil when absent.
func optionalAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return parseAmount(s)
}

func (s *JSONRPCServer) issue(params json.RawMessage) (interface{}, error) {
	var p struct {
		Caller        string `json:"caller"`
		Amount        string `json:"amount"`
		Asset         string `json:"asset"`
		MinReceiptOut string `json:"minReceiptOut,omitempty"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}

	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	minOut, err := optionalAmount(p.MinReceiptOut)
	if err != nil {
		return nil, err
	}

	out, err := s.engine.Issue(p.Caller, amount, p.Asset, minOut)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"receiptAmount": out.String(),
		"status":        "issued",
	}, nil
}

func (s *JSONRPCServer) redeem(params json.RawMessage) (interface{}, error) {
	var p struct {
		Caller           string `json:"caller"`
		Amount           string `json:"amount"`
		Asset            string `json:"asset"`
		MinCollateralOut string `json:"minCollateralOut,omitempty"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}

	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	minOut, err := optionalAmount(p.MinCollateralOut)
	if err != nil {
		return nil, err
	}

	out, err := s.engine.Redeem(p.Caller, amount, p.Asset, minOut)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"collateralAmount": out.String(),
		"feeBps":           s.engine.Redeemer.FeeBpsFor(p.Asset),
		"status":           "redeemed",
	}, nil
}

func (s *JSONRPCServer) totalValue(params json.RawMessage) (interface{}, error) {
	value, err := s.engine.Collateral.TotalValue()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"totalValue": value.String(),
		"decimals":   dusd.PriceDecimals,
	}, nil
}

func (s *JSONRPCServer) getAssets(params json.RawMessage) (interface{}, error) {
	return s.engine.Collateral.Assets(), nil
}

func (s *JSONRPCServer) getBalance(params json.RawMessage) (interface{}, error) {
	var p struct {
		Asset string `json:"asset"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	return map[string]interface{}{
		"asset":   p.Asset,
		"balance": s.engine.Collateral.Balance(p.Asset).String(),
	}, nil
}

func (s *JSONRPCServer) getPrice(params json.RawMessage) (interface{}, error) {
	var p struct {
		Asset string `json:"asset"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}

	price, alive := s.engine.Oracle.GetPriceInfo(p.Asset)
	return map[string]interface{}{
		"asset":    p.Asset,
		"price":    price.String(),
		"decimals": dusd.PriceDecimals,
		"alive":    alive,
	}, nil
}

func (s *JSONRPCServer) allocateAmo(params json.RawMessage) (interface{}, error) {
	var p struct {
		Caller string `json:"caller"`
		Vault  string `json:"vault"`
		Amount string `json:"amount"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}

	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.AllocateAmo(p.Caller, p.Vault, amount); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"vault":      p.Vault,
		"allocation": s.engine.Allocator.AllocationOf(p.Vault).String(),
		"status":     "allocated",
	}, nil
}

func (s *JSONRPCServer) deallocateAmo(params json.RawMessage) (interface{}, error) {
	var p struct {
		Caller string `json:"caller"`
		Vault  string `json:"vault"`
		Amount string `json:"amount"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}

	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.DeallocateAmo(p.Caller, p.Vault, amount); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"vault":      p.Vault,
		"allocation": s.engine.Allocator.AllocationOf(p.Vault).String(),
		"status":     "deallocated",
	}, nil
}

func (s *JSONRPCServer) getAllocation(params json.RawMessage) (interface{}, error) {
	var p struct {
		Vault string `json:"vault"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}
	return map[string]interface{}{
		"vault":      p.Vault,
		"state":      s.engine.Allocator.VaultState(p.Vault).String(),
		"allocation": s.engine.Allocator.AllocationOf(p.Vault).String(),
	}, nil
}

func (s *JSONRPCServer) availableProfit(params json.RawMessage) (interface{}, error) {
	var p struct {
		Vault string `json:"vault"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params"}
	}

	profit, err := s.engine.Allocator.AvailableProfit(p.Vault)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"vault":  p.Vault,
		"profit": profit.String(),
	}, nil
}

func (s *JSONRPCServer) getSnapshot(params json.RawMessage) (interface{}, error) {
	snap, err := s.engine.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *JSONRPCServer) getInfo(params json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"version":     "1.0.0",
		"symbol":      dusd.ReceiptSymbol,
		"decimals":    dusd.ReceiptDecimals,
		"totalSupply": s.engine.Receipt.TotalSupply().String(),
		"timestamp":   time.Now().Unix(),
		"assetCount":  len(s.engine.Collateral.Assets()),
	}, nil
}

func (s *JSONRPCServer) sendError(w http.ResponseWriter, id interface{}, code int, message string) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
		ID: id,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// StartJSONRPCServer starts the JSON-RPC server
func StartJSONRPCServer(ctx context.Context, port int, engine *dusd.Engine, logger log.Logger) error {
	server := NewJSONRPCServer(engine, logger)

	mux := http.NewServeMux()
	mux.Handle("/", server)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	logger.Info("JSON-RPC server started", "port", port)
	return httpServer.ListenAndServe()
}
