// Package api exposes the exchange over REST and WebSocket.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/atsx/atsd/pkg/bank"
	"github.com/atsx/atsd/pkg/exchange"
)

// Server handles REST API and WebSocket connections.
type Server struct {
	app    *exchange.App
	bank   *bank.Ledger
	router *mux.Router
	hub    *Hub
	log    *zap.Logger
}

// NewServer creates a new API server around the exchange app.
func NewServer(app *exchange.App, ledger *bank.Ledger, log *zap.Logger) *Server {
	s := &Server{
		app:    app,
		bank:   ledger,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Ask lifecycle
	api.HandleFunc("/asks", s.handleCreateAsk).Methods("POST")
	api.HandleFunc("/asks/{id}", s.handleGetAsk).Methods("GET")
	api.HandleFunc("/asks/{id}/approve", s.handleApproveAsk).Methods("POST")
	api.HandleFunc("/asks/{id}/cancel", s.handleCancelAsk).Methods("POST")
	api.HandleFunc("/asks/{id}/expire", s.handleExpireAsk).Methods("POST")
	api.HandleFunc("/asks/{id}/reject", s.handleRejectAsk).Methods("POST")

	// Bid lifecycle
	api.HandleFunc("/bids", s.handleCreateBid).Methods("POST")
	api.HandleFunc("/bids/{id}", s.handleGetBid).Methods("GET")
	api.HandleFunc("/bids/{id}/cancel", s.handleCancelBid).Methods("POST")
	api.HandleFunc("/bids/{id}/expire", s.handleExpireBid).Methods("POST")
	api.HandleFunc("/bids/{id}/reject", s.handleRejectBid).Methods("POST")

	// Settlement
	api.HandleFunc("/matches", s.handleExecuteMatch).Methods("POST")

	// Contract administration
	api.HandleFunc("/contract", s.handleGetContractInfo).Methods("GET")
	api.HandleFunc("/contract/modify", s.handleModifyContract).Methods("POST")
	api.HandleFunc("/contract/migrate", s.handleMigrate).Methods("POST")
	api.HandleFunc("/version", s.handleGetVersionInfo).Methods("GET")

	// Accounts
	api.HandleFunc("/accounts/{address}/balances/{denom}", s.handleGetBalance).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Info("api server starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleCreateAsk(w http.ResponseWriter, r *http.Request) {
	var req CreateAskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseCaller(w, req.Caller)
	if !ok {
		return
	}

	order, err := s.app.CreateAsk(caller, req.CreateAskMsg, req.Funds)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	s.hub.BroadcastToChannel("orders", OrderUpdate{
		Type: "order", Action: "create", Side: "ask", ID: order.ID,
		Timestamp: time.Now().UnixMilli(),
	})
	respondJSON(w, order)
}

func (s *Server) handleCreateBid(w http.ResponseWriter, r *http.Request) {
	var req CreateBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseCaller(w, req.Caller)
	if !ok {
		return
	}

	order, err := s.app.CreateBid(caller, req.CreateBidMsg, req.Funds)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	s.hub.BroadcastToChannel("orders", OrderUpdate{
		Type: "order", Action: "create", Side: "bid", ID: order.ID,
		Timestamp: time.Now().UnixMilli(),
	})
	respondJSON(w, order)
}

func (s *Server) handleGetAsk(w http.ResponseWriter, r *http.Request) {
	order, err := s.app.GetAsk(mux.Vars(r)["id"])
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, order)
}

func (s *Server) handleGetBid(w http.ResponseWriter, r *http.Request) {
	order, err := s.app.GetBid(mux.Vars(r)["id"])
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, order)
}

func (s *Server) handleApproveAsk(w http.ResponseWriter, r *http.Request) {
	var req ApproveAskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	req.ApproveAskMsg.ID = mux.Vars(r)["id"]
	caller, ok := parseCaller(w, req.Caller)
	if !ok {
		return
	}

	if err := s.app.ApproveAsk(caller, req.ApproveAskMsg, req.Funds); err != nil {
		s.respondAppError(w, err)
		return
	}

	s.hub.BroadcastToChannel("orders", OrderUpdate{
		Type: "order", Action: "approve", Side: "ask", ID: req.ApproveAskMsg.ID,
		Timestamp: time.Now().UnixMilli(),
	})
	respondJSON(w, StatusResponse{Status: "approved", ID: req.ApproveAskMsg.ID})
}

func (s *Server) handleCancelAsk(w http.ResponseWriter, r *http.Request) {
	s.handleClose(w, r, "ask", "cancel", s.app.CancelAsk)
}

func (s *Server) handleExpireAsk(w http.ResponseWriter, r *http.Request) {
	s.handleClose(w, r, "ask", "expire", s.app.ExpireAsk)
}

func (s *Server) handleCancelBid(w http.ResponseWriter, r *http.Request) {
	s.handleClose(w, r, "bid", "cancel", s.app.CancelBid)
}

func (s *Server) handleExpireBid(w http.ResponseWriter, r *http.Request) {
	s.handleClose(w, r, "bid", "expire", s.app.ExpireBid)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request, side, action string,
	op func(common.Address, exchange.CancelMsg, []exchange.Coin) error) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	req.CancelMsg.ID = mux.Vars(r)["id"]
	caller, ok := parseCaller(w, req.Caller)
	if !ok {
		return
	}

	if err := op(caller, req.CancelMsg, nil); err != nil {
		s.respondAppError(w, err)
		return
	}

	s.hub.BroadcastToChannel("orders", OrderUpdate{
		Type: "order", Action: action, Side: side, ID: req.CancelMsg.ID,
		Timestamp: time.Now().UnixMilli(),
	})
	respondJSON(w, StatusResponse{Status: action + "d", ID: req.CancelMsg.ID})
}

func (s *Server) handleRejectAsk(w http.ResponseWriter, r *http.Request) {
	s.handleReject(w, r, "ask", s.app.RejectAsk)
}

func (s *Server) handleRejectBid(w http.ResponseWriter, r *http.Request) {
	s.handleReject(w, r, "bid", s.app.RejectBid)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, side string,
	op func(common.Address, exchange.RejectMsg, []exchange.Coin) error) {
	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	req.RejectMsg.ID = mux.Vars(r)["id"]
	caller, ok := parseCaller(w, req.Caller)
	if !ok {
		return
	}

	if err := op(caller, req.RejectMsg, nil); err != nil {
		s.respondAppError(w, err)
		return
	}

	s.hub.BroadcastToChannel("orders", OrderUpdate{
		Type: "order", Action: "reject", Side: side, ID: req.RejectMsg.ID,
		Timestamp: time.Now().UnixMilli(),
	})
	respondJSON(w, StatusResponse{Status: "rejected", ID: req.RejectMsg.ID})
}

func (s *Server) handleExecuteMatch(w http.ResponseWriter, r *http.Request) {
	var req ExecuteMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseCaller(w, req.Caller)
	if !ok {
		return
	}

	outcome, err := s.app.ExecuteMatch(caller, req.ExecuteMatchMsg, nil)
	if err != nil {
		s.respondAppError(w, err)
		return
	}

	s.hub.BroadcastToChannel("trades", TradeUpdate{
		Type:       "trade",
		AskID:      req.AskID,
		BidID:      req.BidID,
		Price:      req.Price,
		Size:       req.Size.String(),
		QuoteTotal: outcome.QuoteTotal,
		Timestamp:  time.Now().UnixMilli(),
	})

	respondJSON(w, MatchResponse{
		Ask:        outcome.Ask,
		Bid:        outcome.Bid,
		AskRemoved: outcome.AskRemoved,
		BidRemoved: outcome.BidRemoved,
		QuoteTotal: outcome.QuoteTotal,
		AskFee:     outcome.AskFee,
		BidFee:     outcome.BidFee,
		Refund:     outcome.Refund,
	})
}

func (s *Server) handleGetContractInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.app.GetContractInfo()
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, info)
}

func (s *Server) handleGetVersionInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.app.GetVersionInfo()
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, info)
}

func (s *Server) handleModifyContract(w http.ResponseWriter, r *http.Request) {
	var req ModifyContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseCaller(w, req.Caller)
	if !ok {
		return
	}

	if err := s.app.ModifyContract(caller, req.ModifyContract); err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "modified"})
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	var req MigrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseCaller(w, req.Caller)
	if !ok {
		return
	}

	if err := s.app.Migrate(caller); err != nil {
		s.respondAppError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "migrated"})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addressStr := vars["address"]
	denom := vars["denom"]

	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	addr := common.HexToAddress(addressStr)

	amount, err := s.bank.Balance(addr, denom)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "balance lookup failed", err.Error())
		return
	}

	respondJSON(w, BalanceResponse{
		Address: addr.Hex(),
		Denom:   denom,
		Amount:  amount.String(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func parseCaller(w http.ResponseWriter, addr string) (common.Address, bool) {
	if !common.IsHexAddress(addr) {
		respondError(w, http.StatusBadRequest, "invalid caller address", "")
		return common.Address{}, false
	}
	return common.HexToAddress(addr), true
}

// respondAppError maps exchange errors to HTTP status codes.
func (s *Server) respondAppError(w http.ResponseWriter, err error) {
	var storeErr *exchange.StoreError
	switch {
	case errors.Is(err, exchange.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found", err.Error())
	case errors.Is(err, exchange.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.As(err, &storeErr):
		s.log.Error("storage failure", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error", "")
	default:
		respondError(w, http.StatusBadRequest, "request rejected", err.Error())
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
