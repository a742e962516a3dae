package api

import (
	"github.com/atsx/atsd/pkg/exchange"
)

// ErrorResponse is the JSON body for all non-2xx responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CreateAskRequest submits a new ask. Funds must carry exactly the base
// being offered for sale.
type CreateAskRequest struct {
	Caller string          `json:"caller"`
	Funds  []exchange.Coin `json:"funds"`
	exchange.CreateAskMsg
}

// CreateBidRequest submits a new bid. Funds must carry exactly the quote
// being escrowed.
type CreateBidRequest struct {
	Caller string          `json:"caller"`
	Funds  []exchange.Coin `json:"funds"`
	exchange.CreateBidMsg
}

// ApproveAskRequest approves a convertible ask, attaching the converted
// base as funds.
type ApproveAskRequest struct {
	Caller string          `json:"caller"`
	Funds  []exchange.Coin `json:"funds"`
	exchange.ApproveAskMsg
}

// CancelRequest cancels or expires an order by id.
type CancelRequest struct {
	Caller string `json:"caller"`
	exchange.CancelMsg
}

// RejectRequest rejects an order, optionally only part of it.
type RejectRequest struct {
	Caller string `json:"caller"`
	exchange.RejectMsg
}

// ExecuteMatchRequest settles an ask against a bid at an execution price.
type ExecuteMatchRequest struct {
	Caller string `json:"caller"`
	exchange.ExecuteMatchMsg
}

// ModifyContractRequest updates contract info fields. Absent fields keep
// their stored values.
type ModifyContractRequest struct {
	Caller string `json:"caller"`
	exchange.ModifyContract
}

// MigrateRequest restamps the stored version info.
type MigrateRequest struct {
	Caller string `json:"caller"`
}

// MatchResponse reports what a settlement moved.
type MatchResponse struct {
	Ask        *exchange.AskOrder `json:"ask,omitempty"`
	Bid        *exchange.BidOrder `json:"bid,omitempty"`
	AskRemoved bool               `json:"ask_removed"`
	BidRemoved bool               `json:"bid_removed"`
	QuoteTotal exchange.Coin      `json:"quote_total"`
	AskFee     *exchange.Coin     `json:"ask_fee,omitempty"`
	BidFee     *exchange.Coin     `json:"bid_fee,omitempty"`
	Refund     *exchange.Coin     `json:"refund,omitempty"`
}

// BalanceResponse reports one account balance.
type BalanceResponse struct {
	Address string `json:"address"`
	Denom   string `json:"denom"`
	Amount  string `json:"amount"`
}

// StatusResponse is a minimal ack for state-changing endpoints that return
// no record.
type StatusResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

// WSSubscribeRequest is the client-to-server subscription message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// TradeUpdate is broadcast on the "trades" channel after each settlement.
type TradeUpdate struct {
	Type       string        `json:"type"` // always "trade"
	AskID      string        `json:"ask_id"`
	BidID      string        `json:"bid_id"`
	Price      string        `json:"price"`
	Size       string        `json:"size"`
	QuoteTotal exchange.Coin `json:"quote_total"`
	Timestamp  int64         `json:"timestamp"`
}

// OrderUpdate is broadcast on the "orders" channel when an order is
// created, approved, cancelled, expired, or rejected.
type OrderUpdate struct {
	Type      string `json:"type"` // always "order"
	Action    string `json:"action"`
	Side      string `json:"side"` // "ask" | "bid"
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}
