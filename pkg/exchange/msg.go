package exchange

import (
	"github.com/google/uuid"

	"github.com/atsx/atsd/pkg/fixed"
)

// Request messages. One struct per operation, each with a shallow field
// validation; semantic checks against configuration and stored orders
// happen in the handlers.

// isOrderID reports whether s is a hyphenated lowercase UUID, the only id
// form the exchange accepts.
func isOrderID(s string) bool {
	u, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return s == u.String()
}

// CreateAskMsg posts a sell order. The caller escrows Size of Base with the
// same request.
type CreateAskMsg struct {
	ID    string    `json:"id"`
	Base  string    `json:"base"`
	Quote string    `json:"quote"`
	Price string    `json:"price"`
	Size  fixed.Int `json:"size"`
}

func (m *CreateAskMsg) Validate() error {
	var fields []string
	if !isOrderID(m.ID) {
		fields = append(fields, "id")
	}
	if m.Base == "" {
		fields = append(fields, "base")
	}
	if m.Quote == "" {
		fields = append(fields, "quote")
	}
	if m.Price == "" {
		fields = append(fields, "price")
	}
	if m.Size.IsZero() {
		fields = append(fields, "size")
	}
	if len(fields) > 0 {
		return invalidFields(fields...)
	}
	return nil
}

// CreateBidMsg posts a buy order. The caller escrows QuoteSize of Quote
// with the same request; QuoteSize must equal price*size under the
// engine's truncation rule.
type CreateBidMsg struct {
	ID        string    `json:"id"`
	Base      string    `json:"base"`
	Quote     string    `json:"quote"`
	Price     string    `json:"price"`
	Size      fixed.Int `json:"size"`
	QuoteSize fixed.Int `json:"quote_size"`
}

func (m *CreateBidMsg) Validate() error {
	var fields []string
	if !isOrderID(m.ID) {
		fields = append(fields, "id")
	}
	if m.Base == "" {
		fields = append(fields, "base")
	}
	if m.Quote == "" {
		fields = append(fields, "quote")
	}
	if m.Price == "" {
		fields = append(fields, "price")
	}
	if m.Size.IsZero() {
		fields = append(fields, "size")
	}
	if m.QuoteSize.IsZero() {
		fields = append(fields, "quote_size")
	}
	if len(fields) > 0 {
		return invalidFields(fields...)
	}
	return nil
}

// ApproveAskMsg is the approver's sign-off on a convertible ask. The
// approver escrows Size of Base (the canonical base denom) with the
// request.
type ApproveAskMsg struct {
	ID   string    `json:"id"`
	Base string    `json:"base"`
	Size fixed.Int `json:"size"`
}

func (m *ApproveAskMsg) Validate() error {
	var fields []string
	if !isOrderID(m.ID) {
		fields = append(fields, "id")
	}
	if m.Base == "" {
		fields = append(fields, "base")
	}
	if m.Size.IsZero() {
		fields = append(fields, "size")
	}
	if len(fields) > 0 {
		return invalidFields(fields...)
	}
	return nil
}

// CancelMsg cancels the caller's own order. Also used for executor-driven
// expiry, which has identical shape.
type CancelMsg struct {
	ID string `json:"id"`
}

func (m *CancelMsg) Validate() error {
	if !isOrderID(m.ID) {
		return invalidFields("id")
	}
	return nil
}

// RejectMsg is the executor-driven rejection of an order. A nil Size
// rejects the entire remaining amount and removes the order; a partial
// Size refunds only that amount and leaves the order resting.
type RejectMsg struct {
	ID   string     `json:"id"`
	Size *fixed.Int `json:"size,omitempty"`
}

func (m *RejectMsg) Validate() error {
	var fields []string
	if !isOrderID(m.ID) {
		fields = append(fields, "id")
	}
	if m.Size != nil && m.Size.IsZero() {
		fields = append(fields, "size")
	}
	if len(fields) > 0 {
		return invalidFields(fields...)
	}
	return nil
}

// ExecuteMatchMsg settles an ask against a bid at an execution price and
// size chosen by the executor.
type ExecuteMatchMsg struct {
	AskID string    `json:"ask_id"`
	BidID string    `json:"bid_id"`
	Price string    `json:"price"`
	Size  fixed.Int `json:"size"`
}

func (m *ExecuteMatchMsg) Validate() error {
	var fields []string
	if !isOrderID(m.AskID) {
		fields = append(fields, "ask_id")
	}
	if !isOrderID(m.BidID) {
		fields = append(fields, "bid_id")
	}
	if m.Price == "" {
		fields = append(fields, "price")
	}
	if m.Size.IsZero() {
		fields = append(fields, "size")
	}
	if len(fields) > 0 {
		return invalidFields(fields...)
	}
	return nil
}
