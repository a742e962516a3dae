// Package exchange implements a bilateral order matching and settlement
// engine: sellers post asks, buyers post bids, and a privileged executor
// matches compatible pairs into settlements with optional proportional fees.
// The engine holds no state of its own; orders and configuration live in a
// key-value store and asset movement is delegated to a ledger collaborator.
package exchange

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/atsx/atsd/pkg/fixed"
)

// Coin is an amount of a single denomination.
type Coin struct {
	Denom  string    `json:"denom"`
	Amount fixed.Int `json:"amount"`
}

// NewCoin returns a coin of the given denom and amount.
func NewCoin(denom string, amount fixed.Int) Coin {
	return Coin{Denom: denom, Amount: amount}
}

func (c Coin) String() string { return c.Amount.String() + c.Denom }

// IsZero reports whether the coin's amount is zero.
func (c Coin) IsZero() bool { return c.Amount.IsZero() }

// OrderStatus tracks where an order sits in its lifecycle. Terminal
// transitions (fill, cancel, expire, full reject) remove the order from the
// store instead of recording a status.
type OrderStatus string

const (
	StatusOpen            OrderStatus = "open"
	StatusPartiallyFilled OrderStatus = "partially_filled"
)

// AskClass distinguishes plain asks from convertible-base asks, which need
// approver sign-off before they are matchable.
type AskClass string

const (
	ClassBasic       AskClass = "basic"
	ClassConvertible AskClass = "convertible"
)

// Approval records an approver's sign-off on a convertible ask: the approver
// escrows the converted (canonical) base that settles matches.
type Approval struct {
	Approver      common.Address `json:"approver"`
	ConvertedBase Coin           `json:"converted_base"`
}

// EventAction is the kind of settlement event appended to an order.
type EventAction string

const (
	EventFill   EventAction = "fill"
	EventRefund EventAction = "refund"
	EventReject EventAction = "reject"
)

// FillEvent is one append-only audit record on an order: a partial or
// complete settlement, refund or rejection. Never read back to drive
// behavior, display only.
type FillEvent struct {
	Action EventAction `json:"action"`
	Amount Coin        `json:"amount"`
	Price  *fixed.Dec  `json:"price,omitempty"`
	Fee    *Coin       `json:"fee,omitempty"`
	Time   int64       `json:"time"`
}

// AskOrder is an offer to sell base for quote at a limit price.
// Base.Amount is the remaining unsold size; Size is the immutable original.
type AskOrder struct {
	ID         string          `json:"id"`
	Owner      common.Address  `json:"owner"`
	Class      AskClass        `json:"class"`
	Approval   *Approval       `json:"approval,omitempty"`
	Base       Coin            `json:"base"`
	Quote      string          `json:"quote"`
	Price      fixed.Dec       `json:"price"`
	Size       fixed.Int       `json:"size"`
	Status     OrderStatus     `json:"status"`
	FeeRate    *fixed.Dec      `json:"fee_rate,omitempty"`
	FeeAccount *common.Address `json:"fee_account,omitempty"`
	Events     []FillEvent     `json:"events,omitempty"`
}

// Remaining is the unsold base size.
func (a *AskOrder) Remaining() fixed.Int { return a.Base.Amount }

// Ready reports whether the ask can participate in a match.
func (a *AskOrder) Ready() bool {
	return a.Class == ClassBasic || a.Approval != nil
}

// SettleDenom is the base denomination a match actually delivers to the
// bidder: the converted base for approved convertible asks, the order's own
// base otherwise.
func (a *AskOrder) SettleDenom() string {
	if a.Class == ClassConvertible && a.Approval != nil {
		return a.Approval.ConvertedBase.Denom
	}
	return a.Base.Denom
}

// BidOrder is an offer to buy base with escrowed quote at a limit price.
// Quote.Amount is the remaining escrow; QuoteSize is the declared total
// (price * size at creation); Size is the remaining base sought.
type BidOrder struct {
	ID         string          `json:"id"`
	Owner      common.Address  `json:"owner"`
	Base       string          `json:"base"`
	Price      fixed.Dec       `json:"price"`
	Quote      Coin            `json:"quote"`
	QuoteSize  fixed.Int       `json:"quote_size"`
	Size       fixed.Int       `json:"size"`
	Status     OrderStatus     `json:"status"`
	FeeRate    *fixed.Dec      `json:"fee_rate,omitempty"`
	FeeAccount *common.Address `json:"fee_account,omitempty"`
	Events     []FillEvent     `json:"events,omitempty"`
}

// Remaining is the base size still sought.
func (b *BidOrder) Remaining() fixed.Int { return b.Size }

// LedgerEntry is one proposed asset movement. Entries are only executed if
// the request as a whole is accepted.
type LedgerEntry struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount Coin           `json:"amount"`
}
