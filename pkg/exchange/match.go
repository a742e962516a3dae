package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atsx/atsd/pkg/fixed"
)

// MatchOutcome is the result of settling one ask against one bid: the new
// order states, whether each side completed, and the transfer plan the
// ledger collaborator must execute.
type MatchOutcome struct {
	Ask        *AskOrder
	Bid        *BidOrder
	AskRemoved bool
	BidRemoved bool

	QuoteTotal Coin
	AskFee     *Coin
	BidFee     *Coin
	Refund     *Coin // leftover bid escrow returned when the bid completes

	Transfers []LedgerEntry
}

// executeMatch verifies compatibility of an ask and a bid at an execution
// price and size, computes the base/quote/fee movements, and reduces both
// orders' remaining size. Pure over its inputs: the caller persists the
// returned order states and hands the transfer plan to the ledger.
//
// Preconditions are checked in a fixed order; the first failure wins.
// quote_total is price*size truncated toward zero, so the truncation
// remainder stays in the bid's escrow and is refunded when the bid
// completes, never credited to the ask side.
func executeMatch(info *ContractInfo, caller common.Address, ask *AskOrder, bid *BidOrder, execPrice fixed.Dec, execSize fixed.Int, escrow common.Address, now int64) (*MatchOutcome, error) {
	if !info.IsExecutor(caller) {
		return nil, ErrUnauthorized
	}
	if !ask.Ready() {
		return nil, fmt.Errorf("%w: pending approval", ErrAskOrderNotReady)
	}
	if ask.SettleDenom() != bid.Base || ask.Quote != bid.Quote.Denom {
		return nil, ErrDenomMismatch
	}
	if execSize.IsZero() || execSize.Cmp(ask.Remaining()) > 0 || execSize.Cmp(bid.Remaining()) > 0 {
		return nil, ErrInvalidExecuteSize
	}
	if ask.Price.Cmp(bid.Price) > 0 {
		return nil, ErrAskBidPriceMismatch
	}
	if execPrice.Cmp(ask.Price) < 0 || execPrice.Cmp(bid.Price) > 0 {
		return nil, ErrInvalidExecutePrice
	}

	quoteTotal := fixed.QuoteTotal(execPrice, execSize)

	// Fees come out of the settled quote, floored toward zero and capped so
	// net payout plus fees never exceeds what the bid escrowed for this
	// fill.
	bidFee := feeFor(bid.FeeRate, quoteTotal, quoteTotal)
	askCap, err := quoteTotal.Sub(bidFee)
	if err != nil {
		return nil, err
	}
	askFee := feeFor(ask.FeeRate, quoteTotal, askCap)
	proceeds, err := askCap.Sub(askFee)
	if err != nil {
		return nil, err
	}

	if ask.Base.Amount, err = ask.Base.Amount.Sub(execSize); err != nil {
		return nil, err
	}
	if ask.Approval != nil {
		if ask.Approval.ConvertedBase.Amount, err = ask.Approval.ConvertedBase.Amount.Sub(execSize); err != nil {
			return nil, err
		}
	}
	if bid.Size, err = bid.Size.Sub(execSize); err != nil {
		return nil, err
	}
	if bid.Quote.Amount, err = bid.Quote.Amount.Sub(quoteTotal); err != nil {
		return nil, err
	}

	out := &MatchOutcome{
		Ask:        ask,
		Bid:        bid,
		AskRemoved: ask.Remaining().IsZero(),
		QuoteTotal: NewCoin(bid.Quote.Denom, quoteTotal),
	}

	// Quote proceeds go to the asker, or to the approver for convertible
	// asks (the approver escrowed the canonical base that settles them).
	quoteRecipient := ask.Owner
	if ask.Approval != nil {
		quoteRecipient = ask.Approval.Approver
	}
	out.addTransfer(escrow, quoteRecipient, NewCoin(bid.Quote.Denom, proceeds))
	if !askFee.IsZero() && ask.FeeAccount != nil {
		fee := NewCoin(bid.Quote.Denom, askFee)
		out.AskFee = &fee
		out.addTransfer(escrow, *ask.FeeAccount, fee)
	}
	if !bidFee.IsZero() && bid.FeeAccount != nil {
		fee := NewCoin(bid.Quote.Denom, bidFee)
		out.BidFee = &fee
		out.addTransfer(escrow, *bid.FeeAccount, fee)
	}
	if ask.Approval != nil {
		// The approver also takes the convertible base the asker escrowed.
		out.addTransfer(escrow, ask.Approval.Approver, NewCoin(ask.Base.Denom, execSize))
	}
	out.addTransfer(escrow, bid.Owner, NewCoin(ask.SettleDenom(), execSize))

	// A completed bid may have escrow left over from price improvement or
	// truncation; it is refunded, never silently dropped.
	if bid.Size.IsZero() && !bid.Quote.Amount.IsZero() {
		refund := NewCoin(bid.Quote.Denom, bid.Quote.Amount)
		out.Refund = &refund
		out.addTransfer(escrow, bid.Owner, refund)
		bid.Quote.Amount = fixed.NewInt(0)
	}
	out.BidRemoved = bid.Size.IsZero()

	if !out.AskRemoved {
		ask.Status = StatusPartiallyFilled
		ask.Events = append(ask.Events, FillEvent{
			Action: EventFill,
			Amount: NewCoin(ask.SettleDenom(), execSize),
			Price:  &execPrice,
			Fee:    out.AskFee,
			Time:   now,
		})
	}
	if !out.BidRemoved {
		bid.Status = StatusPartiallyFilled
		bid.Events = append(bid.Events, FillEvent{
			Action: EventFill,
			Amount: NewCoin(bid.Base, execSize),
			Price:  &execPrice,
			Fee:    out.BidFee,
			Time:   now,
		})
	}
	return out, nil
}

// feeFor computes floor(total*rate) capped at limit. A nil rate is no fee.
func feeFor(rate *fixed.Dec, total, limit fixed.Int) fixed.Int {
	if rate == nil {
		return fixed.NewInt(0)
	}
	fee := fixed.FeeAmount(*rate, total)
	if fee.Cmp(limit) > 0 {
		return limit
	}
	return fee
}

// addTransfer appends a ledger entry, dropping zero amounts: the ledger
// rejects empty movements and a zero payout carries no value.
func (o *MatchOutcome) addTransfer(from, to common.Address, amount Coin) {
	if amount.IsZero() {
		return
	}
	o.Transfers = append(o.Transfers, LedgerEntry{From: from, To: to, Amount: amount})
}
