package exchange

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/atsx/atsd/pkg/fixed"
	"github.com/atsx/atsd/pkg/store"
)

// Ledger is the asset-transfer collaborator. Execute must apply every entry
// or none; the exchange only calls it for requests it has accepted.
type Ledger interface {
	Execute(entries []LedgerEntry) error
}

// App processes one request at a time against the order store, the ledger
// and the attribute oracle. Requests run to completion with no
// interleaving; all store mutations of one request commit as a unit or not
// at all.
type App struct {
	kv     store.KV
	ledger Ledger
	oracle AttributeQuerier
	// addr is the exchange's own account: every escrow is held here and
	// every payout is drawn from here.
	addr common.Address
	log  *zap.Logger
	now  func() time.Time
}

// New wires an App over its collaborators.
func New(kv store.KV, ledger Ledger, oracle AttributeQuerier, addr common.Address, log *zap.Logger) *App {
	return &App{kv: kv, ledger: ledger, oracle: oracle, addr: addr, log: log, now: time.Now}
}

// Address returns the exchange's escrow account.
func (a *App) Address() common.Address { return a.addr }

// run executes one request: the handler stages store writes on a batch and
// returns the transfer plan; the ledger applies the plan, then the batch
// commits. Any error discards the batch, leaving the store untouched.
func (a *App) run(handler func(s *state) ([]LedgerEntry, error)) error {
	batch := store.NewBatch(a.kv)
	entries, err := handler(newState(batch))
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		if err := a.ledger.Execute(entries); err != nil {
			return fmt.Errorf("ledger rejected transfer plan: %w", err)
		}
	}
	if err := batch.Commit(); err != nil {
		return &StoreError{Op: "commit", Err: err}
	}
	return nil
}

// Instantiate writes the initial configuration and version singletons.
// Callable once; the configuration is validated before anything persists.
func (a *App) Instantiate(info ContractInfo) error {
	return a.run(func(s *state) ([]LedgerEntry, error) {
		if err := info.Validate(); err != nil {
			return nil, err
		}
		if _, err := s.loadContractInfo(); err == nil {
			return nil, fmt.Errorf("contract already instantiated: %w", ErrOrderAlreadyExists)
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if err := s.saveContractInfo(&info); err != nil {
			return nil, err
		}
		if err := s.saveVersionInfo(&VersionInfo{Definition: Definition, Version: Version}); err != nil {
			return nil, err
		}
		a.log.Info("contract instantiated",
			zap.String("name", info.Name),
			zap.String("base_denom", info.BaseDenom),
			zap.Uint32("price_precision", info.PricePrecision),
			zap.String("size_increment", info.SizeIncrement.String()))
		return nil, nil
	})
}

// CreateAsk admits a sell order. The caller must attach exactly size of the
// base denom, which is escrowed with the exchange.
func (a *App) CreateAsk(caller common.Address, msg CreateAskMsg, funds []Coin) (*AskOrder, error) {
	var created *AskOrder
	err := a.run(func(s *state) ([]LedgerEntry, error) {
		if err := msg.Validate(); err != nil {
			return nil, err
		}
		info, err := s.loadContractInfo()
		if err != nil {
			return nil, err
		}
		price, err := validateNewAsk(s, a.oracle, info, caller, &msg)
		if err != nil {
			return nil, err
		}
		escrowed := NewCoin(msg.Base, msg.Size)
		if !fundsMatch(funds, escrowed) {
			return nil, ErrSentFundsMismatch
		}
		ask := &AskOrder{
			ID:         msg.ID,
			Owner:      caller,
			Class:      ClassBasic,
			Base:       escrowed,
			Quote:      msg.Quote,
			Price:      price,
			Size:       msg.Size,
			Status:     StatusOpen,
			FeeRate:    info.AskFeeRate,
			FeeAccount: info.AskFeeAccount,
		}
		if msg.Base != info.BaseDenom {
			ask.Class = ClassConvertible
		}
		if err := s.insertAsk(ask); err != nil {
			return nil, err
		}
		created = ask
		a.log.Info("ask created",
			zap.String("id", ask.ID),
			zap.String("owner", ask.Owner.Hex()),
			zap.String("class", string(ask.Class)),
			zap.String("base", ask.Base.Denom),
			zap.String("quote", ask.Quote),
			zap.String("price", ask.Price.String()),
			zap.String("size", ask.Size.String()))
		return []LedgerEntry{{From: caller, To: a.addr, Amount: escrowed}}, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateBid admits a buy order. The caller must attach exactly quote_size
// of the quote denom, which is escrowed with the exchange.
func (a *App) CreateBid(caller common.Address, msg CreateBidMsg, funds []Coin) (*BidOrder, error) {
	var created *BidOrder
	err := a.run(func(s *state) ([]LedgerEntry, error) {
		if err := msg.Validate(); err != nil {
			return nil, err
		}
		info, err := s.loadContractInfo()
		if err != nil {
			return nil, err
		}
		price, err := validateNewBid(s, a.oracle, info, caller, &msg)
		if err != nil {
			return nil, err
		}
		escrowed := NewCoin(msg.Quote, msg.QuoteSize)
		if !fundsMatch(funds, escrowed) {
			return nil, ErrSentFundsMismatch
		}
		bid := &BidOrder{
			ID:         msg.ID,
			Owner:      caller,
			Base:       msg.Base,
			Price:      price,
			Quote:      escrowed,
			QuoteSize:  msg.QuoteSize,
			Size:       msg.Size,
			Status:     StatusOpen,
			FeeRate:    info.BidFeeRate,
			FeeAccount: info.BidFeeAccount,
		}
		if err := s.insertBid(bid); err != nil {
			return nil, err
		}
		created = bid
		a.log.Info("bid created",
			zap.String("id", bid.ID),
			zap.String("owner", bid.Owner.Hex()),
			zap.String("base", bid.Base),
			zap.String("quote", bid.Quote.Denom),
			zap.String("price", bid.Price.String()),
			zap.String("size", bid.Size.String()),
			zap.String("quote_size", bid.QuoteSize.String()))
		return []LedgerEntry{{From: caller, To: a.addr, Amount: escrowed}}, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ApproveAsk is the approver's sign-off on a convertible ask: the approver
// escrows the canonical base that will settle matches in place of the
// convertible denom the asker posted.
func (a *App) ApproveAsk(caller common.Address, msg ApproveAskMsg, funds []Coin) error {
	return a.run(func(s *state) ([]LedgerEntry, error) {
		if err := msg.Validate(); err != nil {
			return nil, err
		}
		info, err := s.loadContractInfo()
		if err != nil {
			return nil, err
		}
		if !info.IsApprover(caller) {
			return nil, ErrUnauthorized
		}
		ask, err := s.loadAsk(msg.ID)
		if err != nil {
			return nil, err
		}
		if ask.Class != ClassConvertible || ask.Approval != nil {
			return nil, invalidFields("id")
		}
		if msg.Base != info.BaseDenom || msg.Size.Cmp(ask.Remaining()) != 0 {
			return nil, ErrSentFundsMismatch
		}
		converted := NewCoin(msg.Base, msg.Size)
		if !fundsMatch(funds, converted) {
			return nil, ErrSentFundsMismatch
		}
		ask.Approval = &Approval{Approver: caller, ConvertedBase: converted}
		if err := s.updateAsk(ask); err != nil {
			return nil, err
		}
		a.log.Info("ask approved",
			zap.String("id", ask.ID),
			zap.String("approver", caller.Hex()),
			zap.String("converted_base", converted.String()))
		return []LedgerEntry{{From: caller, To: a.addr, Amount: converted}}, nil
	})
}

// CancelAsk removes the caller's own ask and refunds the remaining base.
// For approved convertible asks the converted base goes back to the
// approver.
func (a *App) CancelAsk(caller common.Address, msg CancelMsg, funds []Coin) error {
	return a.closeAsk(caller, msg, funds, "ask cancelled", false)
}

// ExpireAsk is the executor-driven variant of cancel, used after an expiry
// condition observed outside the engine.
func (a *App) ExpireAsk(caller common.Address, msg CancelMsg, funds []Coin) error {
	return a.closeAsk(caller, msg, funds, "ask expired", true)
}

func (a *App) closeAsk(caller common.Address, msg CancelMsg, funds []Coin, action string, executorDriven bool) error {
	return a.run(func(s *state) ([]LedgerEntry, error) {
		if err := msg.Validate(); err != nil {
			return nil, err
		}
		if len(funds) != 0 {
			return nil, fmt.Errorf("funds attached to %s: %w", action, ErrSentFundsMismatch)
		}
		info, err := s.loadContractInfo()
		if err != nil {
			return nil, err
		}
		ask, err := s.loadAsk(msg.ID)
		if err != nil {
			return nil, err
		}
		if executorDriven {
			if !info.IsExecutor(caller) {
				return nil, ErrUnauthorized
			}
		} else if ask.Owner != caller {
			return nil, ErrUnauthorized
		}
		if err := s.removeAsk(ask.ID); err != nil {
			return nil, err
		}
		entries := []LedgerEntry{{From: a.addr, To: ask.Owner, Amount: ask.Base}}
		if ask.Approval != nil && !ask.Approval.ConvertedBase.IsZero() {
			entries = append(entries, LedgerEntry{From: a.addr, To: ask.Approval.Approver, Amount: ask.Approval.ConvertedBase})
		}
		a.log.Info(action,
			zap.String("id", ask.ID),
			zap.String("refund", ask.Base.String()))
		return entries, nil
	})
}

// CancelBid removes the caller's own bid and refunds the remaining quote
// escrow.
func (a *App) CancelBid(caller common.Address, msg CancelMsg, funds []Coin) error {
	return a.closeBid(caller, msg, funds, "bid cancelled", false)
}

// ExpireBid is the executor-driven variant of bid cancel.
func (a *App) ExpireBid(caller common.Address, msg CancelMsg, funds []Coin) error {
	return a.closeBid(caller, msg, funds, "bid expired", true)
}

func (a *App) closeBid(caller common.Address, msg CancelMsg, funds []Coin, action string, executorDriven bool) error {
	return a.run(func(s *state) ([]LedgerEntry, error) {
		if err := msg.Validate(); err != nil {
			return nil, err
		}
		if len(funds) != 0 {
			return nil, fmt.Errorf("funds attached to %s: %w", action, ErrSentFundsMismatch)
		}
		info, err := s.loadContractInfo()
		if err != nil {
			return nil, err
		}
		bid, err := s.loadBid(msg.ID)
		if err != nil {
			return nil, err
		}
		if executorDriven {
			if !info.IsExecutor(caller) {
				return nil, ErrUnauthorized
			}
		} else if bid.Owner != caller {
			return nil, ErrUnauthorized
		}
		if err := s.removeBid(bid.ID); err != nil {
			return nil, err
		}
		var entries []LedgerEntry
		if !bid.Quote.IsZero() {
			entries = append(entries, LedgerEntry{From: a.addr, To: bid.Owner, Amount: bid.Quote})
		}
		a.log.Info(action,
			zap.String("id", bid.ID),
			zap.String("refund", bid.Quote.String()))
		return entries, nil
	})
}

// RejectAsk is the executor-driven rejection of an ask. A partial size
// refunds only that amount and leaves the order resting; otherwise the
// whole remaining size is refunded and the order removed.
func (a *App) RejectAsk(caller common.Address, msg RejectMsg, funds []Coin) error {
	return a.run(func(s *state) ([]LedgerEntry, error) {
		if err := msg.Validate(); err != nil {
			return nil, err
		}
		if len(funds) != 0 {
			return nil, fmt.Errorf("funds attached to reject: %w", ErrSentFundsMismatch)
		}
		info, err := s.loadContractInfo()
		if err != nil {
			return nil, err
		}
		if !info.IsExecutor(caller) {
			return nil, ErrUnauthorized
		}
		ask, err := s.loadAsk(msg.ID)
		if err != nil {
			return nil, err
		}
		size := ask.Remaining()
		partial := msg.Size != nil && msg.Size.Cmp(size) < 0
		if msg.Size != nil {
			if msg.Size.Cmp(size) > 0 {
				return nil, invalidFields("size")
			}
			size = *msg.Size
		}
		refund := NewCoin(ask.Base.Denom, size)
		entries := []LedgerEntry{{From: a.addr, To: ask.Owner, Amount: refund}}
		if ask.Approval != nil {
			returned := NewCoin(ask.Approval.ConvertedBase.Denom, size)
			entries = append(entries, LedgerEntry{From: a.addr, To: ask.Approval.Approver, Amount: returned})
		}
		if partial {
			if ask.Base.Amount, err = ask.Base.Amount.Sub(size); err != nil {
				return nil, err
			}
			if ask.Approval != nil {
				if ask.Approval.ConvertedBase.Amount, err = ask.Approval.ConvertedBase.Amount.Sub(size); err != nil {
					return nil, err
				}
			}
			ask.Events = append(ask.Events, FillEvent{
				Action: EventReject,
				Amount: refund,
				Time:   a.now().Unix(),
			})
			if err := s.updateAsk(ask); err != nil {
				return nil, err
			}
		} else if err := s.removeAsk(ask.ID); err != nil {
			return nil, err
		}
		a.log.Info("ask rejected",
			zap.String("id", ask.ID),
			zap.Bool("partial", partial),
			zap.String("refund", refund.String()))
		return entries, nil
	})
}

// RejectBid mirrors RejectAsk: a partial size (in base units) refunds the
// corresponding quote at the bid's own price; a full reject refunds the
// whole remaining escrow and removes the order.
func (a *App) RejectBid(caller common.Address, msg RejectMsg, funds []Coin) error {
	return a.run(func(s *state) ([]LedgerEntry, error) {
		if err := msg.Validate(); err != nil {
			return nil, err
		}
		if len(funds) != 0 {
			return nil, fmt.Errorf("funds attached to reject: %w", ErrSentFundsMismatch)
		}
		info, err := s.loadContractInfo()
		if err != nil {
			return nil, err
		}
		if !info.IsExecutor(caller) {
			return nil, ErrUnauthorized
		}
		bid, err := s.loadBid(msg.ID)
		if err != nil {
			return nil, err
		}
		partial := msg.Size != nil && msg.Size.Cmp(bid.Size) < 0
		var refund Coin
		if partial {
			size := *msg.Size
			refund = NewCoin(bid.Quote.Denom, fixed.QuoteTotal(bid.Price, size))
			if bid.Size, err = bid.Size.Sub(size); err != nil {
				return nil, err
			}
			if bid.Quote.Amount, err = bid.Quote.Amount.Sub(refund.Amount); err != nil {
				return nil, err
			}
			bid.Events = append(bid.Events, FillEvent{
				Action: EventReject,
				Amount: refund,
				Time:   a.now().Unix(),
			})
			if err := s.updateBid(bid); err != nil {
				return nil, err
			}
		} else {
			if msg.Size != nil && msg.Size.Cmp(bid.Size) > 0 {
				return nil, invalidFields("size")
			}
			refund = bid.Quote
			if err := s.removeBid(bid.ID); err != nil {
				return nil, err
			}
		}
		var entries []LedgerEntry
		if !refund.IsZero() {
			entries = append(entries, LedgerEntry{From: a.addr, To: bid.Owner, Amount: refund})
		}
		a.log.Info("bid rejected",
			zap.String("id", bid.ID),
			zap.Bool("partial", partial),
			zap.String("refund", refund.String()))
		return entries, nil
	})
}

// ExecuteMatch settles an ask against a bid. Executor-only; the outcome's
// transfer plan goes to the ledger and both orders are updated or removed.
func (a *App) ExecuteMatch(caller common.Address, msg ExecuteMatchMsg, funds []Coin) (*MatchOutcome, error) {
	var outcome *MatchOutcome
	err := a.run(func(s *state) ([]LedgerEntry, error) {
		if err := msg.Validate(); err != nil {
			return nil, err
		}
		if len(funds) != 0 {
			return nil, fmt.Errorf("funds attached to match: %w", ErrSentFundsMismatch)
		}
		info, err := s.loadContractInfo()
		if err != nil {
			return nil, err
		}
		ask, err := s.loadAsk(msg.AskID)
		if err != nil {
			return nil, err
		}
		bid, err := s.loadBid(msg.BidID)
		if err != nil {
			return nil, err
		}
		execPrice, err := validatePrice(msg.Price, info.PricePrecision)
		if err != nil {
			return nil, err
		}
		out, err := executeMatch(info, caller, ask, bid, execPrice, msg.Size, a.addr, a.now().Unix())
		if err != nil {
			return nil, err
		}
		if out.AskRemoved {
			err = s.removeAsk(ask.ID)
		} else {
			err = s.updateAsk(ask)
		}
		if err != nil {
			return nil, err
		}
		if out.BidRemoved {
			err = s.removeBid(bid.ID)
		} else {
			err = s.updateBid(bid)
		}
		if err != nil {
			return nil, err
		}
		outcome = out
		a.log.Info("match executed",
			zap.String("ask_id", ask.ID),
			zap.String("bid_id", bid.ID),
			zap.String("price", execPrice.String()),
			zap.String("size", msg.Size.String()),
			zap.String("quote_total", out.QuoteTotal.String()),
			zap.Bool("ask_removed", out.AskRemoved),
			zap.Bool("bid_removed", out.BidRemoved))
		return out.Transfers, nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// ModifyContract applies a partial configuration update. Executor-only.
// Fields that would invalidate resting orders are frozen while such orders
// exist; the merged result is re-validated as a whole before anything
// persists.
func (a *App) ModifyContract(caller common.Address, msg ModifyContract) error {
	return a.run(func(s *state) ([]LedgerEntry, error) {
		info, err := s.loadContractInfo()
		if err != nil {
			return nil, err
		}
		if !info.IsExecutor(caller) {
			return nil, ErrUnauthorized
		}
		asks, err := s.orderCount(askCountKey)
		if err != nil {
			return nil, err
		}
		bids, err := s.orderCount(bidCountKey)
		if err != nil {
			return nil, err
		}
		if asks > 0 && msg.AskRequiredAttributes != nil {
			return nil, invalidFields("ask_required_attributes")
		}
		if bids > 0 {
			if msg.BidRequiredAttributes != nil {
				return nil, invalidFields("bid_required_attributes")
			}
			if msg.touchesBidFee() {
				return nil, invalidFields("bid_fee")
			}
		}
		if asks+bids > 0 && msg.Approvers != nil && !approversGrewOnly(info.Approvers, msg.Approvers) {
			return nil, invalidFields("approvers")
		}
		merged := msg.merged(*info)
		if err := merged.Validate(); err != nil {
			return nil, err
		}
		if err := s.saveContractInfo(&merged); err != nil {
			return nil, err
		}
		a.log.Info("contract modified", zap.Int("executors", len(merged.Executors)), zap.Int("approvers", len(merged.Approvers)))
		return nil, nil
	})
}

// Migrate re-validates the configuration singleton and stamps the current
// version. Order entries are never touched. Executor-only; downgrades are
// rejected.
func (a *App) Migrate(caller common.Address) error {
	return a.run(func(s *state) ([]LedgerEntry, error) {
		info, err := s.loadContractInfo()
		if err != nil {
			return nil, err
		}
		if !info.IsExecutor(caller) {
			return nil, ErrUnauthorized
		}
		stored, err := s.loadVersionInfo()
		if err != nil {
			return nil, err
		}
		if err := checkUpgrade(*stored); err != nil {
			return nil, err
		}
		if err := info.Validate(); err != nil {
			return nil, err
		}
		if err := s.saveContractInfo(info); err != nil {
			return nil, err
		}
		if err := s.saveVersionInfo(&VersionInfo{Definition: Definition, Version: Version}); err != nil {
			return nil, err
		}
		a.log.Info("contract migrated", zap.String("from", stored.Version), zap.String("to", Version))
		return nil, nil
	})
}

// GetAsk returns a stored ask order. Read-only.
func (a *App) GetAsk(id string) (*AskOrder, error) {
	return newState(store.NewBatch(a.kv)).loadAsk(id)
}

// GetBid returns a stored bid order. Read-only.
func (a *App) GetBid(id string) (*BidOrder, error) {
	return newState(store.NewBatch(a.kv)).loadBid(id)
}

// GetContractInfo returns the configuration singleton. Read-only.
func (a *App) GetContractInfo() (*ContractInfo, error) {
	return newState(store.NewBatch(a.kv)).loadContractInfo()
}

// GetVersionInfo returns the version singleton. Read-only.
func (a *App) GetVersionInfo() (*VersionInfo, error) {
	return newState(store.NewBatch(a.kv)).loadVersionInfo()
}

// fundsMatch reports whether exactly the required coin was attached.
func fundsMatch(funds []Coin, want Coin) bool {
	return len(funds) == 1 && funds[0].Denom == want.Denom && funds[0].Amount.Cmp(want.Amount) == 0
}
