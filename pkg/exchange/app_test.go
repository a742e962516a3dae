package exchange_test

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atsx/atsd/pkg/bank"
	"github.com/atsx/atsd/pkg/exchange"
	"github.com/atsx/atsd/pkg/fixed"
	"github.com/atsx/atsd/pkg/oracle"
	"github.com/atsx/atsd/pkg/store"
)

var (
	escrowAddr = common.HexToAddress("0x00000000000000000000000000000000000A7500")
	executor   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	approver   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	asker      = common.HexToAddress("0x3333333333333333333333333333333333333333")
	bidder     = common.HexToAddress("0x4444444444444444444444444444444444444444")
	askFeeAcct = common.HexToAddress("0x5555555555555555555555555555555555555555")
	bidFeeAcct = common.HexToAddress("0x6666666666666666666666666666666666666666")
	outsider   = common.HexToAddress("0x9999999999999999999999999999999999999999")
)

func baseInfo() exchange.ContractInfo {
	return exchange.ContractInfo{
		Name:                  "test-exchange",
		BaseDenom:             "base_1",
		ConvertibleBaseDenoms: []string{"conv_1"},
		SupportedQuoteDenoms:  []string{"quote_1", "quote_2"},
		Approvers:             []common.Address{approver},
		Executors:             []common.Address{executor},
		PricePrecision:        0,
		SizeIncrement:         fixed.NewInt(1),
	}
}

type fixture struct {
	t      *testing.T
	app    *exchange.App
	ledger *bank.Ledger
	attrs  *oracle.Registry
}

func newFixture(t *testing.T, info exchange.ContractInfo) *fixture {
	t.Helper()
	kv := store.NewMemKV()
	ledger := bank.New(kv)
	attrs := oracle.New(kv)
	app := exchange.New(kv, ledger, attrs, escrowAddr, zap.NewNop())
	if err := app.Instantiate(info); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return &fixture{t: t, app: app, ledger: ledger, attrs: attrs}
}

func (f *fixture) mint(addr common.Address, denom string, amount uint64) {
	f.t.Helper()
	if err := f.ledger.Mint(addr, exchange.NewCoin(denom, fixed.NewInt(amount))); err != nil {
		f.t.Fatalf("mint %d %s to %s: %v", amount, denom, addr.Hex(), err)
	}
}

func (f *fixture) balance(addr common.Address, denom string) string {
	f.t.Helper()
	bal, err := f.ledger.Balance(addr, denom)
	if err != nil {
		f.t.Fatalf("balance %s %s: %v", addr.Hex(), denom, err)
	}
	return bal.String()
}

func (f *fixture) wantBalance(addr common.Address, denom, want string) {
	f.t.Helper()
	if got := f.balance(addr, denom); got != want {
		f.t.Errorf("balance of %s %s = %s, want %s", addr.Hex(), denom, got, want)
	}
}

func coins(denom string, amount uint64) []exchange.Coin {
	return []exchange.Coin{exchange.NewCoin(denom, fixed.NewInt(amount))}
}

// createAsk mints and posts a basic ask, failing the test on error.
func (f *fixture) createAsk(id, price string, size uint64) {
	f.t.Helper()
	f.mint(asker, "base_1", size)
	msg := exchange.CreateAskMsg{ID: id, Base: "base_1", Quote: "quote_1", Price: price, Size: fixed.NewInt(size)}
	if _, err := f.app.CreateAsk(asker, msg, coins("base_1", size)); err != nil {
		f.t.Fatalf("create ask: %v", err)
	}
}

// createBid mints and posts a bid with a consistent quote_size.
func (f *fixture) createBid(id, price string, size, quoteSize uint64) {
	f.t.Helper()
	f.mint(bidder, "quote_1", quoteSize)
	msg := exchange.CreateBidMsg{
		ID: id, Base: "base_1", Quote: "quote_1", Price: price,
		Size: fixed.NewInt(size), QuoteSize: fixed.NewInt(quoteSize),
	}
	if _, err := f.app.CreateBid(bidder, msg, coins("quote_1", quoteSize)); err != nil {
		f.t.Fatalf("create bid: %v", err)
	}
}

func newID() string { return uuid.NewString() }

func TestInstantiateOnlyOnce(t *testing.T) {
	f := newFixture(t, baseInfo())
	err := f.app.Instantiate(baseInfo())
	if !errors.Is(err, exchange.ErrOrderAlreadyExists) {
		t.Fatalf("second instantiate: got %v, want ErrOrderAlreadyExists", err)
	}
}

func TestInstantiateRejectsBadPrecisionIncrementPair(t *testing.T) {
	kv := store.NewMemKV()
	app := exchange.New(kv, bank.New(kv), oracle.New(kv), escrowAddr, zap.NewNop())
	info := baseInfo()
	info.PricePrecision = 1
	info.SizeIncrement = fixed.NewInt(5) // not a multiple of 10^1
	err := app.Instantiate(info)
	if !errors.Is(err, exchange.ErrInvalidPricePrecisionSizePair) {
		t.Fatalf("got %v, want ErrInvalidPricePrecisionSizePair", err)
	}
}

func TestCreateAskEscrowsBase(t *testing.T) {
	f := newFixture(t, baseInfo())
	id := newID()
	f.createAsk(id, "2", 500)

	f.wantBalance(asker, "base_1", "0")
	f.wantBalance(escrowAddr, "base_1", "500")

	ask, err := f.app.GetAsk(id)
	if err != nil {
		t.Fatalf("get ask: %v", err)
	}
	if ask.Class != exchange.ClassBasic {
		t.Errorf("class = %s, want basic", ask.Class)
	}
	if ask.Status != exchange.StatusOpen {
		t.Errorf("status = %s, want open", ask.Status)
	}
	if ask.Remaining().String() != "500" {
		t.Errorf("remaining = %s, want 500", ask.Remaining().String())
	}
}

func TestCreateAskErrors(t *testing.T) {
	tests := []struct {
		name    string
		msg     exchange.CreateAskMsg
		funds   []exchange.Coin
		wantErr error
	}{
		{
			name:    "malformed id",
			msg:     exchange.CreateAskMsg{ID: "not-a-uuid", Base: "base_1", Quote: "quote_1", Price: "2", Size: fixed.NewInt(10)},
			funds:   coins("base_1", 10),
			wantErr: exchange.ErrInvalidFields,
		},
		{
			name:    "unknown base denom",
			msg:     exchange.CreateAskMsg{ID: newID(), Base: "base_x", Quote: "quote_1", Price: "2", Size: fixed.NewInt(10)},
			funds:   coins("base_x", 10),
			wantErr: exchange.ErrInconvertibleBaseDenom,
		},
		{
			name:    "unsupported quote denom",
			msg:     exchange.CreateAskMsg{ID: newID(), Base: "base_1", Quote: "quote_x", Price: "2", Size: fixed.NewInt(10)},
			funds:   coins("base_1", 10),
			wantErr: exchange.ErrUnsupportedQuoteDenom,
		},
		{
			name:    "price too precise",
			msg:     exchange.CreateAskMsg{ID: newID(), Base: "base_1", Quote: "quote_1", Price: "2.5", Size: fixed.NewInt(10)},
			funds:   coins("base_1", 10),
			wantErr: exchange.ErrInvalidFields,
		},
		{
			name:    "funds amount mismatch",
			msg:     exchange.CreateAskMsg{ID: newID(), Base: "base_1", Quote: "quote_1", Price: "2", Size: fixed.NewInt(10)},
			funds:   coins("base_1", 9),
			wantErr: exchange.ErrSentFundsMismatch,
		},
		{
			name:    "funds denom mismatch",
			msg:     exchange.CreateAskMsg{ID: newID(), Base: "base_1", Quote: "quote_1", Price: "2", Size: fixed.NewInt(10)},
			funds:   coins("quote_1", 10),
			wantErr: exchange.ErrSentFundsMismatch,
		},
		{
			name:    "no funds",
			msg:     exchange.CreateAskMsg{ID: newID(), Base: "base_1", Quote: "quote_1", Price: "2", Size: fixed.NewInt(10)},
			funds:   nil,
			wantErr: exchange.ErrSentFundsMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, baseInfo())
			f.mint(asker, tt.msg.Base, 1000)
			_, err := f.app.CreateAsk(asker, tt.msg, tt.funds)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateAskRejectsDuplicateID(t *testing.T) {
	f := newFixture(t, baseInfo())
	id := newID()
	f.createAsk(id, "2", 10)

	f.mint(asker, "base_1", 10)
	msg := exchange.CreateAskMsg{ID: id, Base: "base_1", Quote: "quote_1", Price: "2", Size: fixed.NewInt(10)}
	_, err := f.app.CreateAsk(asker, msg, coins("base_1", 10))
	if !errors.Is(err, exchange.ErrOrderAlreadyExists) {
		t.Fatalf("got %v, want ErrOrderAlreadyExists", err)
	}
}

func TestCreateAskEnforcesSizeIncrement(t *testing.T) {
	info := baseInfo()
	info.SizeIncrement = fixed.NewInt(10)
	f := newFixture(t, info)

	f.mint(asker, "base_1", 15)
	msg := exchange.CreateAskMsg{ID: newID(), Base: "base_1", Quote: "quote_1", Price: "2", Size: fixed.NewInt(15)}
	_, err := f.app.CreateAsk(asker, msg, coins("base_1", 15))
	if !errors.Is(err, exchange.ErrInvalidFields) {
		t.Fatalf("got %v, want ErrInvalidFields", err)
	}
}

func TestCreateAskRequiresAttribute(t *testing.T) {
	info := baseInfo()
	info.AskRequiredAttributes = []string{"kyc.seller"}
	f := newFixture(t, info)

	f.mint(asker, "base_1", 10)
	msg := exchange.CreateAskMsg{ID: newID(), Base: "base_1", Quote: "quote_1", Price: "2", Size: fixed.NewInt(10)}
	_, err := f.app.CreateAsk(asker, msg, coins("base_1", 10))
	if !errors.Is(err, exchange.ErrUnauthorized) {
		t.Fatalf("without attribute: got %v, want ErrUnauthorized", err)
	}

	if err := f.attrs.Grant(asker, "kyc.seller"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := f.app.CreateAsk(asker, msg, coins("base_1", 10)); err != nil {
		t.Fatalf("with attribute: %v", err)
	}
}

func TestCreateBidEscrowsQuote(t *testing.T) {
	f := newFixture(t, baseInfo())
	id := newID()
	f.createBid(id, "2", 500, 1000)

	f.wantBalance(bidder, "quote_1", "0")
	f.wantBalance(escrowAddr, "quote_1", "1000")

	bid, err := f.app.GetBid(id)
	if err != nil {
		t.Fatalf("get bid: %v", err)
	}
	if bid.Size.String() != "500" || bid.Quote.Amount.String() != "1000" {
		t.Errorf("bid = size %s escrow %s, want 500/1000", bid.Size.String(), bid.Quote.Amount.String())
	}
}

func TestCreateBidRejectsInconsistentQuoteSize(t *testing.T) {
	f := newFixture(t, baseInfo())
	f.mint(bidder, "quote_1", 999)
	msg := exchange.CreateBidMsg{
		ID: newID(), Base: "base_1", Quote: "quote_1", Price: "2",
		Size: fixed.NewInt(500), QuoteSize: fixed.NewInt(999),
	}
	_, err := f.app.CreateBid(bidder, msg, coins("quote_1", 999))
	if !errors.Is(err, exchange.ErrInconsistentFields) {
		t.Fatalf("got %v, want ErrInconsistentFields", err)
	}
}

func TestCreateBidRejectsConvertibleBase(t *testing.T) {
	// Only asks may use a convertible base denom.
	f := newFixture(t, baseInfo())
	f.mint(bidder, "quote_1", 20)
	msg := exchange.CreateBidMsg{
		ID: newID(), Base: "conv_1", Quote: "quote_1", Price: "2",
		Size: fixed.NewInt(10), QuoteSize: fixed.NewInt(20),
	}
	_, err := f.app.CreateBid(bidder, msg, coins("quote_1", 20))
	if !errors.Is(err, exchange.ErrInconvertibleBaseDenom) {
		t.Fatalf("got %v, want ErrInconvertibleBaseDenom", err)
	}
}

func TestSameIDAllowedAcrossSides(t *testing.T) {
	// Ask and bid ids live in separate keyspaces.
	f := newFixture(t, baseInfo())
	id := newID()
	f.createAsk(id, "2", 10)
	f.createBid(id, "2", 10, 20)

	if _, err := f.app.GetAsk(id); err != nil {
		t.Errorf("get ask: %v", err)
	}
	if _, err := f.app.GetBid(id); err != nil {
		t.Errorf("get bid: %v", err)
	}
}

func TestApproveAsk(t *testing.T) {
	f := newFixture(t, baseInfo())
	id := newID()

	f.mint(asker, "conv_1", 100)
	msg := exchange.CreateAskMsg{ID: id, Base: "conv_1", Quote: "quote_1", Price: "2", Size: fixed.NewInt(100)}
	if _, err := f.app.CreateAsk(asker, msg, coins("conv_1", 100)); err != nil {
		t.Fatalf("create convertible ask: %v", err)
	}

	f.mint(approver, "base_1", 100)
	approve := exchange.ApproveAskMsg{ID: id, Base: "base_1", Size: fixed.NewInt(100)}
	if err := f.app.ApproveAsk(approver, approve, coins("base_1", 100)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	f.wantBalance(approver, "base_1", "0")
	f.wantBalance(escrowAddr, "base_1", "100")

	ask, err := f.app.GetAsk(id)
	if err != nil {
		t.Fatalf("get ask: %v", err)
	}
	if ask.Approval == nil || ask.Approval.Approver != approver {
		t.Fatalf("approval not recorded: %+v", ask.Approval)
	}
	if got := ask.SettleDenom(); got != "base_1" {
		t.Errorf("settle denom = %s, want base_1", got)
	}

	// Second approval is rejected.
	f.mint(approver, "base_1", 100)
	err = f.app.ApproveAsk(approver, approve, coins("base_1", 100))
	if !errors.Is(err, exchange.ErrInvalidFields) {
		t.Fatalf("re-approve: got %v, want ErrInvalidFields", err)
	}
}

func TestApproveAskErrors(t *testing.T) {
	f := newFixture(t, baseInfo())
	convID := newID()
	basicID := newID()

	f.mint(asker, "conv_1", 100)
	conv := exchange.CreateAskMsg{ID: convID, Base: "conv_1", Quote: "quote_1", Price: "2", Size: fixed.NewInt(100)}
	if _, err := f.app.CreateAsk(asker, conv, coins("conv_1", 100)); err != nil {
		t.Fatalf("create convertible ask: %v", err)
	}
	f.createAsk(basicID, "2", 100)

	f.mint(approver, "base_1", 1000)
	f.mint(outsider, "base_1", 1000)

	tests := []struct {
		name    string
		caller  common.Address
		msg     exchange.ApproveAskMsg
		funds   []exchange.Coin
		wantErr error
	}{
		{
			name:    "not an approver",
			caller:  outsider,
			msg:     exchange.ApproveAskMsg{ID: convID, Base: "base_1", Size: fixed.NewInt(100)},
			funds:   coins("base_1", 100),
			wantErr: exchange.ErrUnauthorized,
		},
		{
			name:    "basic ask",
			caller:  approver,
			msg:     exchange.ApproveAskMsg{ID: basicID, Base: "base_1", Size: fixed.NewInt(100)},
			funds:   coins("base_1", 100),
			wantErr: exchange.ErrInvalidFields,
		},
		{
			name:    "wrong size",
			caller:  approver,
			msg:     exchange.ApproveAskMsg{ID: convID, Base: "base_1", Size: fixed.NewInt(60)},
			funds:   coins("base_1", 60),
			wantErr: exchange.ErrSentFundsMismatch,
		},
		{
			name:    "wrong denom",
			caller:  approver,
			msg:     exchange.ApproveAskMsg{ID: convID, Base: "conv_1", Size: fixed.NewInt(100)},
			funds:   coins("conv_1", 100),
			wantErr: exchange.ErrSentFundsMismatch,
		},
		{
			name:    "unknown order",
			caller:  approver,
			msg:     exchange.ApproveAskMsg{ID: newID(), Base: "base_1", Size: fixed.NewInt(100)},
			funds:   coins("base_1", 100),
			wantErr: exchange.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.app.ApproveAsk(tt.caller, tt.msg, tt.funds)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCancelAskRefundsOwner(t *testing.T) {
	f := newFixture(t, baseInfo())
	id := newID()
	f.createAsk(id, "2", 500)

	if err := f.app.CancelAsk(asker, exchange.CancelMsg{ID: id}, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	f.wantBalance(asker, "base_1", "500")
	f.wantBalance(escrowAddr, "base_1", "0")

	if _, err := f.app.GetAsk(id); !errors.Is(err, exchange.ErrNotFound) {
		t.Fatalf("get after cancel: got %v, want ErrNotFound", err)
	}
}

func TestCancelAskAuthorization(t *testing.T) {
	f := newFixture(t, baseInfo())
	id := newID()
	f.createAsk(id, "2", 500)

	if err := f.app.CancelAsk(outsider, exchange.CancelMsg{ID: id}, nil); !errors.Is(err, exchange.ErrUnauthorized) {
		t.Errorf("outsider cancel: got %v, want ErrUnauthorized", err)
	}
	// Executors do not get to cancel on the owner's behalf.
	if err := f.app.CancelAsk(executor, exchange.CancelMsg{ID: id}, nil); !errors.Is(err, exchange.ErrUnauthorized) {
		t.Errorf("executor cancel: got %v, want ErrUnauthorized", err)
	}
}

func TestCancelAskRejectsAttachedFunds(t *testing.T) {
	f := newFixture(t, baseInfo())
	id := newID()
	f.createAsk(id, "2", 500)

	err := f.app.CancelAsk(asker, exchange.CancelMsg{ID: id}, coins("base_1", 1))
	if !errors.Is(err, exchange.ErrSentFundsMismatch) {
		t.Fatalf("got %v, want ErrSentFundsMismatch", err)
	}
}

func TestCancelApprovedConvertibleAsk(t *testing.T) {
	// Cancelling an approved convertible ask returns the convertible base to
	// the asker and the canonical base to the approver.
	f := newFixture(t, baseInfo())
	id := newID()

	f.mint(asker, "conv_1", 100)
	msg := exchange.CreateAskMsg{ID: id, Base: "conv_1", Quote: "quote_1", Price: "2", Size: fixed.NewInt(100)}
	if _, err := f.app.CreateAsk(asker, msg, coins("conv_1", 100)); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.mint(approver, "base_1", 100)
	if err := f.app.ApproveAsk(approver, exchange.ApproveAskMsg{ID: id, Base: "base_1", Size: fixed.NewInt(100)}, coins("base_1", 100)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := f.app.CancelAsk(asker, exchange.CancelMsg{ID: id}, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	f.wantBalance(asker, "conv_1", "100")
	f.wantBalance(approver, "base_1", "100")
}

func TestExpireAskIsExecutorDriven(t *testing.T) {
	f := newFixture(t, baseInfo())
	id := newID()
	f.createAsk(id, "2", 500)

	if err := f.app.ExpireAsk(asker, exchange.CancelMsg{ID: id}, nil); !errors.Is(err, exchange.ErrUnauthorized) {
		t.Fatalf("owner expire: got %v, want ErrUnauthorized", err)
	}
	if err := f.app.ExpireAsk(executor, exchange.CancelMsg{ID: id}, nil); err != nil {
		t.Fatalf("executor expire: %v", err)
	}
	f.wantBalance(asker, "base_1", "500")
}

func TestCancelBidRefundsEscrow(t *testing.T) {
	f := newFixture(t, baseInfo())
	id := newID()
	f.createBid(id, "2", 500, 1000)

	if err := f.app.CancelBid(bidder, exchange.CancelMsg{ID: id}, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	f.wantBalance(bidder, "quote_1", "1000")
	f.wantBalance(escrowAddr, "quote_1", "0")

	if _, err := f.app.GetBid(id); !errors.Is(err, exchange.ErrNotFound) {
		t.Fatalf("get after cancel: got %v, want ErrNotFound", err)
	}
}

func TestExpireBidIsExecutorDriven(t *testing.T) {
	f := newFixture(t, baseInfo())
	id := newID()
	f.createBid(id, "2", 500, 1000)

	if err := f.app.ExpireBid(bidder, exchange.CancelMsg{ID: id}, nil); !errors.Is(err, exchange.ErrUnauthorized) {
		t.Fatalf("owner expire: got %v, want ErrUnauthorized", err)
	}
	if err := f.app.ExpireBid(executor, exchange.CancelMsg{ID: id}, nil); err != nil {
		t.Fatalf("executor expire: %v", err)
	}
	f.wantBalance(bidder, "quote_1", "1000")
}

func TestRejectAskFull(t *testing.T) {
	f := newFixture(t, baseInfo())
	id := newID()
	f.createAsk(id, "2", 500)

	if err := f.app.RejectAsk(executor, exchange.RejectMsg{ID: id}, nil); err != nil {
		t.Fatalf("reject: %v", err)
	}
	f.wantBalance(asker, "base_1", "500")
	if _, err := f.app.GetAsk(id); !errors.Is(err, exchange.ErrNotFound) {
		t.Fatalf("get after full reject: got %v, want ErrNotFound", err)
	}
}

func TestRejectAskPartial(t *testing.T) {
	f := newFixture(t, baseInfo())
	id := newID()
	f.createAsk(id, "2", 500)

	size := fixed.NewInt(100)
	if err := f.app.RejectAsk(executor, exchange.RejectMsg{ID: id, Size: &size}, nil); err != nil {
		t.Fatalf("partial reject: %v", err)
	}
	f.wantBalance(asker, "base_1", "100")

	ask, err := f.app.GetAsk(id)
	if err != nil {
		t.Fatalf("get ask: %v", err)
	}
	if ask.Remaining().String() != "400" {
		t.Errorf("remaining = %s, want 400", ask.Remaining().String())
	}
	if len(ask.Events) != 1 || ask.Events[0].Action != exchange.EventReject {
		t.Errorf("events = %+v, want one reject event", ask.Events)
	}
}

func TestRejectAskErrors(t *testing.T) {
	f := newFixture(t, baseInfo())
	id := newID()
	f.createAsk(id, "2", 500)

	if err := f.app.RejectAsk(asker, exchange.RejectMsg{ID: id}, nil); !errors.Is(err, exchange.ErrUnauthorized) {
		t.Errorf("owner reject: got %v, want ErrUnauthorized", err)
	}
	oversize := fixed.NewInt(600)
	err := f.app.RejectAsk(executor, exchange.RejectMsg{ID: id, Size: &oversize}, nil)
	if !errors.Is(err, exchange.ErrInvalidFields) {
		t.Errorf("oversize reject: got %v, want ErrInvalidFields", err)
	}
}

func TestRejectBidPartial(t *testing.T) {
	f := newFixture(t, baseInfo())
	id := newID()
	f.createBid(id, "1", 500, 500)

	size := fixed.NewInt(100)
	if err := f.app.RejectBid(executor, exchange.RejectMsg{ID: id, Size: &size}, nil); err != nil {
		t.Fatalf("partial reject: %v", err)
	}
	// Refund is the rejected base size priced at the bid's own price.
	f.wantBalance(bidder, "quote_1", "100")

	bid, err := f.app.GetBid(id)
	if err != nil {
		t.Fatalf("get bid: %v", err)
	}
	if bid.Size.String() != "400" {
		t.Errorf("size = %s, want 400", bid.Size.String())
	}
	if bid.Quote.Amount.String() != "400" {
		t.Errorf("escrow = %s, want 400", bid.Quote.Amount.String())
	}
}

func TestRejectBidFull(t *testing.T) {
	f := newFixture(t, baseInfo())
	id := newID()
	f.createBid(id, "2", 500, 1000)

	if err := f.app.RejectBid(executor, exchange.RejectMsg{ID: id}, nil); err != nil {
		t.Fatalf("reject: %v", err)
	}
	f.wantBalance(bidder, "quote_1", "1000")
	if _, err := f.app.GetBid(id); !errors.Is(err, exchange.ErrNotFound) {
		t.Fatalf("get after full reject: got %v, want ErrNotFound", err)
	}
}

func TestModifyContractAuthorization(t *testing.T) {
	f := newFixture(t, baseInfo())
	err := f.app.ModifyContract(outsider, exchange.ModifyContract{Executors: []common.Address{outsider}})
	if !errors.Is(err, exchange.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}

func TestModifyContractSwapsExecutors(t *testing.T) {
	f := newFixture(t, baseInfo())
	next := common.HexToAddress("0x7777777777777777777777777777777777777777")
	if err := f.app.ModifyContract(executor, exchange.ModifyContract{Executors: []common.Address{next}}); err != nil {
		t.Fatalf("modify: %v", err)
	}

	info, err := f.app.GetContractInfo()
	if err != nil {
		t.Fatalf("get info: %v", err)
	}
	if !info.IsExecutor(next) || info.IsExecutor(executor) {
		t.Errorf("executors = %v, want only %s", info.Executors, next.Hex())
	}

	// The old executor lost its role.
	err = f.app.ModifyContract(executor, exchange.ModifyContract{Executors: []common.Address{executor}})
	if !errors.Is(err, exchange.ErrUnauthorized) {
		t.Errorf("old executor: got %v, want ErrUnauthorized", err)
	}
}

func TestModifyContractFrozenFields(t *testing.T) {
	rate, err := fixed.ParseDec("0.01")
	if err != nil {
		t.Fatalf("parse rate: %v", err)
	}

	t.Run("ask attributes frozen while asks rest", func(t *testing.T) {
		f := newFixture(t, baseInfo())
		f.createAsk(newID(), "2", 10)
		err := f.app.ModifyContract(executor, exchange.ModifyContract{AskRequiredAttributes: []string{"kyc"}})
		if !errors.Is(err, exchange.ErrInvalidFields) {
			t.Errorf("got %v, want ErrInvalidFields", err)
		}
	})

	t.Run("bid fee frozen while bids rest", func(t *testing.T) {
		f := newFixture(t, baseInfo())
		f.createBid(newID(), "2", 10, 20)
		err := f.app.ModifyContract(executor, exchange.ModifyContract{BidFeeRate: &rate, BidFeeAccount: &bidFeeAcct})
		if !errors.Is(err, exchange.ErrInvalidFields) {
			t.Errorf("got %v, want ErrInvalidFields", err)
		}
	})

	t.Run("approvers may only grow while orders rest", func(t *testing.T) {
		f := newFixture(t, baseInfo())
		f.createAsk(newID(), "2", 10)
		err := f.app.ModifyContract(executor, exchange.ModifyContract{Approvers: []common.Address{outsider}})
		if !errors.Is(err, exchange.ErrInvalidFields) {
			t.Errorf("shrink: got %v, want ErrInvalidFields", err)
		}
		if err := f.app.ModifyContract(executor, exchange.ModifyContract{Approvers: []common.Address{approver, outsider}}); err != nil {
			t.Errorf("grow: %v", err)
		}
	})

	t.Run("bid fee free once book is empty", func(t *testing.T) {
		f := newFixture(t, baseInfo())
		id := newID()
		f.createBid(id, "2", 10, 20)
		if err := f.app.CancelBid(bidder, exchange.CancelMsg{ID: id}, nil); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if err := f.app.ModifyContract(executor, exchange.ModifyContract{BidFeeRate: &rate, BidFeeAccount: &bidFeeAcct}); err != nil {
			t.Errorf("got %v, want nil", err)
		}
	})
}

func TestMigrate(t *testing.T) {
	f := newFixture(t, baseInfo())

	if err := f.app.Migrate(outsider); !errors.Is(err, exchange.ErrUnauthorized) {
		t.Fatalf("outsider migrate: got %v, want ErrUnauthorized", err)
	}
	if err := f.app.Migrate(executor); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	vi, err := f.app.GetVersionInfo()
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if vi.Definition != exchange.Definition || vi.Version != exchange.Version {
		t.Errorf("version info = %+v", vi)
	}
}

func TestQueriesOnMissingState(t *testing.T) {
	f := newFixture(t, baseInfo())
	if _, err := f.app.GetAsk(newID()); !errors.Is(err, exchange.ErrNotFound) {
		t.Errorf("get ask: got %v, want ErrNotFound", err)
	}
	if _, err := f.app.GetBid(newID()); !errors.Is(err, exchange.ErrNotFound) {
		t.Errorf("get bid: got %v, want ErrNotFound", err)
	}
}

func TestFailedRequestLeavesNoState(t *testing.T) {
	// A request that fails after staging writes must not leak them: the
	// duplicate-id create below loads and stages nothing visible.
	f := newFixture(t, baseInfo())
	id := newID()
	f.createAsk(id, "2", 10)

	f.mint(asker, "base_1", 10)
	msg := exchange.CreateAskMsg{ID: id, Base: "base_1", Quote: "quote_1", Price: "2", Size: fixed.NewInt(10)}
	if _, err := f.app.CreateAsk(asker, msg, coins("base_1", 10)); err == nil {
		t.Fatal("duplicate create succeeded")
	}

	// The failed request escrowed nothing.
	f.wantBalance(asker, "base_1", "10")
	f.wantBalance(escrowAddr, "base_1", "10")
}
