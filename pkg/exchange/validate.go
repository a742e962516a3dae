package exchange

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atsx/atsd/pkg/fixed"
)

// AttributeQuerier is the permission oracle collaborator: it answers which
// attributes an account holds.
type AttributeQuerier interface {
	Attributes(addr common.Address) ([]string, error)
}

// validateNewAsk admits or rejects a candidate ask against the
// configuration. Checks run in a fixed order and fail fast on the first
// violation. Purely advisory: no side effects. Returns the parsed price.
func validateNewAsk(s *state, oracle AttributeQuerier, info *ContractInfo, owner common.Address, msg *CreateAskMsg) (fixed.Dec, error) {
	if msg.Base != info.BaseDenom && !info.IsConvertibleBase(msg.Base) {
		return fixed.Dec{}, ErrInconvertibleBaseDenom
	}
	if !info.SupportsQuote(msg.Quote) {
		return fixed.Dec{}, ErrUnsupportedQuoteDenom
	}
	if !msg.Size.IsMultipleOf(info.SizeIncrement) {
		return fixed.Dec{}, invalidFields("size")
	}
	price, err := validatePrice(msg.Price, info.PricePrecision)
	if err != nil {
		return fixed.Dec{}, err
	}
	if err := requireAttributes(oracle, owner, info.AskRequiredAttributes); err != nil {
		return fixed.Dec{}, err
	}
	exists, err := s.hasAsk(msg.ID)
	if err != nil {
		return fixed.Dec{}, err
	}
	if exists {
		return fixed.Dec{}, fmt.Errorf("ask order %s: %w", msg.ID, ErrOrderAlreadyExists)
	}
	return price, nil
}

// validateNewBid is the bid-side mirror of validateNewAsk, with the extra
// consistency check that the declared quote_size equals price*size under
// the truncation rule.
func validateNewBid(s *state, oracle AttributeQuerier, info *ContractInfo, owner common.Address, msg *CreateBidMsg) (fixed.Dec, error) {
	if msg.Base != info.BaseDenom {
		return fixed.Dec{}, ErrInconvertibleBaseDenom
	}
	if !info.SupportsQuote(msg.Quote) {
		return fixed.Dec{}, ErrUnsupportedQuoteDenom
	}
	if !msg.Size.IsMultipleOf(info.SizeIncrement) {
		return fixed.Dec{}, invalidFields("size")
	}
	price, err := validatePrice(msg.Price, info.PricePrecision)
	if err != nil {
		return fixed.Dec{}, err
	}
	if err := requireAttributes(oracle, owner, info.BidRequiredAttributes); err != nil {
		return fixed.Dec{}, err
	}
	if fixed.QuoteTotal(price, msg.Size).Cmp(msg.QuoteSize) != 0 {
		return fixed.Dec{}, fmt.Errorf("quote_size is not price*size: %w", ErrInconsistentFields)
	}
	exists, err := s.hasBid(msg.ID)
	if err != nil {
		return fixed.Dec{}, err
	}
	if exists {
		return fixed.Dec{}, fmt.Errorf("bid order %s: %w", msg.ID, ErrOrderAlreadyExists)
	}
	return price, nil
}

// validatePrice parses a limit or execution price: strictly positive with
// no more fractional digits than the configured precision.
func validatePrice(raw string, precision uint32) (fixed.Dec, error) {
	price, err := fixed.ParseDec(raw)
	if err != nil {
		return fixed.Dec{}, invalidFields("price")
	}
	if price.IsZero() || price.Places() > precision {
		return fixed.Dec{}, invalidFields("price")
	}
	return price, nil
}

// requireAttributes checks that owner holds every attribute in required.
// An empty required set passes without consulting the oracle.
func requireAttributes(oracle AttributeQuerier, owner common.Address, required []string) error {
	if len(required) == 0 {
		return nil
	}
	held, err := oracle.Attributes(owner)
	if err != nil {
		return fmt.Errorf("attribute query for %s: %w", owner.Hex(), err)
	}
	heldSet := make(map[string]struct{}, len(held))
	for _, a := range held {
		heldSet[a] = struct{}{}
	}
	for _, want := range required {
		if _, ok := heldSet[want]; !ok {
			return fmt.Errorf("missing attribute %s: %w", want, ErrUnauthorized)
		}
	}
	return nil
}
