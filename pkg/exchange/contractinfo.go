package exchange

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/atsx/atsd/pkg/fixed"
)

// ContractInfo is the exchange-wide configuration: the trading pair's
// denominations, precision rules, privileged roles and fee schedule.
// Created once at instantiation and mutated only through ModifyContract.
type ContractInfo struct {
	Name                  string           `json:"name"`
	BaseDenom             string           `json:"base_denom"`
	ConvertibleBaseDenoms []string         `json:"convertible_base_denoms"`
	SupportedQuoteDenoms  []string         `json:"supported_quote_denoms"`
	Approvers             []common.Address `json:"approvers"`
	Executors             []common.Address `json:"executors"`
	AskRequiredAttributes []string         `json:"ask_required_attributes"`
	BidRequiredAttributes []string         `json:"bid_required_attributes"`
	PricePrecision        uint32           `json:"price_precision"`
	SizeIncrement         fixed.Int        `json:"size_increment"`
	AskFeeRate            *fixed.Dec       `json:"ask_fee_rate,omitempty"`
	AskFeeAccount         *common.Address  `json:"ask_fee_account,omitempty"`
	BidFeeRate            *fixed.Dec       `json:"bid_fee_rate,omitempty"`
	BidFeeAccount         *common.Address  `json:"bid_fee_account,omitempty"`
}

// Validate enforces the configuration invariants. Called at instantiation
// and again on the merged result of every modify.
func (c *ContractInfo) Validate() error {
	var fields []string
	if c.Name == "" {
		fields = append(fields, "name")
	}
	if c.BaseDenom == "" {
		fields = append(fields, "base_denom")
	}
	if len(c.SupportedQuoteDenoms) == 0 {
		fields = append(fields, "supported_quote_denoms")
	}
	if len(c.Executors) == 0 {
		fields = append(fields, "executors")
	}
	if c.PricePrecision > fixed.MaxPlaces {
		fields = append(fields, "price_precision")
	}
	if c.SizeIncrement.IsZero() {
		fields = append(fields, "size_increment")
	}
	if len(fields) > 0 {
		return invalidFields(fields...)
	}
	if !c.SizeIncrement.IsMultipleOf(fixed.Pow10(c.PricePrecision)) {
		return ErrInvalidPricePrecisionSizePair
	}
	if err := validateFeePair(c.AskFeeRate, c.AskFeeAccount, "ask_fee"); err != nil {
		return err
	}
	return validateFeePair(c.BidFeeRate, c.BidFeeAccount, "bid_fee")
}

// validateFeePair enforces both-or-neither and a rate within [0, 1].
func validateFeePair(rate *fixed.Dec, account *common.Address, field string) error {
	if (rate == nil) != (account == nil) {
		return invalidFields(field)
	}
	if rate != nil {
		one := fixed.NewDecFromInt(fixed.NewInt(1))
		if rate.Cmp(one) > 0 {
			return invalidFields(field + "_rate")
		}
	}
	return nil
}

// IsExecutor reports whether addr may execute matches, expirations and
// rejections.
func (c *ContractInfo) IsExecutor(addr common.Address) bool {
	return containsAddress(c.Executors, addr)
}

// IsApprover reports whether addr may approve convertible asks.
func (c *ContractInfo) IsApprover(addr common.Address) bool {
	return containsAddress(c.Approvers, addr)
}

// SupportsQuote reports whether denom is an accepted quote denomination.
func (c *ContractInfo) SupportsQuote(denom string) bool {
	return containsString(c.SupportedQuoteDenoms, denom)
}

// IsConvertibleBase reports whether denom may stand in for the base denom
// pending approval.
func (c *ContractInfo) IsConvertibleBase(denom string) bool {
	return containsString(c.ConvertibleBaseDenoms, denom)
}

func containsAddress(set []common.Address, addr common.Address) bool {
	for _, a := range set {
		if a == addr {
			return true
		}
	}
	return false
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// ModifyContract is the partial-field configuration update. Nil fields keep
// their prior values; provided fields overwrite.
type ModifyContract struct {
	Approvers             []common.Address `json:"approvers,omitempty"`
	Executors             []common.Address `json:"executors,omitempty"`
	AskFeeRate            *fixed.Dec       `json:"ask_fee_rate,omitempty"`
	AskFeeAccount         *common.Address  `json:"ask_fee_account,omitempty"`
	BidFeeRate            *fixed.Dec       `json:"bid_fee_rate,omitempty"`
	BidFeeAccount         *common.Address  `json:"bid_fee_account,omitempty"`
	AskRequiredAttributes []string         `json:"ask_required_attributes,omitempty"`
	BidRequiredAttributes []string         `json:"bid_required_attributes,omitempty"`
}

// touchesBidFee reports whether the update changes the bid fee pair.
func (m *ModifyContract) touchesBidFee() bool {
	return m.BidFeeRate != nil || m.BidFeeAccount != nil
}

// merged returns a copy of prior with m's provided fields applied.
func (m *ModifyContract) merged(prior ContractInfo) ContractInfo {
	next := prior
	if m.Approvers != nil {
		next.Approvers = m.Approvers
	}
	if m.Executors != nil {
		next.Executors = m.Executors
	}
	if m.AskFeeRate != nil {
		next.AskFeeRate = m.AskFeeRate
	}
	if m.AskFeeAccount != nil {
		next.AskFeeAccount = m.AskFeeAccount
	}
	if m.BidFeeRate != nil {
		next.BidFeeRate = m.BidFeeRate
	}
	if m.BidFeeAccount != nil {
		next.BidFeeAccount = m.BidFeeAccount
	}
	if m.AskRequiredAttributes != nil {
		next.AskRequiredAttributes = m.AskRequiredAttributes
	}
	if m.BidRequiredAttributes != nil {
		next.BidRequiredAttributes = m.BidRequiredAttributes
	}
	return next
}

// approversGrewOnly reports whether every prior approver survives in the
// proposed set. Required while orders rest in the book so an in-flight
// convertible ask never loses its approver.
func approversGrewOnly(prior, next []common.Address) bool {
	for _, p := range prior {
		if !containsAddress(next, p) {
			return false
		}
	}
	return true
}
