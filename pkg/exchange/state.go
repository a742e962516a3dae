package exchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/atsx/atsd/pkg/store"
)

// State layout: one entry per order under a side prefix, singleton entries
// for configuration and version, and per-side order counters maintained so
// modify can tell whether any orders rest without scanning.
const (
	askKeyPrefix    = "ask:"
	bidKeyPrefix    = "bid:"
	contractInfoKey = "contract_info"
	versionInfoKey  = "version_info"
	askCountKey     = "ask_count"
	bidCountKey     = "bid_count"
)

func askKey(id string) []byte { return []byte(askKeyPrefix + id) }
func bidKey(id string) []byte { return []byte(bidKeyPrefix + id) }

// state is the typed view over one request's staged batch. All reads see
// the request's own writes; nothing reaches the base store until the
// request is accepted and the batch commits.
type state struct {
	b *store.Batch
}

func newState(b *store.Batch) *state { return &state{b: b} }

func (s *state) load(key []byte, v any, kind string) error {
	raw, err := s.b.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", kind, ErrNotFound)
	}
	if err != nil {
		return &StoreError{Op: "get " + kind, Err: err}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &StoreError{Op: "decode " + kind, Err: err}
	}
	return nil
}

func (s *state) save(key []byte, v any, kind string) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &StoreError{Op: "encode " + kind, Err: err}
	}
	s.b.Set(key, raw)
	return nil
}

func (s *state) has(key []byte) (bool, error) {
	_, err := s.b.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &StoreError{Op: "get", Err: err}
	}
	return true, nil
}

func (s *state) loadAsk(id string) (*AskOrder, error) {
	var ask AskOrder
	if err := s.load(askKey(id), &ask, "ask order "+id); err != nil {
		return nil, err
	}
	return &ask, nil
}

func (s *state) loadBid(id string) (*BidOrder, error) {
	var bid BidOrder
	if err := s.load(bidKey(id), &bid, "bid order "+id); err != nil {
		return nil, err
	}
	return &bid, nil
}

// insertAsk stores a new ask and bumps the ask counter. The caller has
// already checked the id is unused.
func (s *state) insertAsk(ask *AskOrder) error {
	if err := s.save(askKey(ask.ID), ask, "ask order"); err != nil {
		return err
	}
	return s.bumpCount(askCountKey, +1)
}

func (s *state) updateAsk(ask *AskOrder) error {
	return s.save(askKey(ask.ID), ask, "ask order")
}

func (s *state) removeAsk(id string) error {
	s.b.Delete(askKey(id))
	return s.bumpCount(askCountKey, -1)
}

func (s *state) insertBid(bid *BidOrder) error {
	if err := s.save(bidKey(bid.ID), bid, "bid order"); err != nil {
		return err
	}
	return s.bumpCount(bidCountKey, +1)
}

func (s *state) updateBid(bid *BidOrder) error {
	return s.save(bidKey(bid.ID), bid, "bid order")
}

func (s *state) removeBid(id string) error {
	s.b.Delete(bidKey(id))
	return s.bumpCount(bidCountKey, -1)
}

func (s *state) hasAsk(id string) (bool, error) { return s.has(askKey(id)) }
func (s *state) hasBid(id string) (bool, error) { return s.has(bidKey(id)) }

func (s *state) loadContractInfo() (*ContractInfo, error) {
	var info ContractInfo
	if err := s.load([]byte(contractInfoKey), &info, "contract info"); err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *state) saveContractInfo(info *ContractInfo) error {
	return s.save([]byte(contractInfoKey), info, "contract info")
}

func (s *state) loadVersionInfo() (*VersionInfo, error) {
	var v VersionInfo
	if err := s.load([]byte(versionInfoKey), &v, "version info"); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *state) saveVersionInfo(v *VersionInfo) error {
	return s.save([]byte(versionInfoKey), v, "version info")
}

func (s *state) orderCount(key string) (uint64, error) {
	raw, err := s.b.Get([]byte(key))
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, &StoreError{Op: "get " + key, Err: err}
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, &StoreError{Op: "decode " + key, Err: err}
	}
	return n, nil
}

func (s *state) bumpCount(key string, delta int) error {
	n, err := s.orderCount(key)
	if err != nil {
		return err
	}
	if delta < 0 {
		if n == 0 {
			return &StoreError{Op: "decrement " + key, Err: fmt.Errorf("counter already zero")}
		}
		n--
	} else {
		n++
	}
	s.b.Set([]byte(key), []byte(strconv.FormatUint(n, 10)))
	return nil
}
