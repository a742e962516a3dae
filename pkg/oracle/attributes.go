// Package oracle is the permission collaborator: it records which named
// attributes an account holds. The exchange consults it when a contract
// requires attributes on ask or bid creators.
package oracle

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atsx/atsd/pkg/store"
)

// Registry is a KV-backed attribute store.
type Registry struct {
	kv store.KV
}

// New returns a registry over kv.
func New(kv store.KV) *Registry {
	return &Registry{kv: kv}
}

func attrKey(addr common.Address) []byte {
	return []byte("attr:" + addr.Hex())
}

// Attributes returns the attribute names held by addr. Unknown accounts
// hold none.
func (r *Registry) Attributes(addr common.Address) ([]string, error) {
	raw, err := r.kv.Get(attrKey(addr))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("oracle: read attributes: %w", err)
	}
	var attrs []string
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("oracle: decode attributes: %w", err)
	}
	return attrs, nil
}

// Grant adds an attribute to addr. Idempotent.
func (r *Registry) Grant(addr common.Address, attribute string) error {
	attrs, err := r.Attributes(addr)
	if err != nil {
		return err
	}
	for _, a := range attrs {
		if a == attribute {
			return nil
		}
	}
	attrs = append(attrs, attribute)
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("oracle: encode attributes: %w", err)
	}
	return r.kv.Apply([]store.Op{{Key: attrKey(addr), Value: raw}})
}
