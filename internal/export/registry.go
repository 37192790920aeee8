package export

import (
	"fmt"

	"github.com/jonathan/data-export/internal/types"
)

// Registry maps request id types to their strategies
type Registry struct {
	strategies map[types.IDType]Strategy
}

// NewRegistry creates a registry holding the built-in strategies
func NewRegistry(deps Deps) *Registry {
	r := &Registry{strategies: make(map[types.IDType]Strategy)}
	r.Register(types.IDTypeInstance, NewInstanceStrategy(deps))
	r.Register(types.IDTypeHoldings, NewHoldingsStrategy(deps))
	r.Register(types.IDTypeAuthority, NewAuthorityStrategy(deps))
	r.Register(types.IDTypeLinkedData, NewLinkedDataStrategy(deps))
	return r
}

// Register installs or replaces the strategy for an id type
func (r *Registry) Register(idType types.IDType, s Strategy) {
	r.strategies[idType] = s
}

// For returns the strategy for an id type
func (r *Registry) For(idType types.IDType) (Strategy, error) {
	s, ok := r.strategies[idType]
	if !ok {
		return nil, &UnsupportedError{IDType: idType}
	}
	return s, nil
}

// UnsupportedError is returned for id types without a strategy
type UnsupportedError struct {
	IDType types.IDType
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("no export strategy for id type %q", e.IDType)
}
