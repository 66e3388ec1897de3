package policy

import "context"

// Provider resolves the policy governing a key. Implementations must
// be safe for concurrent use.
type Provider interface {
	PolicyFor(ctx context.Context, key Key) (Policy, error)
}

// StaticProvider serves policies from an in-memory map, with an
// optional fallback for unknown keys. The zero value is usable and
// holds nothing.
type StaticProvider struct {
	Policies map[Key]Policy

	// Fallback, when non-nil, is returned (rekeyed) for keys absent
	// from Policies instead of ErrPolicyNotFound.
	Fallback *Policy
}

func (p *StaticProvider) PolicyFor(_ context.Context, key Key) (Policy, error) {
	if p != nil && p.Policies != nil {
		if pol, ok := p.Policies[key]; ok {
			return pol, nil
		}
		// Namespace-wide policy, e.g. "stocks.*" covering stocks.Quote.
		if pol, ok := p.Policies[Key{Namespace: key.Namespace, Name: "*"}]; ok && key.Namespace != "" {
			pol.Key = key
			return pol, nil
		}
	}
	if p != nil && p.Fallback != nil {
		pol := *p.Fallback
		pol.Key = key
		return pol, nil
	}
	return Policy{}, ErrPolicyNotFound
}

// Add registers pol under its own key and returns the provider for
// chaining.
func (p *StaticProvider) Add(pol Policy) *StaticProvider {
	if p.Policies == nil {
		p.Policies = make(map[Key]Policy)
	}
	p.Policies[pol.Key] = pol
	return p
}
