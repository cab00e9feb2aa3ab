// Package evidence defines the capability interface an external arbitration
// agent uses to gather facts (social posts, chain data) before ruling on a
// dispute. The registry itself never fetches evidence: the arbiter role only
// ever submits a resolveDispute call, and the registry treats that call as an
// opaque external decision.
package evidence

import (
	"context"
	"time"
)

// Query asks a provider for evidence about one subject.
type Query struct {
	// Kind names the lookup, e.g. "social.mentions" or "chain.transfers".
	Kind    string            `json:"kind"`
	Subject string            `json:"subject"`
	Params  map[string]string `json:"params,omitempty"`
}

// Item is one piece of fetched evidence.
type Item struct {
	Source    string    `json:"source"`
	Ref       string    `json:"ref"`
	Summary   string    `json:"summary"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Provider is a pluggable evidence source.
type Provider interface {
	Fetch(ctx context.Context, q Query) ([]Item, error)
}

// Providers fans a query out to several sources, skipping sources that fail;
// an arbitration run prefers partial evidence over none.
type Providers []Provider

func (ps Providers) Gather(ctx context.Context, q Query) []Item {
	var out []Item
	for _, p := range ps {
		items, err := p.Fetch(ctx, q)
		if err != nil {
			continue
		}
		out = append(out, items...)
	}
	return out
}
