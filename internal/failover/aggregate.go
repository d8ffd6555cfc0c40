package failover

import (
	"context"
	"sort"

	"github.com/farelink/flightgw/internal/domain"
	"github.com/farelink/flightgw/internal/port"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type aggregateOutcome struct {
	provider string
	offers   []domain.Offer
	err      error
}

// aggregateFlights fans out to up to AggregateMaxFanout eligible
// candidates concurrently, merges the successful result sets, and
// returns partial=true when not every fanned-out candidate produced
// results before the deadline.
func (o *Orchestrator) aggregateFlights(ctx context.Context, searchID string, query domain.SearchQuery) (*domain.SearchResult, error) {
	capability := domain.CapabilityFlightSearch
	candidates := o.registry.ListCandidates(capability)

	attempts := make([]domain.AttemptFailure, 0, len(candidates))
	selected := make([]domain.ProviderConfig, 0, o.opts.AggregateMaxFanout)

	// Claim circuit slots up front; skipped providers see no traffic.
	for _, cfg := range candidates {
		if len(selected) == o.opts.AggregateMaxFanout {
			break
		}
		if !o.registry.BreakerFor(cfg.Name).Allow() {
			attempts = append(attempts, domain.AttemptFailure{Provider: cfg.Name, Reason: (&domain.ErrCircuitOpen{Provider: cfg.Name}).Error()})
			continue
		}
		selected = append(selected, cfg)
	}

	if len(selected) == 0 {
		return nil, &domain.ErrAllProvidersUnavailable{Capability: capability, Attempts: attempts}
	}

	outcomes := make([]aggregateOutcome, len(selected))

	// Plain group, no shared cancellation: one provider failing must not
	// abort the others. The overall deadline on ctx still bounds all.
	var g errgroup.Group
	g.SetLimit(o.opts.AggregateMaxFanout)
	for i, cfg := range selected {
		i, cfg := i, cfg
		g.Go(func() error {
			offers, err := invoke(o, ctx, cfg,
				func(ctx context.Context, p port.Plugin) ([]domain.Offer, error) {
					return p.SearchFlights(ctx, query)
				})
			outcomes[i] = aggregateOutcome{provider: cfg.Name, offers: offers, err: err}
			return nil
		})
	}
	g.Wait()

	merged := make(map[string]domain.Offer)
	provenance := make([]string, 0, len(selected))
	succeeded := 0

	for _, out := range outcomes {
		if out.err != nil {
			attempts = append(attempts, domain.AttemptFailure{Provider: out.provider, Reason: out.err.Error()})
			continue
		}
		succeeded++
		provenance = append(provenance, out.provider)
		for _, offer := range out.offers {
			key := offer.IdentityKey()
			current, seen := merged[key]
			if !seen ||
				offer.TotalPrice < current.TotalPrice ||
				(offer.TotalPrice == current.TotalPrice && offer.Provider < current.Provider) {
				merged[key] = offer
			}
		}
	}

	if succeeded == 0 {
		return nil, &domain.ErrAllProvidersUnavailable{Capability: capability, Attempts: attempts}
	}

	offers := make([]domain.Offer, 0, len(merged))
	for _, offer := range merged {
		offers = append(offers, offer)
	}
	sort.Slice(offers, func(i, j int) bool {
		if offers[i].TotalPrice != offers[j].TotalPrice {
			return offers[i].TotalPrice < offers[j].TotalPrice
		}
		return offers[i].IdentityKey() < offers[j].IdentityKey()
	})
	sort.Strings(provenance)

	partial := succeeded < len(selected)
	if partial {
		o.logger.Warn("aggregate search returned partial results",
			zap.String("search_id", searchID),
			zap.Int("fanned_out", len(selected)),
			zap.Int("succeeded", succeeded),
		)
	}

	return &domain.SearchResult{
		SearchID:   searchID,
		Offers:     offers,
		Provenance: provenance,
		Partial:    partial,
	}, nil
}
