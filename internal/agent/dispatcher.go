package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ghostmesh/gateway/internal/breaker"
	"github.com/ghostmesh/gateway/internal/provider"
)

// ChainLink is one entry in a ghost's model chain: an alias naming the
// breaker/config key, an Adapter bound to the concrete provider, and the
// model name that adapter should request.
type ChainLink struct {
	Alias   string
	Adapter provider.Adapter
	Model   string
}

// Dispatcher tries a ghost's model chain in order, skipping any alias the
// shared breaker.Registry currently has in cooldown, and recording the
// outcome of whichever alias it tries against that same registry. The
// chain's own ordered fallback *is* the retry strategy — there is no
// additional per-link retry loop, since a provider that just failed is
// either skipped (cooldown) or about to fail again for the same reason.
type Dispatcher struct {
	Breaker *breaker.Registry
	Logger  *slog.Logger
}

// NewDispatcher builds a Dispatcher sharing reg across every session.
func NewDispatcher(reg *breaker.Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{Breaker: reg, Logger: logger}
}

// ErrChainExhausted is returned when every alias in the chain is either
// cooling down or failed during this dispatch.
var ErrChainExhausted = fmt.Errorf("model chain exhausted")

// Dispatch sends req through the first available link in chain, advancing
// to the next link on any error and recording the failure against the
// shared breaker. It returns the response from whichever link succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, chain []ChainLink, req provider.ConversationRequest) (*provider.ProviderResponse, string, error) {
	var lastErr error
	tried := false
	for _, link := range chain {
		if !d.Breaker.IsAvailable(link.Alias) {
			d.Logger.Debug("skipping cooled-down model chain link", "alias", link.Alias)
			continue
		}
		tried = true
		linkReq := req
		linkReq.Model = link.Model

		resp, err := link.Adapter.SendConversation(ctx, linkReq)
		if err == nil {
			d.Breaker.RecordSuccess(link.Alias)
			return resp, link.Alias, nil
		}

		rateLimited := provider.IsRateLimited(err)
		serverErr := provider.IsServerError(err)
		if rateLimited || serverErr {
			d.Breaker.RecordFailure(link.Alias, rateLimited, err.Error())
		}
		d.Logger.Warn("model chain link failed", "alias", link.Alias, "error", err)
		lastErr = err

		if !provider.ShouldFailover(err) && !rateLimited && !serverErr {
			// Not retryable and not a failover signal: further links in
			// the chain would fail the same way (e.g. malformed request).
			return nil, link.Alias, err
		}
	}

	if !tried {
		return nil, "", ErrChainExhausted
	}
	if lastErr == nil {
		lastErr = ErrChainExhausted
	}
	return nil, "", lastErr
}
