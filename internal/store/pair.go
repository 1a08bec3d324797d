// Package store composes the Document Store and Relational Store into the
// Store Pair (§4.A): the atomic dual-write path that keeps a user's
// dynamic state and structured profile consistent even though the two
// underlying stores fail independently. Grounded on the reference
// create_user_atomic contract (spec.md §4.A) and on the teacher's
// retry-wrapped Connect() in modules/database/service.go for the backoff
// shape.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/yabot/core/internal/apperr"
	"github.com/yabot/core/internal/platform/retry"
	"github.com/yabot/core/internal/store/document"
	"github.com/yabot/core/internal/store/relational"
)

// Pair composes both stores behind the atomic-write and health contracts
// this core's services depend on.
type Pair struct {
	Document   document.Store
	Relational relational.Store
	Retry      retry.Config
}

// New returns a Pair with the default retry policy.
func New(doc document.Store, rel relational.Store) *Pair {
	return &Pair{Document: doc, Relational: rel, Retry: retry.DefaultConfig}
}

// CreateUserAtomic writes doc to the Document Store, then profile to the
// Relational Store. If the RS write fails, the DS document is deleted to
// compensate and the pair is left as it was before the call. If the DS
// write fails, RS is never touched. The pair is considered committed only
// once both writes succeed, per spec §4.A.
func (p *Pair) CreateUserAtomic(ctx context.Context, userID string, doc document.Doc, profile *relational.UserProfile) error {
	err := retry.WithBackoff(ctx, p.Retry, func(ctx context.Context) error {
		return p.Document.InsertOne(ctx, document.CollectionUsers, doc)
	})
	if err != nil {
		return apperr.Wrap(apperr.ErrStoreUnavailable, fmt.Errorf("create user atomic: document insert: %w", err))
	}

	err = retry.WithBackoff(ctx, p.Retry, func(ctx context.Context) error {
		return p.Relational.UpsertUserProfile(ctx, profile)
	})
	if err != nil {
		compErr := p.Document.DeleteOne(ctx, document.CollectionUsers, document.Doc{"user_id": userID})
		if compErr != nil {
			return apperr.Wrap(apperr.ErrDataInconsistency,
				fmt.Errorf("create user atomic: relational upsert failed (%v) and document compensation failed (%v)", err, compErr))
		}
		return apperr.Wrap(apperr.ErrStoreUnavailable, fmt.Errorf("create user atomic: relational upsert: %w", err))
	}

	return nil
}

// HealthStatus reports per-store reachability.
type HealthStatus struct {
	DocumentHealthy   bool
	RelationalHealthy bool
}

// Healthy reports whether both stores are reachable.
func (h HealthStatus) Healthy() bool {
	return h.DocumentHealthy && h.RelationalHealthy
}

// Health pings both stores with the §5 store-ping timeout.
func (p *Pair) Health(ctx context.Context, pingTimeout time.Duration) HealthStatus {
	docCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	relCtx, cancel2 := context.WithTimeout(ctx, pingTimeout)
	defer cancel2()

	return HealthStatus{
		DocumentHealthy:   p.Document.Ping(docCtx) == nil,
		RelationalHealthy: p.Relational.Ping(relCtx) == nil,
	}
}
