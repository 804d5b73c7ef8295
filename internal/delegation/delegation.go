// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

// Package delegation drives the hand-off of player records between the base
// ledger and a delegated context, and back.
package delegation

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nrdxhq/blockstranding/internal/logging"
	"github.com/nrdxhq/blockstranding/internal/oplog"
	"github.com/nrdxhq/blockstranding/internal/player"
)

// Transport is the delegated context as seen from the base ledger.
type Transport interface {
	// Delegate clones rec into the delegated context and returns the completed
	// descriptor. Idempotent per address while a live replica exists.
	Delegate(ctx context.Context, rec player.Record, payer player.Identity, cfg player.DelegateConfig) (player.Descriptor, error)

	// Snapshot returns the current delegated state without sealing it.
	Snapshot(ctx context.Context, desc player.Descriptor) (player.Snapshot, error)

	// FetchLatest seals the delegated copy and returns its final state.
	// Repeated calls return the same snapshot.
	FetchLatest(ctx context.Context, desc player.Descriptor) (player.Snapshot, error)

	// Release drops the delegated copy. Best effort.
	Release(ctx context.Context, desc player.Descriptor) error
}

// Defaults for RetryConfig.
const (
	DefaultRetryAttempts  = 5
	DefaultRetryBaseDelay = 100 * time.Millisecond
	maxRetryDelay         = 5 * time.Second
)

// RetryConfig bounds the exponential backoff applied to transport calls.
type RetryConfig struct {
	// Attempts is the number of retries after the first try.
	Attempts  uint64
	BaseDelay time.Duration
}

func (c RetryConfig) backoff() retry.Backoff {
	base := c.BaseDelay
	if base <= 0 {
		base = DefaultRetryBaseDelay
	}
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(maxRetryDelay, b)
	return retry.WithMaxRetries(c.Attempts, b)
}

// Config holds the dependencies shared by Controller and Reconciler.
type Config struct {
	Store      player.Store
	Transport  Transport
	Authorizer player.Authorizer
	Journal    *oplog.Journal
	Retry      RetryConfig
	Logger     *slog.Logger
}

// base is embedded by Controller and Reconciler.
type base struct {
	store     player.Store
	registry  *player.Registry
	transport Transport
	authz     player.Authorizer
	journal   *oplog.Journal
	retry     RetryConfig
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func newBase(cfg Config) base {
	authz := cfg.Authorizer
	if authz == nil {
		authz = player.OwnerOnly{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return base{
		store:     cfg.Store,
		registry:  player.NewRegistry(cfg.Store),
		transport: cfg.Transport,
		authz:     authz,
		journal:   cfg.Journal,
		retry:     cfg.Retry,
		logger:    logger,
		tracer:    otel.Tracer("github.com/nrdxhq/blockstranding/internal/delegation"),
		now:       time.Now,
	}
}

// startSpan opens a span for op on addr and tags log records with the player.
func (b *base) startSpan(ctx context.Context, op string, addr player.Address) (context.Context, trace.Span) {
	ctx, span := b.tracer.Start(ctx, "delegation."+op,
		trace.WithAttributes(attribute.String("player.address", addr.String())))
	return logging.WithPlayer(ctx, addr.String()), span
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, player.Status(err))
	}
	span.End()
}

// withRetry runs fn under the configured backoff. Errors for which permanent
// returns true stop the loop immediately.
func (b *base) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error, permanent func(error) bool) error {
	attempt := 0
	return retry.Do(ctx, b.retry.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || permanent(err) {
			return err
		}
		b.logger.WarnContext(ctx, "transport call failed", "operation", op, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
}

// load reads the entity for owner after validating the identity.
func (b *base) load(ctx context.Context, owner player.Identity) (*player.Entity, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	return b.store.Get(ctx, player.Derive(owner))
}

func notDelegated(addr player.Address, state player.Authority) error {
	return oops.Code(player.CodeNotDelegated).
		With("address", addr.String()).
		With("authority", state.String()).
		Wrap(player.ErrNotDelegated)
}
