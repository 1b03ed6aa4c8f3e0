package guild

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"guildhall.org/internal/ids"
	"guildhall.org/internal/obs"
)

// Registry implements every guild operation on top of a Store. Each public
// method runs its whole read/check/write sequence inside one Store unit of
// work, so checks always precede writes and a failed operation writes
// nothing.
type Registry struct {
	store  Store
	height HeightSource
	events EventSink
	tracer trace.Tracer
}

// Option configures a Registry.
type Option func(*Registry)

// WithEvents publishes committed events to sink.
func WithEvents(sink EventSink) Option {
	return func(r *Registry) {
		r.events = sink
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) {
		if t != nil {
			r.tracer = t
		}
	}
}

// NewRegistry wires a registry to its storage and height source.
func NewRegistry(store Store, height HeightSource, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, errors.New("guild: store is required")
	}
	if height == nil {
		return nil, errors.New("guild: height source is required")
	}
	r := &Registry{
		store:  store,
		height: height,
		tracer: otel.Tracer("guildhall.org/internal/guild"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// unit is the state threaded through one write operation.
type unit struct {
	Tx
	height uint64
	events []Event
}

func (u *unit) emit(typ string, guildID uint64, principal string, data map[string]any) {
	u.events = append(u.events, Event{
		Type:      typ,
		GuildID:   guildID,
		Principal: principal,
		Height:    u.height,
		Data:      data,
	})
}

func (r *Registry) update(ctx context.Context, op string, fn func(u *unit) error) error {
	ctx, span := r.tracer.Start(ctx, "guild."+op)
	defer span.End()

	// The height is read inside the unit of work so stamps follow commit
	// order; a retried transaction reads it again.
	var u *unit
	err := r.store.Update(ctx, func(tx Tx) error {
		h, err := r.height.Height(ctx)
		if err != nil {
			return fmt.Errorf("read height: %w", err)
		}
		u = &unit{Tx: tx, height: h}
		return fn(u)
	})
	if u != nil {
		span.SetAttributes(attribute.Int64("guild.height", int64(u.height)))
	}
	r.finish(span, op, err)
	if err != nil {
		return err
	}
	if r.events != nil {
		for _, evt := range u.events {
			evt.ID = ids.New()
			r.events.Publish(evt)
		}
	}
	return nil
}

func (r *Registry) view(ctx context.Context, op string, fn func(tx Tx) error) error {
	ctx, span := r.tracer.Start(ctx, "guild."+op)
	defer span.End()
	err := r.store.View(ctx, fn)
	if err != nil {
		var derr *Error
		if !errors.As(err, &derr) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	return err
}

func (r *Registry) finish(span trace.Span, op string, err error) {
	obs.RecordOperation(op, resultLabel(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var derr *Error
	if errors.As(err, &derr) {
		return strconv.FormatUint(uint64(derr.Code), 10)
	}
	return "error"
}

// Init records the deployer as contract administrator the first time the
// registry runs against an empty store. Later calls leave the stored admin
// untouched.
func (r *Registry) Init(ctx context.Context, deployer string) error {
	if err := validPrincipal(deployer); err != nil {
		return err
	}
	var count uint64
	err := r.update(ctx, "init", func(u *unit) error {
		cs, err := u.Contract()
		if err != nil {
			return err
		}
		count = cs.GuildCount
		if cs.Admin != "" {
			return nil
		}
		cs.Admin = deployer
		return u.PutContract(cs)
	})
	if err != nil {
		return err
	}
	obs.SetGuildCount(count)
	return nil
}

// SetContractAdmin rotates the contract administrator. Only the current
// admin may call it.
func (r *Registry) SetContractAdmin(ctx context.Context, caller, newAdmin string) error {
	if err := validPrincipal(caller); err != nil {
		return err
	}
	if err := validPrincipal(newAdmin); err != nil {
		return err
	}
	return r.update(ctx, "set_contract_admin", func(u *unit) error {
		cs, err := u.Contract()
		if err != nil {
			return err
		}
		if cs.Admin != caller {
			return ErrNotAuthorized
		}
		cs.Admin = newAdmin
		if err := u.PutContract(cs); err != nil {
			return err
		}
		u.emit("admin.changed", 0, caller, map[string]any{"admin": newAdmin})
		return nil
	})
}

// ContractAdmin returns the current contract administrator.
func (r *Registry) ContractAdmin(ctx context.Context) (string, error) {
	var admin string
	err := r.view(ctx, "get_contract_admin", func(tx Tx) error {
		cs, err := tx.Contract()
		if err != nil {
			return err
		}
		admin = cs.Admin
		return nil
	})
	return admin, err
}

// Height exposes the current chain height as seen by the registry.
func (r *Registry) Height(ctx context.Context) (uint64, error) {
	return r.height.Height(ctx)
}

// Ping checks the storage backend.
func (r *Registry) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func validPrincipal(p string) error {
	if strings.TrimSpace(p) == "" || len(p) > MaxPrincipalLen {
		return ErrInvalidParameter
	}
	return nil
}

func validText(s string, min, max int) error {
	if len(strings.TrimSpace(s)) < min || len(s) > max {
		return ErrInvalidParameter
	}
	return nil
}

func loadGuild(tx Tx, id uint64) (Guild, error) {
	g, ok, err := tx.Guild(id)
	if err != nil {
		return Guild{}, err
	}
	if !ok {
		return Guild{}, ErrGuildNotFound
	}
	return g, nil
}
