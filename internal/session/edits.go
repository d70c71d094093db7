package session

import (
	"context"

	"github.com/yourorg/tradesim/pkg/types"
)

// Editor is the slice of the gateway that changes routes, factors or the
// whole scenario server-side.
type Editor interface {
	AddRoute(ctx context.Context, corridor types.Corridor, d types.RouteDetails) error
	DeleteRoute(ctx context.Context, corridor types.Corridor) error
	AddFactor(ctx context.Context, name string, f types.Factor) error
	DeleteFactor(ctx context.Context, name string) error
	Reset(ctx context.Context) error
}

// AddRoute creates or replaces a lane and rereads the routes cache.
func (s *Session) AddRoute(ctx context.Context, corridor types.Corridor, d types.RouteDetails) error {
	if s.editor == nil {
		return ErrReadOnly
	}
	if err := s.editor.AddRoute(ctx, corridor, d); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Info("route added", "origin", corridor.Origin, "destination", corridor.Destination)
	}
	s.refreshRoutesAfter(ctx, "add_route")
	return nil
}

// DeleteRoute removes a lane and rereads the routes cache.
func (s *Session) DeleteRoute(ctx context.Context, corridor types.Corridor) error {
	if s.editor == nil {
		return ErrReadOnly
	}
	if err := s.editor.DeleteRoute(ctx, corridor); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Info("route deleted", "origin", corridor.Origin, "destination", corridor.Destination)
	}
	s.refreshRoutesAfter(ctx, "delete_route")
	return nil
}

// AddFactor creates a factor, rereads the factors cache and schedules a recompute.
func (s *Session) AddFactor(ctx context.Context, name string, f types.Factor) error {
	if s.editor == nil {
		return ErrReadOnly
	}
	if err := s.editor.AddFactor(ctx, name, f); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Info("factor added", "factor", name, "effect", f.Effect, "strength", f.Strength)
	}
	s.refreshFactorsAfter(ctx, "add_factor")
	s.notify()
	return nil
}

// DeleteFactor removes a factor together with its local draft.
func (s *Session) DeleteFactor(ctx context.Context, name string) error {
	if s.editor == nil {
		return ErrReadOnly
	}
	if err := s.editor.DeleteFactor(ctx, name); err != nil {
		return err
	}
	if s.drafts != nil {
		s.drafts.Forget(name)
	}
	if s.log != nil {
		s.log.Info("factor deleted", "factor", name)
	}
	s.refreshFactorsAfter(ctx, "delete_factor")
	s.notify()
	return nil
}

// Reset restores the server scenario, then rereads factors and routes so a
// result computed before the reset is reported stale. Drafts are reconciled
// to the restored factors.
func (s *Session) Reset(ctx context.Context) error {
	if s.editor == nil {
		return ErrReadOnly
	}
	if err := s.editor.Reset(ctx); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Info("scenario reset")
	}
	s.refreshFactorsAfter(ctx, "reset")
	if s.drafts != nil && s.factors != nil {
		s.drafts.Reconcile(s.factors.Snapshot().Data)
	}
	s.refreshRoutesAfter(ctx, "reset")
	s.notify()
	return nil
}

func (s *Session) refreshRoutesAfter(ctx context.Context, op string) {
	if s.routes == nil {
		return
	}
	if err := s.routes.Refresh(ctx); err != nil && s.log != nil {
		s.log.Warn("route refresh failed", "after", op, "error", err)
	}
}

func (s *Session) refreshFactorsAfter(ctx context.Context, op string) {
	if s.factors == nil {
		return
	}
	if err := s.factors.Refresh(ctx); err != nil {
		if s.log != nil {
			s.log.Warn("factor refresh failed", "after", op, "error", err)
		}
		return
	}
	s.scheduler.Trigger(ReasonFactors)
}
