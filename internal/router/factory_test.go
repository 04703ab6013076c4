package router

import (
	"context"
	"testing"

	"raptor/internal/models"
)

type stubRouter struct {
	name    string
	handles func(Intent) bool
}

func (s *stubRouter) Name() string                { return s.name }
func (s *stubRouter) CanHandle(i Intent) bool      { return s.handles(i) }
func (s *stubRouter) Quote(context.Context, Intent) (*SwapQuote, error) { return nil, nil }
func (s *stubRouter) BuildTx(context.Context, *SwapQuote, Intent) (*UnsignedTx, error) {
	return nil, nil
}
func (s *stubRouter) Execute(context.Context, *UnsignedTx, Intent, Signer, ExecuteOptions) (*SwapResult, error) {
	return nil, nil
}

func TestFactorySelectsBondingCurveForPreGraduation(t *testing.T) {
	bc := &stubRouter{name: "bonding_curve", handles: func(i Intent) bool { return i.LifecycleState == models.LifecyclePreGraduation }}
	agg := &stubRouter{name: "aggregator", handles: func(Intent) bool { return true }}

	f := NewFactory(bc, agg)
	got := f.Select(Intent{LifecycleState: models.LifecyclePreGraduation})
	if got.Name() != "bonding_curve" {
		t.Errorf("expected bonding_curve, got %s", got.Name())
	}
}

func TestFactoryFallsThroughToAggregator(t *testing.T) {
	bc := &stubRouter{name: "bonding_curve", handles: func(i Intent) bool { return i.LifecycleState == models.LifecyclePreGraduation }}
	agg := &stubRouter{name: "aggregator", handles: func(Intent) bool { return true }}

	f := NewFactory(bc, agg)
	got := f.Select(Intent{LifecycleState: models.LifecyclePostGraduation})
	if got.Name() != "aggregator" {
		t.Errorf("expected aggregator, got %s", got.Name())
	}
}
