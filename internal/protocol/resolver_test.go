package protocol

import (
	"context"
	stdErrors "errors"
	"testing"

	"github.com/NectaFi/necta-agents/internal/chain"
	xerrors "github.com/NectaFi/necta-agents/internal/errors"
	"github.com/NectaFi/necta-agents/internal/market"
)

type fakeMarket struct {
	snapshot market.Snapshot
	calls    int
}

func (f *fakeMarket) GetMarketData(context.Context, string) (market.Snapshot, error) {
	f.calls++
	return f.snapshot, nil
}

const aavePool = "0x0595D1Df64279ddB51F1bdC405Fe2D0b4Cc86681"

func baseDefinition() chain.Definition {
	return chain.Definition{
		ChainID:   8453,
		Name:      "base",
		Protocols: map[string]string{"aave": aavePool},
	}
}

func TestResolvePrefersExactMatch(t *testing.T) {
	source := &fakeMarket{snapshot: market.Snapshot{Tokens: []market.YieldOpportunity{
		{Name: "Aave USDC", Address: ""},
		{Name: "Aave", Address: "0x2222222222222222222222222222222222222222"},
	}}}
	resolver := NewResolver(source, baseDefinition())

	res, err := resolver.Resolve(context.Background(), "Aave", "USDC")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Opportunity.Name != "Aave" {
		t.Fatalf("expected exact match, got %q", res.Opportunity.Name)
	}
	if res.Address.Hex() != "0x2222222222222222222222222222222222222222" {
		t.Fatalf("expected opportunity address used directly, got %s", res.Address.Hex())
	}
}

func TestResolveFallsBackToSubstringAndStaticTable(t *testing.T) {
	source := &fakeMarket{snapshot: market.Snapshot{Tokens: []market.YieldOpportunity{
		{Name: "Aave USDC", Address: "aave-v3-lending"},
	}}}
	resolver := NewResolver(source, baseDefinition())

	res, err := resolver.Resolve(context.Background(), "aave", "USDC")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Address.Hex() != aavePool {
		t.Fatalf("expected static table address, got %s", res.Address.Hex())
	}
}

func TestResolveMemoizesPerResolver(t *testing.T) {
	source := &fakeMarket{snapshot: market.Snapshot{Tokens: []market.YieldOpportunity{
		{Name: "Aave USDC", Address: ""},
	}}}
	resolver := NewResolver(source, baseDefinition())

	for i := 0; i < 3; i++ {
		if _, err := resolver.Resolve(context.Background(), "Aave", "USDC"); err != nil {
			t.Fatalf("resolve #%d: %v", i, err)
		}
	}
	if source.calls != 1 {
		t.Fatalf("expected a single market fetch, got %d", source.calls)
	}
}

func TestResolveNotFound(t *testing.T) {
	source := &fakeMarket{snapshot: market.Snapshot{Tokens: []market.YieldOpportunity{
		{Name: "Compound USDC", Address: ""},
	}}}
	resolver := NewResolver(source, baseDefinition())

	_, err := resolver.Resolve(context.Background(), "morpho", "USDC")
	if !stdErrors.Is(err, xerrors.New(xerrors.CodeProtocolNotFound, "")) {
		t.Fatalf("expected PROTOCOL_NOT_FOUND, got %v", err)
	}
}

func TestResolveAddressResolutionFailure(t *testing.T) {
	source := &fakeMarket{snapshot: market.Snapshot{Tokens: []market.YieldOpportunity{
		{Name: "Morpho USDC", Address: "morpho-blue"},
	}}}
	resolver := NewResolver(source, baseDefinition())

	_, err := resolver.Resolve(context.Background(), "morpho", "USDC")
	if !stdErrors.Is(err, xerrors.New(xerrors.CodeAddressResolution, "")) {
		t.Fatalf("expected ADDRESS_RESOLUTION_FAILED, got %v", err)
	}
}
