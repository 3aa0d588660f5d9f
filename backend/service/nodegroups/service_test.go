package nodegroups

import (
	"context"
	"errors"
	"testing"

	"lattice/backend/domain"
	"lattice/backend/repository"
	"lattice/backend/repository/memory"
	"lattice/backend/service/shared"
)

func newTestService(t *testing.T) (*Service, *memory.NodeRepo) {
	t.Helper()
	store := memory.NewStore(nil)
	nodes := memory.NewNodeRepo(store)
	return NewService(memory.NewNodeGroupRepo(store), nodes, nil), nodes
}

func TestService_CreateValidates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Create(ctx, domain.NodeGroup{
		Tag:             "direct",
		Name:            "",
		Mode:            "roundrobin",
		IncludePatterns: []string{"HK("},
		ExcludePatterns: []string{"[bad"},
	})
	var verr *shared.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	// name, mode, reserved tag, two patterns
	if len(verr.Problems) != 5 {
		t.Fatalf("expected 5 problems, got %d: %v", len(verr.Problems), verr.Problems)
	}
}

func TestService_UpdateAndResolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, nodes := newTestService(t)
	for _, name := range []string{"HK-01", "JP-01", "HK-02 Test"} {
		if _, err := nodes.Create(ctx, domain.Node{Name: name, Protocol: domain.ProtocolTrojan}); err != nil {
			t.Fatalf("Create node: %v", err)
		}
	}

	group, err := svc.Create(ctx, domain.NodeGroup{
		Tag: " hk ", Name: "Hong Kong", Mode: domain.NodeGroupModeSelect,
		IncludePatterns: []string{"hk", "  ", ""}, Active: true,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if group.Tag != "hk" || len(group.IncludePatterns) != 1 || group.IncludePatterns[0] != "hk" {
		t.Fatalf("expected normalized group, got %+v", group)
	}

	res, err := svc.Resolve(ctx, group.ID)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(res.Members) != 2 {
		t.Fatalf("expected 2 members, got %v", res.Members)
	}

	if _, err := svc.Update(ctx, group.ID, func(g domain.NodeGroup) (domain.NodeGroup, error) {
		g.ExcludePatterns = []string{"(?i)test"}
		return g, nil
	}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	res, _ = svc.Resolve(ctx, group.ID)
	if len(res.Members) != 1 {
		t.Fatalf("expected exclude applied, got %v", res.Members)
	}

	if _, err := svc.Update(ctx, group.ID, func(g domain.NodeGroup) (domain.NodeGroup, error) {
		g.IncludePatterns = []string{"("}
		return g, nil
	}); !errors.Is(err, repository.ErrInvalidData) {
		t.Fatalf("expected invalid pattern rejected, got %v", err)
	}
	if _, err := svc.Resolve(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_PatternWhitespaceIsSignificant(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, nodes := newTestService(t)
	for _, name := range []string{"HK-01", "Premium HK"} {
		if _, err := nodes.Create(ctx, domain.Node{Name: name, Protocol: domain.ProtocolTrojan}); err != nil {
			t.Fatalf("Create node: %v", err)
		}
	}

	group, err := svc.Create(ctx, domain.NodeGroup{
		Tag: "hk", Name: "HK", Mode: domain.NodeGroupModeSelect,
		IncludePatterns: []string{" HK"}, Active: true,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if len(group.IncludePatterns) != 1 || group.IncludePatterns[0] != " HK" {
		t.Fatalf("expected pattern stored unchanged, got %q", group.IncludePatterns)
	}
	res, err := svc.Resolve(ctx, group.ID)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if len(res.Members) != 1 {
		t.Fatalf("expected only the name with a leading space before HK, got %v", res.Members)
	}
}
