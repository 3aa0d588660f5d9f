package memory

import (
	"context"
	"errors"
	"testing"

	"lattice/backend/domain"
	"lattice/backend/repository"
)

func TestNodeGroupRepo_CRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore(nil)
	repo := NewNodeGroupRepo(store)

	created, err := repo.Create(ctx, domain.NodeGroup{
		Tag:             " hk ",
		Name:            "Hong Kong",
		Mode:            domain.NodeGroupModeURLTest,
		IncludePatterns: []string{"HK", " ", "HK", "香港", "x0\\.1 "},
		Active:          true,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected id to be set")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatalf("expected createdAt/updatedAt to be set")
	}
	if created.Tag != "hk" {
		t.Fatalf("expected trimmed tag, got %q", created.Tag)
	}
	if len(created.IncludePatterns) != 3 || created.IncludePatterns[0] != "HK" || created.IncludePatterns[1] != "香港" || created.IncludePatterns[2] != "x0\\.1 " {
		t.Fatalf("expected patterns normalized, got %+v", created.IncludePatterns)
	}

	updated, err := repo.Update(ctx, created.ID, domain.NodeGroup{
		Tag:    "hk",
		Name:   "HK renamed",
		Mode:   domain.NodeGroupModeSelect,
		Active: true,
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.Name != "HK renamed" || updated.Mode != domain.NodeGroupModeSelect {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("expected CreatedAt preserved")
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("expected list to contain created group")
	}

	if err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := repo.Get(ctx, created.ID); !errors.Is(err, repository.ErrNodeGroupNotFound) {
		t.Fatalf("expected ErrNodeGroupNotFound, got %v", err)
	}
}

func TestNodeGroupRepo_TagUniqueAmongActive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewNodeGroupRepo(NewStore(nil))

	if _, err := repo.Create(ctx, domain.NodeGroup{Tag: "us", Name: "US", Mode: domain.NodeGroupModeSelect, Active: true}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := repo.Create(ctx, domain.NodeGroup{Tag: "us", Name: "US 2", Mode: domain.NodeGroupModeSelect, Active: true}); !errors.Is(err, repository.ErrNodeGroupTagTaken) {
		t.Fatalf("expected ErrNodeGroupTagTaken, got %v", err)
	}

	inactive, err := repo.Create(ctx, domain.NodeGroup{Tag: "us", Name: "US draft", Mode: domain.NodeGroupModeSelect})
	if err != nil {
		t.Fatalf("expected inactive duplicate to be allowed, got %v", err)
	}
	inactive.Active = true
	if _, err := repo.Update(ctx, inactive.ID, inactive); !errors.Is(err, repository.ErrNodeGroupTagTaken) {
		t.Fatalf("expected activation to conflict, got %v", err)
	}
}

func TestNodeGroupRepo_UnknownManualMember(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewNodeGroupRepo(NewStore(nil))

	_, err := repo.Create(ctx, domain.NodeGroup{
		Tag: "x", Name: "x", Mode: domain.NodeGroupModeSelect, NodeIDs: []string{"ghost"},
	})
	if !errors.Is(err, repository.ErrReference) {
		t.Fatalf("expected ErrReference, got %v", err)
	}
}
