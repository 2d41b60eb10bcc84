package board

import (
	"context"
	"errors"
	"testing"

	"github.com/etow/task-tracker/domain"
)

func TestRegistryLoadsBoardOnce(t *testing.T) {
	var fetches int
	factory := func(userID string) Repositories {
		return Repositories{
			Tasks: &stubTaskRepo{tasksFn: func(ctx context.Context) ([]domain.Task, error) {
				fetches++
				return plannedTasks(), nil
			}},
			Categories: &stubCategoryRepo{categories: testCategories},
		}
	}
	registry := NewRegistry(factory)

	first, err := registry.Board(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	second, err := registry.Board(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if first != second {
		t.Fatal("expected the same store instance per user")
	}
	if fetches != 1 {
		t.Fatalf("expected a single initial task fetch, got %d", fetches)
	}
	if got := first.Tasks("Planned"); len(got) != 3 {
		t.Fatalf("board not loaded: %#v", got)
	}
}

func TestRegistrySeparatesUsers(t *testing.T) {
	factory := func(userID string) Repositories {
		return Repositories{
			Tasks:      &stubTaskRepo{},
			Categories: &stubCategoryRepo{categories: testCategories},
		}
	}
	registry := NewRegistry(factory)

	a, err := registry.Board(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	b, err := registry.Board(context.Background(), "user-b")
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct stores per user")
	}
}

func TestRegistryDoesNotCacheFailedLoad(t *testing.T) {
	fail := true
	factory := func(userID string) Repositories {
		return Repositories{
			Tasks: &stubTaskRepo{},
			Categories: &stubCategoryRepo{categories: testCategories, err: func() error {
				if fail {
					return errors.New("collection not found")
				}
				return nil
			}()},
		}
	}
	registry := NewRegistry(factory)

	if _, err := registry.Board(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error")
	}
	fail = false
	if _, err := registry.Board(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}
