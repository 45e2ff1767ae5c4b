package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestCategoryRepository_CreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewCategoryRepository(NewProductRepository())

	books, err := repo.Create(ctx, "Books")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if books.ID != 1 {
		t.Fatalf("expected first id 1, got %d", books.ID)
	}

	if _, err := repo.Create(ctx, "Music"); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := repo.Create(ctx, "Books"); !errors.Is(err, domain.ErrCategoryNameTaken) {
		t.Fatalf("expected ErrCategoryNameTaken, got %v", err)
	}

	categories, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(categories))
	}
	if categories[0].Name != "Books" || categories[1].Name != "Music" {
		t.Fatalf("unexpected ordering: %+v", categories)
	}
}

func TestCategoryRepository_Rename(t *testing.T) {
	ctx := context.Background()
	repo := NewCategoryRepository(NewProductRepository())

	books, _ := repo.Create(ctx, "Books")
	music, _ := repo.Create(ctx, "Music")

	renamed, err := repo.Rename(ctx, books.ID, "Paper Books")
	if err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if renamed.Name != "Paper Books" {
		t.Fatalf("unexpected name: %s", renamed.Name)
	}

	if _, err := repo.Rename(ctx, music.ID, "Paper Books"); !errors.Is(err, domain.ErrCategoryNameTaken) {
		t.Fatalf("expected ErrCategoryNameTaken, got %v", err)
	}
	// Переименование в собственное имя — no-op без конфликта.
	if _, err := repo.Rename(ctx, music.ID, "Music"); err != nil {
		t.Fatalf("self rename failed: %v", err)
	}
	if _, err := repo.Rename(ctx, 99, "Ghost"); !errors.Is(err, domain.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestCategoryRepository_DeleteRestrictedByProducts(t *testing.T) {
	ctx := context.Background()
	products := NewProductRepository()
	repo := NewCategoryRepository(products)

	books, _ := repo.Create(ctx, "Books")
	if _, err := products.Create(ctx, domain.ProductInput{CategoryID: books.ID, Name: "Atlas", PriceCents: 1000}); err != nil {
		t.Fatalf("create product failed: %v", err)
	}

	if err := repo.Delete(ctx, books.ID); !errors.Is(err, domain.ErrCategoryInUse) {
		t.Fatalf("expected ErrCategoryInUse, got %v", err)
	}
	if err := repo.Delete(ctx, 99); !errors.Is(err, domain.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}

	productList, _ := products.List(ctx, books.ID)
	if err := products.Delete(ctx, productList[0].ID); err != nil {
		t.Fatalf("delete product failed: %v", err)
	}
	if err := repo.Delete(ctx, books.ID); err != nil {
		t.Fatalf("delete failed after products removed: %v", err)
	}

	ok, err := repo.Exists(ctx, books.ID)
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if ok {
		t.Fatal("category must not exist after delete")
	}
}
