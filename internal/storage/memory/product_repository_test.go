package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestProductRepository_CreateGetDenormalizesCategory(t *testing.T) {
	ctx := context.Background()
	products := NewProductRepository()
	categories := NewCategoryRepository(products)

	books, _ := categories.Create(ctx, "Books")

	created, err := products.Create(ctx, domain.ProductInput{
		CategoryID:  books.ID,
		Name:        "Atlas",
		PriceCents:  4550,
		Description: "World maps",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID != 1 {
		t.Fatalf("expected first id 1, got %d", created.ID)
	}
	if created.CategoryName != "Books" {
		t.Fatalf("expected denormalized category name, got %q", created.CategoryName)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}

	got, err := products.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.PriceCents != 4550 || got.CategoryName != "Books" {
		t.Fatalf("unexpected product: %+v", got)
	}

	if _, err := products.Get(ctx, 99); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestProductRepository_ListFiltersByCategory(t *testing.T) {
	ctx := context.Background()
	products := NewProductRepository()
	categories := NewCategoryRepository(products)

	books, _ := categories.Create(ctx, "Books")
	music, _ := categories.Create(ctx, "Music")

	_, _ = products.Create(ctx, domain.ProductInput{CategoryID: books.ID, Name: "Atlas", PriceCents: 1000})
	_, _ = products.Create(ctx, domain.ProductInput{CategoryID: music.ID, Name: "Vinyl", PriceCents: 2000})
	_, _ = products.Create(ctx, domain.ProductInput{CategoryID: books.ID, Name: "Almanac", PriceCents: 1500})

	all, err := products.List(ctx, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 products, got %d", len(all))
	}
	if all[0].ID > all[1].ID || all[1].ID > all[2].ID {
		t.Fatalf("expected ordering by id: %+v", all)
	}

	inBooks, err := products.List(ctx, books.ID)
	if err != nil {
		t.Fatalf("filtered list failed: %v", err)
	}
	if len(inBooks) != 2 {
		t.Fatalf("expected 2 products in category, got %d", len(inBooks))
	}
	for _, p := range inBooks {
		if p.CategoryID != books.ID {
			t.Fatalf("wrong category in filtered list: %+v", p)
		}
	}
}

func TestProductRepository_UpdateAndImagePaths(t *testing.T) {
	ctx := context.Background()
	products := NewProductRepository()
	categories := NewCategoryRepository(products)

	books, _ := categories.Create(ctx, "Books")
	created, _ := products.Create(ctx, domain.ProductInput{CategoryID: books.ID, Name: "Atlas", PriceCents: 1000})

	updated, err := products.Update(ctx, created.ID, domain.ProductInput{
		CategoryID: books.ID,
		Name:       "Atlas 2nd ed.",
		PriceCents: 1200,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Name != "Atlas 2nd ed." || updated.PriceCents != 1200 {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	if err := products.SetImagePaths(ctx, created.ID, "/uploads/original/1_original.jpg", "/uploads/thumb/1_thumb.jpg"); err != nil {
		t.Fatalf("set image paths failed: %v", err)
	}
	got, _ := products.Get(ctx, created.ID)
	if got.ImagePath != "/uploads/original/1_original.jpg" || got.ThumbPath != "/uploads/thumb/1_thumb.jpg" {
		t.Fatalf("image paths not persisted: %+v", got)
	}
	// Update не должен стирать пути изображений.
	if got.Name != "Atlas 2nd ed." {
		t.Fatalf("update result lost: %+v", got)
	}

	if _, err := products.Update(ctx, 99, domain.ProductInput{}); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if err := products.SetImagePaths(ctx, 99, "a", "b"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestProductRepository_Delete(t *testing.T) {
	ctx := context.Background()
	products := NewProductRepository()

	created, _ := products.Create(ctx, domain.ProductInput{CategoryID: 1, Name: "Atlas", PriceCents: 1000})

	if err := products.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := products.Delete(ctx, created.ID); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}
