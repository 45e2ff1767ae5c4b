package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

type stubFetcher struct {
	mu       sync.Mutex
	products map[int64]domain.Product
	errs     map[int64]error
	calls    map[int64]int

	// blockOn заставляет Fetch ждать закрытия канала; started сигналит о входе.
	blockOn map[int64]chan struct{}
	started chan int64
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		products: make(map[int64]domain.Product),
		errs:     make(map[int64]error),
		calls:    make(map[int64]int),
		blockOn:  make(map[int64]chan struct{}),
	}
}

func (f *stubFetcher) add(id int64, priceCents int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[id] = domain.Product{ID: id, Name: "product", PriceCents: priceCents}
}

func (f *stubFetcher) Fetch(ctx context.Context, id int64) (domain.Product, error) {
	f.mu.Lock()
	f.calls[id]++
	gate := f.blockOn[id]
	err := f.errs[id]
	product, ok := f.products[id]
	f.mu.Unlock()

	if f.started != nil {
		f.started <- id
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Product{}, ctx.Err()
		}
	}

	if err != nil {
		return domain.Product{}, err
	}
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (f *stubFetcher) callCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func newTestReconciler(t *testing.T) (*Reconciler, *Store, *stubFetcher, domain.CartStorage) {
	t.Helper()
	storage := memory.NewCartStorage()
	store := NewStore(storage, nil)
	fetcher := newStubFetcher()
	return NewReconciler(store, fetcher, nil), store, fetcher, storage
}

func TestRenderTotals(t *testing.T) {
	ctx := context.Background()
	r, store, fetcher, _ := newTestReconciler(t)

	fetcher.add(3, 2000)
	store.SetQuantity(ctx, 3, 2)

	view, err := r.Render(ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if view.Total != "$40.00" {
		t.Fatalf("total = %s, want $40.00", view.Total)
	}
	if view.TotalCents != 4000 {
		t.Fatalf("total cents = %d, want 4000", view.TotalCents)
	}
	if view.TotalQuantity != 2 {
		t.Fatalf("total quantity = %d, want 2", view.TotalQuantity)
	}
}

func TestRenderEmptyCart(t *testing.T) {
	ctx := context.Background()
	r, _, _, _ := newTestReconciler(t)

	view, err := r.Render(ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(view.Lines) != 0 {
		t.Fatalf("lines = %v, want empty", view.Lines)
	}
	if view.Total != "$0.00" {
		t.Fatalf("total = %s, want $0.00", view.Total)
	}
}

func TestRenderDropsMissingAndPersists(t *testing.T) {
	ctx := context.Background()
	r, store, fetcher, storage := newTestReconciler(t)

	fetcher.add(5, 1000)
	store.SetQuantity(ctx, 5, 2)
	store.SetQuantity(ctx, 9, 1)

	view, err := r.Render(ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(view.Lines) != 1 || view.Lines[0].Entry.ProductID != 5 {
		t.Fatalf("lines = %v, want single line for product 5", view.Lines)
	}
	if view.TotalQuantity != 2 {
		t.Fatalf("total quantity = %d, want 2", view.TotalQuantity)
	}

	raw, err := storage.Load(ctx)
	if err != nil {
		t.Fatalf("load persisted state: %v", err)
	}
	var persisted map[string]int
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("unmarshal persisted state: %v", err)
	}
	if len(persisted) != 1 || persisted["5"] != 2 {
		t.Fatalf("persisted state = %v, want {5:2}", persisted)
	}
}

func TestRenderDropsOnFetchError(t *testing.T) {
	ctx := context.Background()
	r, store, fetcher, _ := newTestReconciler(t)

	fetcher.add(1, 500)
	fetcher.mu.Lock()
	fetcher.errs[2] = errors.New("catalog unavailable")
	fetcher.mu.Unlock()

	store.SetQuantity(ctx, 1, 1)
	store.SetQuantity(ctx, 2, 1)

	view, err := r.Render(ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(view.Lines) != 1 || view.Lines[0].Entry.ProductID != 1 {
		t.Fatalf("lines = %v, want single line for product 1", view.Lines)
	}
	if store.Quantity(2) != 0 {
		t.Fatal("failed entry not removed from cart")
	}
}

func TestRenderLinesSortedByProductID(t *testing.T) {
	ctx := context.Background()
	r, store, fetcher, _ := newTestReconciler(t)

	for _, id := range []int64{8, 2, 5} {
		fetcher.add(id, 100)
		store.SetQuantity(ctx, id, 1)
	}

	view, err := r.Render(ctx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := []int64{2, 5, 8}
	if len(view.Lines) != len(want) {
		t.Fatalf("lines = %v, want 3", view.Lines)
	}
	for i, id := range want {
		if view.Lines[i].Entry.ProductID != id {
			t.Fatalf("lines[%d].ProductID = %d, want %d", i, view.Lines[i].Entry.ProductID, id)
		}
	}
}

func TestRenderNotifiesListeners(t *testing.T) {
	ctx := context.Background()
	r, store, fetcher, _ := newTestReconciler(t)

	fetcher.add(4, 100)

	var mu sync.Mutex
	var updates []Update
	r.Subscribe(ListenerFunc(func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	}))

	store.SetQuantity(ctx, 4, 3)
	if _, err := r.Render(ctx); err != nil {
		t.Fatalf("render: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(updates) != 1 {
		t.Fatalf("updates = %v, want exactly one", updates)
	}
	if updates[0].LineCount != 1 || updates[0].TotalQuantity != 3 {
		t.Fatalf("update = %+v, want {LineCount:1 TotalQuantity:3}", updates[0])
	}
}

func TestRenderStaleDiscarded(t *testing.T) {
	ctx := context.Background()
	r, store, fetcher, _ := newTestReconciler(t)

	release := make(chan struct{})
	fetcher.add(1, 100)
	fetcher.add(2, 250)
	fetcher.mu.Lock()
	fetcher.blockOn[1] = release
	fetcher.mu.Unlock()
	fetcher.started = make(chan int64, 4)

	var notified int
	var mu sync.Mutex
	r.Subscribe(ListenerFunc(func(Update) {
		mu.Lock()
		notified++
		mu.Unlock()
	}))

	store.SetQuantity(ctx, 1, 1)

	type result struct {
		view View
		err  error
	}
	firstDone := make(chan result, 1)
	go func() {
		view, err := r.Render(ctx)
		firstDone <- result{view, err}
	}()

	// ждём входа первого render в fetch товара 1
	select {
	case <-fetcher.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first render never reached fetcher")
	}

	// пока первый render завис, корзина меняется и стартует новый render
	store.RemoveItem(ctx, 1)
	store.SetQuantity(ctx, 2, 1)

	second, err := r.Render(ctx)
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if second.Total != "$2.50" {
		t.Fatalf("second total = %s, want $2.50", second.Total)
	}

	close(release)

	select {
	case first := <-firstDone:
		if !errors.Is(first.err, ErrStaleRender) {
			t.Fatalf("first render error = %v, want ErrStaleRender", first.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first render never finished")
	}

	// зафиксированный снимок принадлежит второму render
	if got := r.View(); got.Total != "$2.50" {
		t.Fatalf("last view total = %s, want $2.50", got.Total)
	}
	mu.Lock()
	defer mu.Unlock()
	if notified != 1 {
		t.Fatalf("notifications = %d, want 1 (stale render must stay silent)", notified)
	}
}

func TestRenderConcurrentCommitsKeepLatest(t *testing.T) {
	ctx := context.Background()
	r, _, fetcher, _ := newTestReconciler(t)

	const items = 8
	for id := int64(1); id <= items; id++ {
		fetcher.add(id, 100)
	}

	var mu sync.Mutex
	var updates []Update
	r.Subscribe(ListenerFunc(func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for id := int64(1); id <= items; id++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.AddItem(ctx, id, 1); err != nil && !errors.Is(err, ErrStaleRender) {
				t.Errorf("add item %d: %v", id, err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(updates) == 0 {
		t.Fatal("no renders committed")
	}

	// корзина только росла, поэтому уведомления зафиксированных render
	// не могут идти с убывающим количеством
	for i := 1; i < len(updates); i++ {
		if updates[i].TotalQuantity < updates[i-1].TotalQuantity {
			t.Fatalf("updates out of order: %+v after %+v", updates[i], updates[i-1])
		}
	}

	// итоговый снимок совпадает с последним уведомлением
	last := updates[len(updates)-1]
	view := r.View()
	if view.TotalQuantity != last.TotalQuantity || len(view.Lines) != last.LineCount {
		t.Fatalf("last view %+v diverges from final update %+v", view, last)
	}
}

func TestFetchCacheDedupesAndRetriesAfterError(t *testing.T) {
	ctx := context.Background()
	r, store, fetcher, _ := newTestReconciler(t)

	fetcher.add(6, 100)
	store.SetQuantity(ctx, 6, 1)

	if _, err := r.Render(ctx); err != nil {
		t.Fatalf("first render: %v", err)
	}
	if _, err := r.Render(ctx); err != nil {
		t.Fatalf("second render: %v", err)
	}
	if got := fetcher.callCount(6); got != 1 {
		t.Fatalf("fetch calls = %d, want 1 (cached)", got)
	}

	r.InvalidateCache()
	if _, err := r.Render(ctx); err != nil {
		t.Fatalf("render after invalidate: %v", err)
	}
	if got := fetcher.callCount(6); got != 2 {
		t.Fatalf("fetch calls = %d, want 2 after invalidate", got)
	}
}

func TestFetchCacheEvictsFailedEntry(t *testing.T) {
	ctx := context.Background()
	r, store, fetcher, _ := newTestReconciler(t)

	fetcher.mu.Lock()
	fetcher.errs[9] = errors.New("temporary failure")
	fetcher.mu.Unlock()
	store.SetQuantity(ctx, 9, 1)

	if _, err := r.Render(ctx); err != nil {
		t.Fatalf("first render: %v", err)
	}

	// сбой вычищает запись кэша; после восстановления товар резолвится заново
	fetcher.mu.Lock()
	delete(fetcher.errs, 9)
	fetcher.mu.Unlock()
	fetcher.add(9, 300)
	store.SetQuantity(ctx, 9, 1)

	view, err := r.Render(ctx)
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if len(view.Lines) != 1 || view.Lines[0].Product.PriceCents != 300 {
		t.Fatalf("lines = %v, want recovered product 9", view.Lines)
	}
	if got := fetcher.callCount(9); got != 2 {
		t.Fatalf("fetch calls = %d, want 2", got)
	}
}

func TestReconcilerMutationsRender(t *testing.T) {
	ctx := context.Background()
	r, _, fetcher, _ := newTestReconciler(t)

	fetcher.add(2, 1500)

	view, err := r.AddItem(ctx, 2, 2)
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if view.Total != "$30.00" {
		t.Fatalf("total after add = %s, want $30.00", view.Total)
	}

	view, err = r.SetQuantity(ctx, 2, 1)
	if err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if view.Total != "$15.00" {
		t.Fatalf("total after set = %s, want $15.00", view.Total)
	}

	view, err = r.RemoveItem(ctx, 2)
	if err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if len(view.Lines) != 0 || view.Total != "$0.00" {
		t.Fatalf("view after remove = %+v, want empty", view)
	}
}
