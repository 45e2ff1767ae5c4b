package cart

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

// ErrStaleRender возвращается, когда результат render устарел: за время
// асинхронных запросов успел стартовать более новый render.
var ErrStaleRender = errors.New("render superseded by a newer one")

// Line — разрешённая позиция корзины: запись плюс снимок товара.
// Никогда не сохраняется, живёт только в пределах одного render.
type Line struct {
	Entry   Entry
	Product domain.Product
}

// View — консистентный снимок корзины после сверки с каталогом.
type View struct {
	Lines []Line
	// TotalCents — сумма по всем позициям в центах.
	TotalCents int64
	// Total — отформатированная сумма, "$0.00" для пустой корзины.
	Total string
	// TotalQuantity — суммарное количество единиц в разрешённых позициях.
	TotalQuantity int
}

// Update — уведомление "корзина изменилась" для независимых фрагментов UI.
type Update struct {
	LineCount     int
	TotalQuantity int
}

// Listener получает уведомления об изменениях корзины.
type Listener interface {
	CartUpdated(Update)
}

// ListenerFunc адаптирует функцию к интерфейсу Listener.
type ListenerFunc func(Update)

// CartUpdated вызывает f.
func (f ListenerFunc) CartUpdated(u Update) { f(u) }

// fetchEntry — запись кэша товарных запросов: закрытый done означает,
// что product/err заполнены.
type fetchEntry struct {
	done    chan struct{}
	product domain.Product
	err     error
}

// Reconciler сверяет локальную корзину с актуальными данными каталога.
// Каждому render присваивается монотонно растущая версия: результат
// устаревшего render отбрасывается без уведомлений (last-request-wins).
type Reconciler struct {
	store   *Store
	fetcher domain.ProductFetcher
	logger  *log.Entry
	metrics *metrics.CartMetrics

	version atomic.Int64

	// commitMu сериализует фиксацию снимков: проверка версии, запись
	// lastView и уведомления идут одной критической секцией, иначе
	// отставший render может затереть более новый снимок между
	// проверкой и записью.
	commitMu sync.Mutex

	cacheMu sync.Mutex
	cache   map[int64]*fetchEntry

	listenersMu sync.RWMutex
	listeners   []Listener

	viewMu   sync.RWMutex
	lastView View
}

// NewReconciler создаёт reconciler поверх корзины и источника товаров.
func NewReconciler(store *Store, fetcher domain.ProductFetcher, logger *log.Entry) *Reconciler {
	if logger == nil {
		logger = log.WithField("component", "cart-reconciler")
	}
	return &Reconciler{
		store:   store,
		fetcher: fetcher,
		logger:  logger,
		metrics: metrics.NewCartMetrics(),
		cache:   make(map[int64]*fetchEntry),
	}
}

// Subscribe регистрирует получателя уведомлений "корзина изменилась".
func (r *Reconciler) Subscribe(listener Listener) {
	if listener == nil {
		return
	}
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, listener)
}

// View возвращает последний принятый снимок корзины.
func (r *Reconciler) View() View {
	r.viewMu.RLock()
	defer r.viewMu.RUnlock()
	return r.lastView
}

// Render сверяет корзину с каталогом и возвращает консистентный снимок.
// Позиции, для которых товар не найден или запрос завершился ошибкой,
// удаляются из корзины и сохраняются немедленно. Если к моменту завершения
// запросов стартовал более новый render, возвращается ErrStaleRender и
// ни lastView, ни подписчики не трогаются.
func (r *Reconciler) Render(ctx context.Context) (View, error) {
	version := r.version.Add(1)
	entries := r.store.Entries()

	if len(entries) == 0 {
		view := View{Lines: []Line{}, Total: domain.FormatMoney(0)}
		return r.commit(version, view)
	}

	lines := make([]Line, len(entries))
	missing := make([]bool, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range entries {
		g.Go(func() error {
			product, err := r.fetchCached(gctx, entry.ProductID)
			if err != nil {
				// Удалённый товар и сетевой сбой лечатся одинаково:
				// позиция выбывает, следующий render попробует заново.
				if !domain.IsNotFound(err) {
					r.logger.WithError(err).WithField("product_id", entry.ProductID).
						Warn("product fetch failed, dropping cart entry")
				}
				missing[i] = true
				return nil
			}
			lines[i] = Line{Entry: entry, Product: product}
			return nil
		})
	}
	// Ошибки наружу не выходят: каждая горутина возвращает nil.
	_ = g.Wait()

	var droppedIDs []int64
	resolved := make([]Line, 0, len(entries))
	for i, entry := range entries {
		if missing[i] {
			droppedIDs = append(droppedIDs, entry.ProductID)
			continue
		}
		resolved = append(resolved, lines[i])
	}

	if len(droppedIDs) > 0 {
		r.store.RemoveMissing(ctx, droppedIDs)
		r.metrics.RecordDroppedEntries(len(droppedIDs))
	}

	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].Entry.ProductID < resolved[j].Entry.ProductID
	})

	var totalCents int64
	totalQty := 0
	for _, line := range resolved {
		price := line.Product.PriceCents
		if price < 0 {
			price = 0
		}
		totalCents += price * int64(line.Entry.Quantity)
		totalQty += line.Entry.Quantity
	}

	view := View{
		Lines:         resolved,
		TotalCents:    totalCents,
		Total:         domain.FormatMoney(totalCents),
		TotalQuantity: totalQty,
	}
	return r.commit(version, view)
}

// SetQuantity меняет количество и запускает свежий render.
func (r *Reconciler) SetQuantity(ctx context.Context, productID int64, quantity int) (View, error) {
	r.store.SetQuantity(ctx, productID, quantity)
	return r.Render(ctx)
}

// AddItem добавляет товар и запускает свежий render.
func (r *Reconciler) AddItem(ctx context.Context, productID int64, delta int) (View, error) {
	r.store.AddItem(ctx, productID, delta)
	return r.Render(ctx)
}

// RemoveItem удаляет товар и запускает свежий render.
func (r *Reconciler) RemoveItem(ctx context.Context, productID int64) (View, error) {
	r.store.RemoveItem(ctx, productID)
	return r.Render(ctx)
}

// commit фиксирует снимок, если версия всё ещё последняя, и шлёт уведомления.
// Проверка версии и запись выполняются под commitMu: более новый render,
// начавший commit, не может быть перезаписан отставшим.
func (r *Reconciler) commit(version int64, view View) (View, error) {
	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	if r.version.Load() != version {
		r.metrics.RecordStaleRender()
		return View{}, ErrStaleRender
	}

	r.viewMu.Lock()
	r.lastView = view
	r.viewMu.Unlock()

	r.metrics.RecordRender()
	r.notify(Update{LineCount: len(view.Lines), TotalQuantity: view.TotalQuantity})
	return view, nil
}

func (r *Reconciler) notify(update Update) {
	r.listenersMu.RLock()
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener.CartUpdated(update)
	}
}

// fetchCached возвращает товар из кэша или выполняет запрос, дедуплицируя
// параллельные обращения к одному productID. Неудачный запрос вычищает
// свою запись, чтобы следующий render мог повторить попытку.
func (r *Reconciler) fetchCached(ctx context.Context, productID int64) (domain.Product, error) {
	r.cacheMu.Lock()
	if entry, ok := r.cache[productID]; ok {
		r.cacheMu.Unlock()
		select {
		case <-entry.done:
			return entry.product, entry.err
		case <-ctx.Done():
			return domain.Product{}, ctx.Err()
		}
	}

	entry := &fetchEntry{done: make(chan struct{})}
	r.cache[productID] = entry
	r.cacheMu.Unlock()

	entry.product, entry.err = r.fetcher.Fetch(ctx, productID)
	close(entry.done)

	if entry.err != nil {
		r.cacheMu.Lock()
		delete(r.cache, productID)
		r.cacheMu.Unlock()
	}

	return entry.product, entry.err
}

// InvalidateCache сбрасывает кэш товарных запросов (например, после
// уведомления об изменении каталога).
func (r *Reconciler) InvalidateCache() {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	r.cache = make(map[int64]*fetchEntry)
}
