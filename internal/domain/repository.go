package domain

import "context"

// CategoryRepository описывает требования к хранилищу категорий.
type CategoryRepository interface {
	// List возвращает все категории, упорядоченные по ID.
	List(ctx context.Context) ([]Category, error)
	// Create сохраняет категорию. Возвращает ErrCategoryNameTaken при дубликате имени.
	Create(ctx context.Context, name string) (Category, error)
	// Rename меняет название категории. ErrCategoryNotFound, если её нет.
	Rename(ctx context.Context, id int64, name string) (Category, error)
	// Delete удаляет категорию. ErrCategoryInUse, если на неё ссылаются товары.
	Delete(ctx context.Context, id int64) error
	// Exists сообщает, существует ли категория.
	Exists(ctx context.Context, id int64) (bool, error)
}

// ProductRepository описывает требования к хранилищу товаров.
type ProductRepository interface {
	// List возвращает товары, опционально отфильтрованные по категории (categoryID > 0).
	List(ctx context.Context, categoryID int64) ([]Product, error)
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(ctx context.Context, id int64) (Product, error)
	// Create сохраняет новый товар и возвращает его с присвоенным ID.
	Create(ctx context.Context, input ProductInput) (Product, error)
	// Update применяет изменения к товару. ErrProductNotFound, если его нет.
	Update(ctx context.Context, id int64, input ProductInput) (Product, error)
	// SetImagePaths записывает пути артефактов изображений товара.
	SetImagePaths(ctx context.Context, id int64, imagePath, thumbPath string) error
	// Delete удаляет товар. ErrProductNotFound, если его нет.
	Delete(ctx context.Context, id int64) error
}
