package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/images"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
)

// multipartMemoryLimit — буфер разбора multipart-форм в памяти.
const multipartMemoryLimit = 32 << 20

// Handler обслуживает REST-операции каталога.
type Handler struct {
	service *catalog.Service
	logger  *log.Entry
}

// NewHandler создаёт HTTP-обработчик каталога.
func NewHandler(service *catalog.Service, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http-handler")
	}
	return &Handler{service: service, logger: logger}
}

type categoryRequest struct {
	Name string `json:"name"`
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.logError(r, err)
		writeDomainError(w, err)
		return
	}

	resp := make([]categoryResponse, 0, len(categories))
	for _, category := range categories {
		resp = append(resp, toCategoryResponse(category))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	category, err := h.service.CreateCategory(r.Context(), req.Name)
	if err != nil {
		h.logError(r, err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryResponse(category))
}

func (h *Handler) renameCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "catid"))
	if !ok {
		writeDomainError(w, domain.ErrCategoryIDInvalid)
		return
	}

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	category, err := h.service.RenameCategory(r.Context(), id, req.Name)
	if err != nil {
		h.logError(r, err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryResponse(category))
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "catid"))
	if !ok {
		writeDomainError(w, domain.ErrCategoryIDInvalid)
		return
	}

	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		h.logError(r, err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	var categoryID int64
	if raw := strings.TrimSpace(r.URL.Query().Get("catid")); raw != "" {
		id, ok := parseID(raw)
		if !ok {
			writeDomainError(w, domain.ErrCategoryIDInvalid)
			return
		}
		categoryID = id
	}

	products, err := h.service.ListProducts(r.Context(), categoryID)
	if err != nil {
		h.logError(r, err)
		writeDomainError(w, err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, product := range products {
		resp = append(resp, toProductResponse(product))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "pid"))
	if !ok {
		writeDomainError(w, domain.ErrProductIDInvalid)
		return
	}

	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.logError(r, err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	form, upload, err := h.parseProductForm(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	product, err := h.service.CreateProduct(r.Context(), form.categoryID, form.name, form.price, form.description)
	if err != nil {
		h.logError(r, err)
		// Несуществующая категория в форме — ошибка валидации, не 404.
		if errors.Is(err, domain.ErrCategoryNotFound) {
			writeError(w, http.StatusBadRequest, "Selected category does not exist.")
			return
		}
		writeDomainError(w, err)
		return
	}

	if upload != nil {
		product, err = h.service.UploadProductImage(r.Context(), product.ID, upload.data, upload.mimeType)
		if err != nil {
			h.logError(r, err)
			writeDomainError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "pid"))
	if !ok {
		writeDomainError(w, domain.ErrProductIDInvalid)
		return
	}

	form, upload, err := h.parseProductForm(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	product, err := h.service.UpdateProduct(r.Context(), id, form.categoryID, form.name, form.price, form.description)
	if err != nil {
		h.logError(r, err)
		if errors.Is(err, domain.ErrCategoryNotFound) {
			writeError(w, http.StatusBadRequest, "Selected category does not exist.")
			return
		}
		writeDomainError(w, err)
		return
	}

	if upload != nil {
		product, err = h.service.UploadProductImage(r.Context(), product.ID, upload.data, upload.mimeType)
		if err != nil {
			h.logError(r, err)
			writeDomainError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "pid"))
	if !ok {
		writeDomainError(w, domain.ErrProductIDInvalid)
		return
	}

	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		h.logError(r, err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type productForm struct {
	categoryID  int64
	name        string
	price       string
	description string
}

type uploadedImage struct {
	data     []byte
	mimeType string
}

// parseProductForm разбирает multipart-форму товара. Приложенное изображение
// валидируется здесь же, до создания или изменения записи.
func (h *Handler) parseProductForm(r *http.Request) (productForm, *uploadedImage, error) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		return productForm{}, nil, domain.ErrUnsupportedImageType
	}

	form := productForm{
		name:        r.FormValue("name"),
		price:       r.FormValue("price"),
		description: r.FormValue("description"),
	}
	if id, ok := parseID(strings.TrimSpace(r.FormValue("catid"))); ok {
		form.categoryID = id
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return form, nil, nil
		}
		return productForm{}, nil, domain.ErrUnsupportedImageType
	}
	defer file.Close()

	// Читаем не больше лимита: хвоста достаточно, чтобы распознать превышение.
	data, err := io.ReadAll(io.LimitReader(file, images.MaxUploadBytes+1))
	if err != nil {
		return productForm{}, nil, domain.ErrImageTooLarge
	}

	mimeType := header.Header.Get("Content-Type")
	if err := h.service.ValidateImage(data, mimeType); err != nil {
		return productForm{}, nil, err
	}

	return form, &uploadedImage{data: data, mimeType: mimeType}, nil
}

func (h *Handler) logError(r *http.Request, err error) {
	if domain.IsValidation(err) || domain.IsNotFound(err) || domain.IsConflict(err) {
		return
	}
	h.logger.WithError(err).WithFields(log.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": requestIDFromContext(r.Context()),
	}).Error("request failed")
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
