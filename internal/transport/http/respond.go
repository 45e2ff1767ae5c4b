package http

import (
	"encoding/json"
	"net/http"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

type categoryResponse struct {
	CatID int64  `json:"catid"`
	Name  string `json:"name"`
}

type productResponse struct {
	PID          int64       `json:"pid"`
	CatID        int64       `json:"catid"`
	CategoryName string      `json:"category_name"`
	Name         string      `json:"name"`
	Price        json.Number `json:"price"`
	Description  string      `json:"description"`
	ImagePath    string      `json:"image_path"`
	ThumbPath    string      `json:"thumb_path"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toCategoryResponse(category domain.Category) categoryResponse {
	return categoryResponse{CatID: category.ID, Name: category.Name}
}

func toProductResponse(product domain.Product) productResponse {
	return productResponse{
		PID:          product.ID,
		CatID:        product.CategoryID,
		CategoryName: product.CategoryName,
		Name:         product.Name,
		Price:        json.Number(domain.FormatPrice(product.PriceCents)),
		Description:  product.Description,
		ImagePath:    product.ImagePath,
		ThumbPath:    product.ThumbPath,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError транслирует ошибку домена в HTTP-статус и envelope
// `{"error": "..."}`. Неклассифицированные ошибки не раскрываются клиенту.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case domain.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error.")
	}
}
