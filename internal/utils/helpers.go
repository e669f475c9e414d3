package utils

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/freightdesk/loadboard/internal/models"
)

// SendJSON writes v as a JSON response with the given status code.
func SendJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println(err)
	}
}

// SendError writes a business error as JSON, mapping its status code.
func SendError(w http.ResponseWriter, err *models.Error) {
	SendJSON(w, err.StatusCode, err)
}

// SendBadRequest writes a 400 for malformed requests.
func SendBadRequest(w http.ResponseWriter, message string) {
	SendError(w, &models.Error{
		StatusCode: http.StatusBadRequest,
		Code:       models.CodeValidation,
		Message:    message,
	})
}

// SendInternalError writes a generic 500.
func SendInternalError(w http.ResponseWriter, message string) {
	SendError(w, &models.Error{
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
	})
}

// ParseLimitOffset parses pagination query parameters.
func ParseLimitOffset(limitStr, offsetStr string) (int, int, error) {
	var limit, offset int
	var err error

	if limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 || limit > 50 {
			return 0, 0, fmt.Errorf("invalid limit parameter, must be a positive integer [1:50]")
		}
	} else {
		limit = 20
	}

	if offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset parameter, must be a non-negative integer")
		}
	} else {
		offset = 0
	}

	return limit, offset, nil
}

// ParseOptionalFloat parses an optional float query parameter.
func ParseOptionalFloat(name, value string) (*float64, error) {
	if value == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s parameter, must be a number", name)
	}
	return &f, nil
}
