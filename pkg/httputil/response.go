// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing. Error responses use
// the admin panel's envelope: {"code": <stable code>, "message": <text>}.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/quillcms/quill/pkg/apperr"
)

// ErrorResponse is the unified error envelope
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SuccessResponse is the unified success envelope for mutations
type SuccessResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created)
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a successful response with no body (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteMessage writes a success envelope with a code and message
func WriteMessage(w http.ResponseWriter, code int, message string) error {
	return WriteJSON(w, http.StatusCreated, SuccessResponse{Code: code, Message: message})
}

// WriteErrorMessage writes an error envelope with the given status and code
func WriteErrorMessage(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Code: code, Message: message})
}

// WriteError answers err. Business errors keep their stable code and status;
// anything else is reported as a generic internal failure without detail.
func WriteError(w http.ResponseWriter, err error) {
	if e := apperr.From(err); e != nil {
		WriteErrorMessage(w, e.Status, e.Code, e.Message)
		return
	}
	WriteErrorMessage(w, http.StatusInternalServerError, 9999, "internal server error")
}

// WriteValidationError writes a validation error response (400 Bad Request)
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, 10030, message)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, 10030, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, apperr.CodeAuthDenied, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, apperr.CodeAuthDenied, message)
}

// WriteNotFoundError writes a not found error response (404 Not Found)
func WriteNotFoundError(w http.ResponseWriter, code int, message string) {
	WriteErrorMessage(w, http.StatusNotFound, code, message)
}

// WriteInternalError writes an internal server error response (500)
func WriteInternalError(w http.ResponseWriter, err error) {
	WriteErrorMessage(w, http.StatusInternalServerError, 9999, "internal server error")
}

// Page wraps a paginated collection response
type Page struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Count int         `json:"count"`
}

// WritePage writes a paginated collection
func WritePage(w http.ResponseWriter, items interface{}, total int64, page, count int) error {
	return WriteJSON(w, http.StatusOK, Page{Items: items, Total: total, Page: page, Count: count})
}
