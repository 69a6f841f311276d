package engine

import (
	"errors"
	"fmt"
	"net/http"

	"shankh-dashboard/internal/client"
	"shankh-dashboard/internal/collection"
	"shankh-dashboard/internal/csvio"
	"shankh-dashboard/internal/storage"
	"shankh-dashboard/internal/table"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Row     int    `json:"row,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(entity, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", entity, id),
	}
}

func UnknownEntityError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_ENTITY",
		Status:  404,
		Message: fmt.Sprintf("Unknown entity: %s", name),
	}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

func UpstreamError(msg string) *AppError {
	return &AppError{Code: "UPSTREAM_ERROR", Status: 502, Message: msg}
}

func InvalidPayloadError(msg string) *AppError {
	return &AppError{Code: "INVALID_PAYLOAD", Status: 400, Message: msg}
}

// ImportInvalidError reports every row and column problem of a rejected CSV
// file. Row 0 is the header.
func ImportInvalidError(errs []csvio.ImportError) *AppError {
	details := make([]ErrorDetail, len(errs))
	for i, e := range errs {
		details[i] = ErrorDetail{Field: e.Column, Row: e.Row, Message: e.Message}
		if e.Row == 0 {
			details[i].Rule = "header"
		} else {
			details[i].Rule = "cell"
		}
	}
	return &AppError{
		Code:    "IMPORT_INVALID",
		Status:  422,
		Message: "Import failed validation",
		Details: details,
	}
}

func validationDetails(errs table.ValidationErrors) []ErrorDetail {
	details := make([]ErrorDetail, len(errs))
	for i, e := range errs {
		details[i] = ErrorDetail{Field: e.Field, Rule: "invalid", Message: e.Message}
	}
	return details
}

// toAppError maps domain and collaborator errors onto the HTTP error
// taxonomy. Unrecognised errors are returned as nil.
func toAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var verrs table.ValidationErrors
	if errors.As(err, &verrs) {
		return ValidationError(validationDetails(verrs))
	}

	switch {
	case errors.Is(err, collection.ErrUnknownEntity):
		return NewAppError("UNKNOWN_ENTITY", http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrTooLarge):
		return NewAppError("PAYLOAD_TOO_LARGE", http.StatusRequestEntityTooLarge, "Image exceeds the upload size limit")
	case errors.Is(err, storage.ErrNotImage):
		return InvalidPayloadError("Uploaded file is not an image")
	case errors.Is(err, table.ErrBadDataURL):
		return InvalidPayloadError("Image must be a base64 data URL")
	case errors.Is(err, client.ErrResponseTooLarge):
		return UpstreamError("Backend response too large")
	}

	// MutationError already carries the user-facing "Failed to ..." message.
	var merr *collection.MutationError
	if errors.As(err, &merr) {
		if errors.Is(merr, client.ErrNotFound) {
			return NewAppError("NOT_FOUND", http.StatusNotFound, merr.Error())
		}
		return UpstreamError(merr.Error())
	}

	var cerr *client.Error
	if errors.As(err, &cerr) {
		if cerr.Status == http.StatusNotFound {
			return NewAppError("NOT_FOUND", http.StatusNotFound, cerr.Message)
		}
		return UpstreamError(cerr.Message)
	}
	return nil
}
