package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"nexcrm/builder/internal/assets"
	"nexcrm/builder/internal/auth"
	"nexcrm/builder/internal/export"
	"nexcrm/builder/internal/gitrepo"
	"nexcrm/builder/internal/page"
	"nexcrm/builder/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, store.ErrSlugTaken):
		return http.StatusConflict, "SLUG_TAKEN", "A page with this slug already exists", nil
	case errors.Is(err, gitrepo.ErrNotPublished):
		return http.StatusNotFound, "NOT_PUBLISHED", "Page has no published versions", nil
	case isDocumentError(err):
		return http.StatusUnprocessableEntity, "INVALID_DOCUMENT", err.Error(), nil
	case errors.Is(err, assets.ErrUnsupportedType), errors.Is(err, assets.ErrEmpty):
		return http.StatusBadRequest, "INVALID_ASSET", err.Error(), nil
	case errors.Is(err, assets.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "ASSET_TOO_LARGE", err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), nil
	case errors.Is(err, export.ErrChromeMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export renderer is not installed", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func isDocumentError(err error) bool {
	for _, target := range []error{
		page.ErrMalformed,
		page.ErrEmptyDocument,
		page.ErrMissingID,
		page.ErrMissingType,
		page.ErrDuplicateID,
		page.ErrLeafChildren,
		page.ErrInvalidProp,
		page.ErrInvalidContent,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
