package app

import (
	"fmt"
	"net/http"
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

func errTargetReached(habitID string, count, target int) *DomainError {
	return domainError(http.StatusConflict, "TARGET_REACHED",
		"Daily target already reached",
		map[string]any{"habitId": habitID, "count": count, "target": target})
}

func errTxConflict() *DomainError {
	return domainError(http.StatusConflict, "TRANSACTION_CONFLICT",
		"Concurrent update conflict, please retry", nil)
}

func errNotFound(what string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", what+" not found", nil)
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}
