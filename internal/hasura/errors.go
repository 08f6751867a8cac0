package hasura

import (
	"errors"
	"fmt"
	"strings"
)

// APIError represents a rejected data-service operation: a non-2xx HTTP
// response or a GraphQL response carrying an errors array.
type APIError struct {
	// StatusCode is the HTTP response status code. GraphQL-level errors
	// usually arrive with a 200.
	StatusCode int

	// Message is the first error's description.
	Message string

	// Errors contains every entry of the GraphQL errors array.
	Errors []OperationError
}

// OperationError is one entry of a GraphQL errors array.
type OperationError struct {
	Message string
	Code    string
}

func (err *APIError) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "hasura: HTTP %d: %s", err.StatusCode, err.Message)
	for _, opErr := range err.Errors[min(1, len(err.Errors)):] {
		fmt.Fprintf(&builder, "; %s", opErr.Message)
	}
	return builder.String()
}

// IsPermissionDenied reports whether err is a Hasura access or
// authorization error (expired/invalid token, role restriction).
func IsPermissionDenied(err error) bool {
	var apiError *APIError
	if !errors.As(err, &apiError) {
		return false
	}
	if apiError.StatusCode == 401 || apiError.StatusCode == 403 {
		return true
	}
	for _, opErr := range apiError.Errors {
		switch opErr.Code {
		case "access-denied", "invalid-jwt", "jwt-invalid-claims", "permission-error":
			return true
		}
	}
	return false
}

// IsConstraintViolation reports whether err is a uniqueness or foreign
// key violation reported by the service.
func IsConstraintViolation(err error) bool {
	var apiError *APIError
	if !errors.As(err, &apiError) {
		return false
	}
	for _, opErr := range apiError.Errors {
		if opErr.Code == "constraint-violation" {
			return true
		}
	}
	return false
}
