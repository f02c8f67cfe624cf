package bulk

import (
	"fmt"
	"strings"

	"trailrun-backend/internal/metadata"
)

const (
	CodeUnknownEntityKind      = "UNKNOWN_ENTITY_KIND"
	CodeInvalidFieldReference  = "INVALID_FIELD_REFERENCE"
	CodeInvalidOperatorForType = "INVALID_OPERATOR_FOR_TYPE"
	CodeInvalidValueType       = "INVALID_VALUE_TYPE"
	CodeFieldNotEditable       = "FIELD_NOT_EDITABLE"
	CodeInvalidOperationValue  = "INVALID_OPERATION_VALUE"
	CodeNoMatchingRecords      = "NO_MATCHING_RECORDS"
	CodePartialBulkUpdate      = "PARTIAL_BULK_UPDATE_FAILURE"
	CodeInvalidPayload         = "INVALID_PAYLOAD"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field    string `json:"field,omitempty"`
	Expected string `json:"expected,omitempty"`
	Message  string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// Is matches on the error code so callers can use errors.Is with the
// sentinel values below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

var (
	ErrUnknownEntityKind      = &AppError{Code: CodeUnknownEntityKind}
	ErrInvalidFieldReference  = &AppError{Code: CodeInvalidFieldReference}
	ErrInvalidOperatorForType = &AppError{Code: CodeInvalidOperatorForType}
	ErrInvalidValueType       = &AppError{Code: CodeInvalidValueType}
	ErrFieldNotEditable       = &AppError{Code: CodeFieldNotEditable}
	ErrInvalidOperationValue  = &AppError{Code: CodeInvalidOperationValue}
	ErrNoMatchingRecords      = &AppError{Code: CodeNoMatchingRecords}
	ErrPartialBulkUpdate      = &AppError{Code: CodePartialBulkUpdate}
)

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func UnknownEntityKindError(kind metadata.EntityKind) *AppError {
	return &AppError{
		Code:    CodeUnknownEntityKind,
		Status:  404,
		Message: fmt.Sprintf("Unknown entity kind: %s", kind),
	}
}

func InvalidFieldReferenceError(kind metadata.EntityKind, field, reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidFieldReference,
		Status:  400,
		Message: fmt.Sprintf("Field %s cannot be used in filters on %s: %s", field, kind, reason),
		Details: []ErrorDetail{{Field: field, Message: reason}},
	}
}

func InvalidOperatorError(f *metadata.Field, op FilterOperator) *AppError {
	allowed := make([]string, 0, len(operatorsByType[f.Type]))
	for _, o := range operatorsByType[f.Type] {
		allowed = append(allowed, string(o))
	}
	return &AppError{
		Code:    CodeInvalidOperatorForType,
		Status:  400,
		Message: fmt.Sprintf("Operator %q is not allowed on %s field %s", op, f.Type, f.Name),
		Details: []ErrorDetail{{
			Field:    f.Name,
			Expected: strings.Join(allowed, ", "),
			Message:  fmt.Sprintf("operator %q not allowed", op),
		}},
	}
}

func InvalidValueTypeError(f *metadata.Field, err error) *AppError {
	return &AppError{
		Code:    CodeInvalidValueType,
		Status:  400,
		Message: fmt.Sprintf("Invalid filter value for %s: %v", f.Name, err),
		Details: []ErrorDetail{{Field: f.Name, Expected: expectedDomain(f), Message: err.Error()}},
	}
}

func FieldNotEditableError(kind metadata.EntityKind, field string) *AppError {
	return &AppError{
		Code:    CodeFieldNotEditable,
		Status:  400,
		Message: fmt.Sprintf("Field %s is not editable on %s", field, kind),
		Details: []ErrorDetail{{Field: field, Message: "not an editable field"}},
	}
}

func InvalidOperationValueError(f *metadata.Field, err error) *AppError {
	return &AppError{
		Code:    CodeInvalidOperationValue,
		Status:  422,
		Message: fmt.Sprintf("Invalid value for %s: %v", f.Name, err),
		Details: []ErrorDetail{{Field: f.Name, Expected: expectedDomain(f), Message: err.Error()}},
	}
}

func NoMatchingRecordsError(kind metadata.EntityKind) *AppError {
	return &AppError{
		Code:    CodeNoMatchingRecords,
		Status:  409,
		Message: fmt.Sprintf("No %s records match the selection", kind),
	}
}

func PartialBulkUpdateError(kind metadata.EntityKind, requested int, applied int64) *AppError {
	return &AppError{
		Code:   CodePartialBulkUpdate,
		Status: 500,
		Message: fmt.Sprintf("Bulk update of %s applied to %d of %d records and was rolled back",
			kind, applied, requested),
	}
}

func InvalidPayloadError(msg string) *AppError {
	return NewAppError(CodeInvalidPayload, 400, msg)
}

func UnauthorizedError(msg string) *AppError {
	return NewAppError(CodeUnauthorized, 401, msg)
}

func ForbiddenError(msg string) *AppError {
	return NewAppError(CodeForbidden, 403, msg)
}
