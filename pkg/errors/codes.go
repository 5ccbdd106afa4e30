package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeMessagingError     ErrorCode = "COMMON_015"
	ErrCodeStorageError       ErrorCode = "COMMON_016"
	ErrCodeSearchError        ErrorCode = "COMMON_017"
)

// Aliases used by call sites that read better without the ErrCode prefix.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Classification and template error codes.
const (
	ErrCodeOntologyInvalid    ErrorCode = "ONT_001"
	ErrCodeOntologyCycle      ErrorCode = "ONT_002"
	ErrCodeTemplateInvalid    ErrorCode = "ONT_003"
	ErrCodeTemplateNotFound   ErrorCode = "ONT_004"
	ErrCodeClassificationMiss ErrorCode = "ONT_005"
)

// Case corpus error codes.
const (
	ErrCodeCaseNotFound     ErrorCode = "CASE_001"
	ErrCodeDuplicateCase    ErrorCode = "CASE_002"
	ErrCodeStorageFault     ErrorCode = "CASE_003"
	ErrCodeIngestionFailed  ErrorCode = "CASE_004"
	ErrCodeExtractionFailed ErrorCode = "CASE_005"
)

// Similarity search error codes.
const (
	ErrCodeEmptyQuery        ErrorCode = "SIM_001"
	ErrCodeRetrievalFailed   ErrorCode = "SIM_002"
	ErrCodeRerankFailed      ErrorCode = "SIM_003"
	ErrCodeEmbeddingFailed   ErrorCode = "SIM_004"
	ErrCodeThresholdInvalid  ErrorCode = "SIM_005"
	ErrCodeSessionNotFound   ErrorCode = "SIM_006"
	ErrCodeSessionNotReady   ErrorCode = "SIM_007"
	ErrCodeModelUnavailable  ErrorCode = "SIM_008"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeMessagingError:     http.StatusInternalServerError,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeSearchError:        http.StatusBadGateway,

	ErrCodeOntologyInvalid:    http.StatusInternalServerError,
	ErrCodeOntologyCycle:      http.StatusInternalServerError,
	ErrCodeTemplateInvalid:    http.StatusInternalServerError,
	ErrCodeTemplateNotFound:   http.StatusNotFound,
	ErrCodeClassificationMiss: http.StatusNotFound,

	ErrCodeCaseNotFound:     http.StatusNotFound,
	ErrCodeDuplicateCase:    http.StatusConflict,
	ErrCodeStorageFault:     http.StatusServiceUnavailable,
	ErrCodeIngestionFailed:  http.StatusUnprocessableEntity,
	ErrCodeExtractionFailed: http.StatusBadGateway,

	ErrCodeEmptyQuery:       http.StatusBadRequest,
	ErrCodeRetrievalFailed:  http.StatusServiceUnavailable,
	ErrCodeRerankFailed:     http.StatusBadGateway,
	ErrCodeEmbeddingFailed:  http.StatusBadGateway,
	ErrCodeThresholdInvalid: http.StatusBadRequest,
	ErrCodeSessionNotFound:  http.StatusNotFound,
	ErrCodeSessionNotReady:  http.StatusConflict,
	ErrCodeModelUnavailable: http.StatusServiceUnavailable,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeMessagingError:     "messaging error",
	ErrCodeStorageError:       "object storage error",
	ErrCodeSearchError:        "full-text search error",

	ErrCodeOntologyInvalid:    "invalid ontology",
	ErrCodeOntologyCycle:      "ontology contains a cycle",
	ErrCodeTemplateInvalid:    "invalid template",
	ErrCodeTemplateNotFound:   "template not found",
	ErrCodeClassificationMiss: "no template matched the case",

	ErrCodeCaseNotFound:     "case not found",
	ErrCodeDuplicateCase:    "case already exists",
	ErrCodeStorageFault:     "case storage unavailable",
	ErrCodeIngestionFailed:  "case ingestion failed",
	ErrCodeExtractionFailed: "metadata extraction failed",

	ErrCodeEmptyQuery:       "query text is empty",
	ErrCodeRetrievalFailed:  "candidate retrieval failed",
	ErrCodeRerankFailed:     "reranking failed",
	ErrCodeEmbeddingFailed:  "embedding failed",
	ErrCodeThresholdInvalid: "invalid similarity threshold",
	ErrCodeSessionNotFound:  "search session not found",
	ErrCodeSessionNotReady:  "search session not completed",
	ErrCodeModelUnavailable: "model server unavailable",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

//Personal.AI order the ending
