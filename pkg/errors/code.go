package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13099: Build & language errors
// 13100-13199: Sandbox execution errors
// 13200-13299: Output handling errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// ========== Build & Language Errors (13000-13099) ==========

	LanguageNotSupported ErrorCode = 13000
	CodeTooLarge         ErrorCode = 13001
	InvalidCompileFlags  ErrorCode = 13002

	// ========== Sandbox Execution Errors (13100-13199) ==========

	SandboxSpawnFailed    ErrorCode = 13100
	TelemetryParseFailed  ErrorCode = 13101
	OutputEncodingInvalid ErrorCode = 13102
	WorkspaceFailed       ErrorCode = 13103
	InvalidFileIOName     ErrorCode = 13104
	BundleUnpackFailed    ErrorCode = 13105
	BundlePackFailed      ErrorCode = 13106

	// ========== Output Handling Errors (13200-13299) ==========

	OutputOffloadFailed ErrorCode = 13200
	OutputEncodeFailed  ErrorCode = 13201
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Cache
	CacheError: "Cache operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	// Build
	LanguageNotSupported: "Programming language not supported",
	CodeTooLarge:         "Code is too large",
	InvalidCompileFlags:  "Invalid compiler options",

	// Sandbox
	SandboxSpawnFailed:    "Failed to start sandboxed process",
	TelemetryParseFailed:  "Failed to parse resource usage report",
	OutputEncodingInvalid: "Process output is not valid UTF-8",
	WorkspaceFailed:       "Failed to prepare sandbox workspace",
	InvalidFileIOName:     "Invalid file I/O name. It must be alphanumeric, like \"cowdating\".",
	BundleUnpackFailed:    "Failed to extract executable archive",
	BundlePackFailed:      "Failed to package executable",

	// Output
	OutputOffloadFailed: "Failed to store full output",
	OutputEncodeFailed:  "Failed to encode output",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound:
		return 404
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == LanguageNotSupported, c == CodeTooLarge, c == InvalidCompileFlags:
		return 400
	case c == InvalidFileIOName, c == BundleUnpackFailed:
		return 400
	default:
		return 500
	}
}

// IsClientError reports whether the code describes a problem with the request itself.
func (c ErrorCode) IsClientError() bool {
	status := c.HTTPStatus()
	return status >= 400 && status < 500
}
