package httperror

const (
	// CodeBadGateway is returned when an upstream service cannot be reached.
	CodeBadGateway = "bad_gateway"
	// CodeConnection is returned when connection failed.
	CodeConnection = "connection"
	// CodeForbidden is returned when the client is not authorized to access the resource indicated.
	CodeForbidden = "forbidden"
	// CodeInvalidJSON is returned when we were unable to parse a client supplied JSON Payload.
	CodeInvalidJSON = "invalid_json"
	// CodeInvalidParam is returned where a URL parameter, or other type of generalized parameters value is invalid.
	CodeInvalidParam = "invalid_parameter"
	// CodeInvalidRequest is returned when the request validation failed.
	CodeInvalidRequest = "invalid_request"
	// CodeMalformed is returned when the request was malformed.
	CodeMalformed = "malformed"
	// CodeNotFound is returned when the requested URL doesn't exist.
	CodeNotFound = "not_found"
	// CodeNotReady is returned when the service is not ready to serve
	CodeNotReady = "not_ready"
	// CodeRateLimitExceeded is returned when the client has exceeded their request allotment.
	CodeRateLimitExceeded = "rate_limit_exceeded"
	// CodeRequestFailed is returned when an outbound request failed.
	CodeRequestFailed = "request_failed"
	// CodeUnauthorized is for unauthorized access.
	CodeUnauthorized = "unauthorized"
	// CodeUnexpected is returned when something went wrong.
	CodeUnexpected = "unexpected"
)
