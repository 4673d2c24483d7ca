// Package header defines the HTTP header and MIME type names
// used across the gateway.
package header

const (
	// Accept specifies Accept header
	Accept = "Accept"
	// AcceptEncoding specifies Accept-Encoding header
	AcceptEncoding = "Accept-Encoding"
	// Authorization specifies Authorization header
	Authorization = "Authorization"
	// ContentEncoding specifies Content-Encoding header
	ContentEncoding = "Content-Encoding"
	// ContentType specifies Content-Type header
	ContentType = "Content-Type"
	// UserAgent specifies User-Agent header
	UserAgent = "User-Agent"
	// XCorrelationID specifies X-Correlation-ID header
	XCorrelationID = "X-Correlation-ID"
	// XForwardedProto specifies X-Forwarded-Proto header
	XForwardedProto = "X-Forwarded-Proto"
	// XForwardedFor specifies X-Forwarded-For header
	XForwardedFor = "X-Forwarded-For"

	// XUserID specifies the header used to propagate the resolved
	// caller identity to the backend services
	XUserID = "X-FP-User-ID"
	// XServiceID specifies the header that identifies trusted
	// service-to-service calls
	XServiceID = "X-FP-Service-ID"
)

const (
	// ApplicationJSON specifies application/json MIME type
	ApplicationJSON = "application/json"
	// TextPlain specifies text/plain MIME type
	TextPlain = "text/plain"
	// Gzip specifies gzip encoding
	Gzip = "gzip"
	// Bearer specifies the Bearer token prefix
	Bearer = "Bearer"
)
