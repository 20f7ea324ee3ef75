package types

const (
	HeaderAuthorization = "Authorization"
	HeaderEnvironment   = "X-Environment-ID"
	HeaderRequestID     = "X-Request-ID"
)
