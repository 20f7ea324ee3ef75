package types

// AuthProvider identifies the mechanism that issued a credential.
type AuthProvider string

const (
	// AuthProviderMemberbill is the self hosted email and password provider.
	AuthProviderMemberbill AuthProvider = "memberbill"
	// AuthProviderAPIKey marks requests authenticated with a tenant API key.
	AuthProviderAPIKey AuthProvider = "api_key"
)
