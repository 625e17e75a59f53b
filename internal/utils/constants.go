package utils

// Deploy Service defaults
const (
	DefaultAPIBase         = "https://api.netlify.com/api/v1"
	ContentTypeOctetStream = "application/octet-stream"
	ContentTypeJSON        = "application/json"
	// MaxErrorBodyBytes bounds how much of a failed response is kept as detail.
	MaxErrorBodyBytes = 4 * 1024
)

// Retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// Concurrency
const (
	DefaultConcurrency = 4
	MaxConcurrency     = 64
)

const DefaultRequestTimeoutSeconds = 60

// Schema version
const SchemaVersion = "1.0"

// Environment variables understood by the CLI.
const (
	EnvAuthToken = "NETLIFY_AUTH_TOKEN"
	EnvSiteID    = "NETLIFY_SITE_ID"
	EnvPrefix    = "NETDEPLOY_"
)
