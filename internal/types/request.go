package types

// RequestType tags Deploy Service calls in logs and errors.
type RequestType string

const (
	RequestTypeNegotiate RequestType = "negotiate"
	RequestTypeUpload    RequestType = "upload"
)

// RequestContext travels with every Deploy Service call.
type RequestContext struct {
	TraceID     string
	SiteID      string
	RequestType RequestType
}
