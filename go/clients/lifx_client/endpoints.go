package lifx_client

const (
	// Base URL
	BaseURL = "https://api.lifx.com/v1"

	// API Endpoints
	LightsAllEndpoint = "/lights/all"
	StateEndpointFmt  = "/lights/%s/state"
	PulseEndpointFmt  = "/lights/%s/effects/pulse"

	// Headers
	AuthorizationHeader = "Authorization"
	ContentTypeHeader   = "Content-Type"
	JSONContentType     = "application/json"
)
