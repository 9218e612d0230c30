package openf1_client

const (
	// Base URL
	BaseURL = "https://api.openf1.org/v1"

	// API Endpoints
	RaceControlEndpoint = "/race_control"
	SessionsEndpoint    = "/sessions"

	// Session selectors
	LatestSession = "latest"

	// Defaults
	DefaultResultLimit = 10
)
