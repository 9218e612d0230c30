package flaglights_client

const (
	// Base URL
	DefaultBaseURL = "http://localhost:8080"

	// API Endpoints
	StatusEndpoint          = "/api/status"
	DelayEndpoint           = "/api/delay"
	ActionsEndpoint         = "/api/actions"
	TestMessageEndpoint     = "/api/test-message"
	DevicesEndpoint         = "/api/devices"
	RefreshDevicesEndpoint  = "/api/devices/refresh"
	SelectedDevicesEndpoint = "/api/devices/selected"
	ToggleDeviceEndpointFmt = "/api/devices/%s/toggle"
	ConnectEndpoint         = "/api/lifx/connect"
	DisconnectEndpoint      = "/api/lifx/disconnect"
	ApplyFlagEndpointFmt    = "/api/flags/%s"

	// Headers
	ContentTypeHeader = "Content-Type"
	JSONContentType   = "application/json"
)
