package types

// SetupRequest carries the credentials for the first-time-setup protocol.
type SetupRequest struct {
	// Username to initialize the service with.
	// example: admin
	Username string `json:"username" example:"admin"`
	// Password to initialize the service with.
	Password string `json:"password"`
}

// ReconnectRequest carries candidate credentials to resolve a desync.
type ReconnectRequest struct {
	// Username to test against the service.
	// example: admin
	Username string `json:"username" example:"admin"`
	// Password to test against the service.
	Password string `json:"password"`
}

// ChangeCredentialsRequest carries the replacement pair for a credential
// rotation. The current pair is read from the vault, never from the request.
type ChangeCredentialsRequest struct {
	// New username.
	// example: admin
	Username string `json:"username" example:"admin"`
	// New password.
	Password string `json:"password"`
}

// ApplyDisplayRequest selects a resolution/refresh-rate pair to apply.
// The pair must be one of the driver's advertised modes.
type ApplyDisplayRequest struct {
	// example: 2560
	Width int `json:"width" example:"2560"`
	// example: 1440
	Height int `json:"height" example:"1440"`
	// example: 120
	FPS int `json:"fps" example:"120"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Latest published service status.
	// example: online
	Status ServiceStatus `json:"status" example:"online"`
	// Credential sync state derived at request time.
	// example: nominal
	SyncState SyncState `json:"sync_state" example:"nominal"`
	// Last time any probe completed, in unix seconds (0 = never).
	// example: 1700000000
	LastSeenUnix int64 `json:"last_seen_unix" example:"1700000000"`
	// Whether the status monitor is actively polling.
	// example: true
	Polling bool `json:"polling" example:"true"`
	// True while a driver settle window suppresses status publishes.
	// example: false
	Suspended bool `json:"suspended" example:"false"`
	// Current virtual display state.
	Display DisplayState `json:"display"`
	// Daemon uptime in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// DisplayModesResponse lists the modes the driver will accept.
type DisplayModesResponse struct {
	Modes []DisplayMode `json:"modes"`
}
