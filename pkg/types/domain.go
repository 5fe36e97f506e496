package types

// ServiceStatus classifies the outcome of a single probe against the
// streaming service's local control endpoint. It is produced only by the
// probe; each value is valid until the next poll supersedes it.
type ServiceStatus string

const (
	// StatusOnline means the endpoint answered 2xx with a parseable body.
	StatusOnline ServiceStatus = "online"
	// StatusOffline means nothing is listening (connection refused).
	StatusOffline ServiceStatus = "offline"
	// StatusAuthRequired means the endpoint answered 401/403.
	StatusAuthRequired ServiceStatus = "auth_required"
	// StatusUnknown covers timeouts, malformed bodies and everything else.
	StatusUnknown ServiceStatus = "unknown"
)

// SyncState describes the relationship between locally vaulted credentials
// and what the service will accept. Derived, never stored.
type SyncState string

const (
	// SyncFirstTimeSetup: no credentials exist locally yet.
	SyncFirstTimeSetup SyncState = "first_time_setup"
	// SyncNominal: local credentials exist and the service accepts them.
	SyncNominal SyncState = "nominal"
	// SyncDesync: local credentials exist but the service rejects them.
	SyncDesync SyncState = "desync"
)

// Credentials is a username/password pair for the service. Copies outside
// the vault are transient and must not outlive the operation using them.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// DisplayMode is one resolution/refresh-rate pair the virtual display
// driver accepts. Modes come from the driver's own settings file; arbitrary
// values are rejected.
type DisplayMode struct {
	// Horizontal resolution in pixels.
	// example: 1920
	Width int `json:"width" example:"1920"`
	// Vertical resolution in pixels.
	// example: 1080
	Height int `json:"height" example:"1080"`
	// Refresh rate in Hz.
	// example: 60
	FPS int `json:"fps" example:"60"`
}

// DisplayState is the driver's pending-vs-applied view exposed to the GUI.
type DisplayState struct {
	// Whether the virtual display is currently enabled.
	// example: true
	Enabled bool `json:"enabled" example:"true"`
	// Mode currently applied to the driver.
	Current DisplayMode `json:"current"`
	// Mode staged but not yet applied, if any.
	Pending *DisplayMode `json:"pending,omitempty"`
	// True when pending differs from current.
	// example: false
	HasChanges bool `json:"has_changes" example:"false"`
}

// AppEntry is one entry in the service's application list.
type AppEntry struct {
	// Unique name; the application list is keyed by it.
	// example: Desktop (Virtual)
	Name string `json:"name" example:"Desktop (Virtual)"`
	// Optional command launched when the app starts.
	Cmd string `json:"cmd,omitempty"`
	// Commands run before launch / after teardown, in order.
	PrepCmds []PrepCmd `json:"prep-cmd,omitempty"`
	// Name of the output/display this app should be pinned to.
	Output string `json:"output,omitempty"`
	// Whether the command runs elevated.
	Elevated bool `json:"elevated,omitempty"`
	// Exit timeout in seconds; 0 uses the service default.
	ExitTimeout int `json:"exit-timeout,omitempty"`
}

// PrepCmd is a do/undo command pair executed around an app session.
type PrepCmd struct {
	Do   string `json:"do"`
	Undo string `json:"undo,omitempty"`
}
