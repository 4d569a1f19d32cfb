package protocol

// SUBSCRIBE (client -> server). First message on the connection; may be
// re-sent to change the frame rate cap.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// MaxFPS caps frames per second for this client; 0 selects the server
	// default.
	MaxFPS int `json:"max_fps,omitempty"`
}

// FRAME (server -> client). Cells are the grid in raster order, RLE
// encoded against Palette (see internal/sim/encoding).
type FrameMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	RunID      string  `json:"run_id"`
	Tick       uint64  `json:"tick"`
	Size       int     `json:"size"`
	Agents     int     `json:"agents"`
	Resources  int     `json:"resources"`
	Deceased   uint64  `json:"deceased"`
	Restarts   uint64  `json:"restarts"`
	GrowthRate int     `json:"growth_rate"`
	Speed      int     `json:"speed"`
	Paused     bool    `json:"paused"`
	StartedAt  string  `json:"started_at"`
	TicksPerS  float64 `json:"ticks_per_sec"`

	Births int `json:"births"`
	Deaths int `json:"deaths"`
	Eaten  int `json:"eaten"`

	Palette []string `json:"palette"`
	Cells   string   `json:"cells"`
}

// CONTROL (client -> server).
type ControlMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Command         string `json:"command"`
}

// ACK (server -> client) confirms a CONTROL was queued for the next tick
// boundary.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Command         string `json:"command"`
}

// ERROR (server -> client).
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string   `json:"protocol_version"`
	RunID           string   `json:"run_id"`
	Tick            uint64   `json:"tick"`
	Size            int      `json:"size"`
	Commands        []string `json:"commands"`
}
