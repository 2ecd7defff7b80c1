package ipc

// Control commands accepted by a running bridge.
const (
	CommandStatus = "status"
	CommandReload = "reload"
)

// Request is one newline-terminated JSON request.
type Request struct {
	Command string `json:"command"`
}

// Response is one newline-terminated JSON reply.
type Response struct {
	OK         bool     `json:"ok"`
	RunID      string   `json:"run_id,omitempty"`
	Recognizer string   `json:"recognizer,omitempty"`
	Mode       string   `json:"mode,omitempty"`
	DialogueID int64    `json:"dialogue_id,omitempty"`
	Favorites  int      `json:"favorites,omitempty"`
	Commands   int      `json:"commands,omitempty"`
	Pending    int      `json:"pending_output,omitempty"`
	ConfigPath string   `json:"config_path,omitempty"`
	Counters   []string `json:"counters,omitempty"`
	Message    string   `json:"message,omitempty"`
	Error      string   `json:"error,omitempty"`
}
