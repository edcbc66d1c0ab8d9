package protocol

// HELLO (page -> server). Hash is the page's location.hash at load.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Hash            string `json:"hash"`
}

// WELCOME (server -> page)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	DebounceMs      int    `json:"debounce_ms"`
}

// HASH_CHANGE (page -> server): the page saw a hashchange event.
type HashChangeMsg struct {
	Type string `json:"type"`
	Hash string `json:"hash"`
}

// SET_HASH (server -> page): assign location.hash = Hash.
type SetHashMsg struct {
	Type string `json:"type"`
	Hash string `json:"hash"`
}

// UPLOAD (page -> server): a save file opened by the user, standard base64.
type UploadMsg struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// SAVE (page -> server): explicit user save.
type SaveMsg struct {
	Type string `json:"type"`
}

// DOWNLOAD (server -> page): offer Data (standard base64) as Filename.
type DownloadMsg struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Kind     string `json:"kind"`
	Label    string `json:"label"`
	Size     int    `json:"size"`
	Data     string `json:"data"`
}

// STATUS (server -> page)
type StatusMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ERROR (server -> page)
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewStatus(msg string) StatusMsg {
	return StatusMsg{Type: TypeStatus, Message: msg}
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, Code: code, Message: msg}
}
