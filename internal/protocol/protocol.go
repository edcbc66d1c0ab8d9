// Package protocol defines the JSON frames exchanged between a page and the
// server over the page websocket.
package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello      = "HELLO"
	TypeWelcome    = "WELCOME"
	TypeHashChange = "HASH_CHANGE"
	TypeSetHash    = "SET_HASH"
	TypeUpload     = "UPLOAD"
	TypeSave       = "SAVE"
	TypeDownload   = "DOWNLOAD"
	TypeStatus     = "STATUS"
	TypeError      = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
