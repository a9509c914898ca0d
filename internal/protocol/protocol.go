package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeTick      = "TICK"
	TypeBootstrap = "BOOTSTRAP"
	TypeSubscribe = "SUBSCRIBE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

// SubscribeMsg opens an observer stream. It must be the first frame a client
// sends.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
