package replay

import (
	"encoding/json"

	"github.com/wardenhq/sentryd/pkg/cluster"
)

// Record is one entry in a peer's replay log: a timestamped outbound
// message, plus the peer name it must not be sent back to (empty for
// "no exclusion"). Message is stored pre-serialized as a string.
type Record struct {
	Ts      float64 `json:"ts"`
	Except  string  `json:"except,omitempty"`
	Message string  `json:"message"`
}

// DecodeMessage unmarshals the record's serialized message.
func (r Record) DecodeMessage() (cluster.Message, error) {
	var msg cluster.Message
	err := json.Unmarshal([]byte(r.Message), &msg)
	return msg, err
}
