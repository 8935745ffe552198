// Package cluster holds the wire types and framing shared by the
// endpoint connection, replay log, and cluster router: the
// jsonrpc-shaped Message envelope and its netstring framing.
package cluster

import (
	"encoding/json"
	"fmt"
)

// Method is the closed set of cluster RPC methods, all under the
// cluster:: namespace.
type Method string

const (
	MethodHeartBeat                Method = "cluster::HeartBeat"
	MethodCheckResult              Method = "cluster::CheckResult"
	MethodSetNextCheck             Method = "cluster::SetNextCheck"
	MethodSetForceNextCheck        Method = "cluster::SetForceNextCheck"
	MethodSetNextNotification      Method = "cluster::SetNextNotification"
	MethodSetForceNextNotification Method = "cluster::SetForceNextNotification"
	MethodSetEnableActiveChecks    Method = "cluster::SetEnableActiveChecks"
	MethodSetEnablePassiveChecks   Method = "cluster::SetEnablePassiveChecks"
	MethodSetEnableNotifications   Method = "cluster::SetEnableNotifications"
	MethodSetEnableFlapping        Method = "cluster::SetEnableFlapping"
	MethodAddComment               Method = "cluster::AddComment"
	MethodRemoveComment            Method = "cluster::RemoveComment"
	MethodAddDowntime              Method = "cluster::AddDowntime"
	MethodRemoveDowntime           Method = "cluster::RemoveDowntime"
	MethodSetAcknowledgement       Method = "cluster::SetAcknowledgement"
	MethodClearAcknowledgement     Method = "cluster::ClearAcknowledgement"
	MethodSetLogPosition           Method = "cluster::SetLogPosition"
	MethodConfig                   Method = "cluster::Config"
)

// Message is the jsonrpc-shaped envelope carried by every frame, on the
// wire and in the replay log.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  Method          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	Ts      float64         `json:"ts,omitempty"`
}

// NewMessage builds a Message with params marshaled from v and jsonrpc
// fixed at "2.0".
func NewMessage(method Method, v any) (Message, error) {
	params, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("cluster: marshal params for %s: %w", method, err)
	}
	return Message{JSONRPC: "2.0", Method: method, Params: params}, nil
}

// DecodeParams unmarshals the message's params into v.
func (m Message) DecodeParams(v any) error {
	if len(m.Params) == 0 {
		return fmt.Errorf("cluster: message %s has no params", m.Method)
	}
	return json.Unmarshal(m.Params, v)
}

// Param payload shapes for each method.

type CheckResultParams struct {
	Service     string          `json:"service"`
	CheckResult json.RawMessage `json:"check_result"`
}

type SetNextCheckParams struct {
	Service   string  `json:"service"`
	NextCheck float64 `json:"next_check"`
}

type SetForceParams struct {
	Service string `json:"service"`
	Forced  bool   `json:"forced"`
}

type SetNextNotificationParams struct {
	Notification     string  `json:"notification"`
	NextNotification float64 `json:"next_notification"`
}

type SetEnableParams struct {
	Service string `json:"service"`
	Enabled bool   `json:"enabled"`
}

type CommentParams struct {
	Service string          `json:"service"`
	Comment json.RawMessage `json:"comment,omitempty"`
	ID      string          `json:"id,omitempty"`
}

type DowntimeParams struct {
	Service  string          `json:"service"`
	Downtime json.RawMessage `json:"downtime,omitempty"`
	ID       string          `json:"id,omitempty"`
}

type AcknowledgementParams struct {
	Service string  `json:"service"`
	Author  string  `json:"author"`
	Comment string  `json:"comment"`
	Type    int     `json:"type"`
	Expiry  float64 `json:"expiry,omitempty"`
}

type ClearAcknowledgementParams struct {
	Service string `json:"service"`
}

type SetLogPositionParams struct {
	LogPosition float64 `json:"log_position"`
}

type ConfigParams struct {
	Identity     string                     `json:"identity"`
	ConfigFiles  map[string]ConfigFileEntry `json:"config_files"`
}

type ConfigFileEntry struct {
	Content string `json:"content"`
}
