package queue

import (
	"encoding/json"
	"errors"
	"time"
)

// OperationType 操作类型
type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
)

// Status 操作状态
type Status string

// 状态流转：pending → processing → completed | pending(重试) | failed；failed 仅能通过 RetryOperation 回到 pending
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusFailed     Status = "failed"
	StatusCompleted  Status = "completed"
)

// DefaultMaxRetries 默认最大重试次数
const DefaultMaxRetries = 3

// Operation 一条无法立即写入远端的操作
type Operation struct {
	ID          string          `json:"id"`
	Type        OperationType   `json:"type"`
	EntityKind  string          `json:"entity_kind"`
	EntityID    string          `json:"entity_id,omitempty"`
	OwnerID     uint            `json:"owner_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
	Status      Status          `json:"status"`
	LastError   string          `json:"last_error,omitempty"`
	BlockedBy   string          `json:"blocked_by,omitempty"` // 因该前序操作失败而未执行
	ServerID    string          `json:"server_id,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Stats 各状态计数
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
	Completed  int `json:"completed"`
}

// Result 一次队列处理的结果
type Result struct {
	Skipped   bool `json:"skipped"`
	Offline   bool `json:"offline"`
	Processed int  `json:"processed"`
	Succeeded int  `json:"succeeded"`
	Retried   int  `json:"retried"`
	Failed    int  `json:"failed"`
	Deferred  int  `json:"deferred"`
	Purged    int  `json:"purged"`
}

func (op *Operation) entityRef() string {
	return op.EntityKind + "/" + op.EntityID
}

// payloadRef 取出 payload 中的 id 与 user_id。user_id 类型不符时只返回 id
func payloadRef(payload json.RawMessage) (id string, owner uint) {
	var ref struct {
		ID     string `json:"id"`
		UserID uint   `json:"user_id"`
	}
	var typeErr *json.UnmarshalTypeError
	if err := json.Unmarshal(payload, &ref); err != nil && !errors.As(err, &typeErr) {
		return "", 0
	}
	return ref.ID, ref.UserID
}

// remapPayload 将 payload 顶层字段中等于 oldID 的字符串替换为 newID
func remapPayload(payload json.RawMessage, oldID, newID string) (json.RawMessage, bool) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return payload, false
	}
	changed := false
	for k, v := range m {
		if s, ok := v.(string); ok && s == oldID {
			m[k] = newID
			changed = true
		}
	}
	if !changed {
		return payload, false
	}
	data, err := json.Marshal(m)
	if err != nil {
		return payload, false
	}
	return data, true
}
