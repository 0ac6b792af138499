// Package session holds per-user dialogue state: the pending
// clarification a user still owes an answer to, and the last resolved
// entity for elliptical follow-ups.
package session

import "time"

// Service 会话状态服务
// 状态机（每用户）：Idle →（歧义解析）→ AwaitingSelection →
// （有效选择）→ Idle，其他消息同样回到 Idle 并清掉过期澄清。
type Service interface {
	// GetPending returns the active clarification, nil when idle.
	GetPending(userID string) *PendingClarification
	// SetPending installs a clarification, replacing any existing one.
	// 每用户最多一个待决澄清，新的覆盖旧的而不是叠加
	SetPending(userID string, options []Option)
	// ClearPending drops the clarification without resolving.
	ClearPending(userID string)

	// GetLastContext returns the last-resolved-entity context, zero
	// value when none survives the idle window.
	GetLastContext(userID string) LastContext
	// SetLastContext records the entity just discussed.
	SetLastContext(userID string, productKey string)

	// Close stops the expiry loop.
	Close()
}

// Option is one selectable clarification choice presented to the user.
// Payload 的结构化前缀区分商品键与政策类别（policy_category:）
type Option struct {
	DisplayText string `json:"display_text"`
	Payload     string `json:"payload"`
}

// PendingClarification 待决澄清，按用户键控
type PendingClarification struct {
	Options   []Option
	CreatedAt time.Time
	ExpiresAt time.Time
}

// LastContext 最近一次解析出的实体上下文，支撑"多少钱"这类省略追问
type LastContext struct {
	ProductKey string
	UpdatedAt  time.Time
}
