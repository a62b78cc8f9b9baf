package domain

import (
	"strings"
	"time"
)

// FunnelStage 是漏斗事件的阶段。
type FunnelStage string

const (
	StageCreated    FunnelStage = "recall.created"
	StageClicked    FunnelStage = "recall.clicked"
	StageClaimed    FunnelStage = "recall.claimed"
	StageWrittenOff FunnelStage = "recall.written_off"
	StageExpired    FunnelStage = "recall.expired"
)

// FunnelEvent 在召回记录推进一个漏斗阶段时发布。
// 清理任务发布的 expired 事件是批量汇总，Token 为空，Count 为影响行数。
// Token 可以直接领券，只能发到内部消息队列，不能推给看板。
type FunnelEvent struct {
	Stage      FunnelStage `json:"stage"`
	MerchantID int64       `json:"merchant_id"`
	RecallID   int64       `json:"recall_id,omitempty"`
	Token      string      `json:"token,omitempty"`
	UserName   string      `json:"user_name,omitempty"`
	Count      int64       `json:"count,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
	TraceID    string      `json:"trace_id,omitempty"`
}

// MetricLabel 返回不带 "recall." 前缀的阶段名。
func (s FunnelStage) MetricLabel() string {
	return strings.TrimPrefix(string(s), "recall.")
}
