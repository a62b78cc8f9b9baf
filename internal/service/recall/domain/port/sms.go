package port

import (
	"context"

	"recall/internal/service/recall/domain"
)

// SMSMessage 是发给一个收件人的模板短信。
type SMSMessage struct {
	Mobile   string
	UserName string
	Product  string
	Coupon   string
	URL      string
}

// DispatchResult 是短信服务商返回的批量发送结果。
type DispatchResult struct {
	TotalCount int             `json:"total_count"`
	TotalFee   string          `json:"total_fee"`
	Unit       string          `json:"unit"`
	Data       []DispatchEntry `json:"data"`
	Skipped    int             `json:"skipped"` // 非手机号联系方式，未发送
}

type DispatchEntry struct {
	Code   int     `json:"code"`
	Msg    string  `json:"msg"`
	Count  int     `json:"count"`
	Fee    float64 `json:"fee"`
	Unit   string  `json:"unit"`
	Mobile string  `json:"mobile"`
	SID    int64   `json:"sid"`
}

// SMSDispatcher 把召回记录作为一批模板短信提交给服务商。
// 尽力而为，没有重试，也不保证送达。
type SMSDispatcher interface {
	Dispatch(ctx context.Context, recalls []*domain.Recall, landingURL func(token string) string) (*DispatchResult, error)
}
