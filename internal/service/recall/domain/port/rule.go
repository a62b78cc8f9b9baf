package port

import "recall/internal/service/recall/domain"

// RuleEngine 对用户画像求值一条筛选表达式。
type RuleEngine interface {
	// Validate 编译表达式，语法或类型错误时返回错误。
	Validate(expr string) error
	Evaluate(expr string, fact PortraitFact) (bool, error)
}

// PortraitFact 是规则表达式可以引用的变量。
type PortraitFact struct {
	Portrait     domain.UserPortrait
	TotalAmount  float64
	TotalOrders  int64
	InactiveDays int64
}
