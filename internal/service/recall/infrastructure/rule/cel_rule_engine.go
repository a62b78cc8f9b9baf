package rule

import (
	"strings"

	"github.com/google/cel-go/cel"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"recall/internal/service/recall/domain"
	"recall/internal/service/recall/domain/port"
)

// CELRuleEngine 是 port.RuleEngine 的 cel-go 实现。
// 表达式可以引用的变量:
//
//	user_value, user_status, product_type, industry  string
//	total_amount                                     double
//	total_orders, inactive_days                      int
//	extra                                            map(string, dyn)
//
// 例如 `user_value == "high" && inactive_days > 60`。
type CELRuleEngine struct {
	env      *cel.Env
	programs *lru.Cache[string, cel.Program]
}

const (
	// 表达式来自查询参数，缓存和长度都要设上限
	defaultProgramCacheSize = 256
	maxRuleLength           = 1024
)

func NewCELRuleEngine() (*CELRuleEngine, error) {
	return newCELRuleEngine(defaultProgramCacheSize)
}

func newCELRuleEngine(cacheSize int) (*CELRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("user_value", cel.StringType),
		cel.Variable("user_status", cel.StringType),
		cel.Variable("product_type", cel.StringType),
		cel.Variable("industry", cel.StringType),
		cel.Variable("total_amount", cel.DoubleType),
		cel.Variable("total_orders", cel.IntType),
		cel.Variable("inactive_days", cel.IntType),
		cel.Variable("extra", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}
	programs, err := lru.New[string, cel.Program](cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create program cache")
	}
	return &CELRuleEngine{env: env, programs: programs}, nil
}

func (e *CELRuleEngine) Validate(expr string) error {
	_, err := e.program(expr)
	return err
}

// Evaluate 对一个画像求值，编译好的程序按表达式文本缓存。
func (e *CELRuleEngine) Evaluate(expr string, fact port.PortraitFact) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	extra := fact.Portrait.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	out, _, err := prg.Eval(map[string]any{
		"user_value":    fact.Portrait.UserValue,
		"user_status":   fact.Portrait.UserStatus,
		"product_type":  fact.Portrait.ProductType,
		"industry":      fact.Portrait.Industry,
		"total_amount":  fact.TotalAmount,
		"total_orders":  fact.TotalOrders,
		"inactive_days": fact.InactiveDays,
		"extra":         extra,
	})
	if err != nil {
		return false, errors.Wrapf(err, "evaluate %q", expr)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("rule %q did not produce a bool", expr)
	}
	return matched, nil
}

func (e *CELRuleEngine) program(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.Wrap(domain.ErrInvalidRule, "empty expression")
	}

	if len(expr) > maxRuleLength {
		return nil, errors.Wrapf(domain.ErrInvalidRule, "expression longer than %d bytes", maxRuleLength)
	}
	if prg, ok := e.programs.Get(expr); ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, errors.Wrap(domain.ErrInvalidRule, iss.Err().Error())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Wrapf(domain.ErrInvalidRule, "expression type is %s, want bool", ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(domain.ErrInvalidRule, err.Error())
	}

	e.programs.Add(expr, prg)
	return prg, nil
}
