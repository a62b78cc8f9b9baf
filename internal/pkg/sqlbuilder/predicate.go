package sqlbuilder

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// op 是谓词的种类，只能通过下面的构造函数取得。
type op uint8

const (
	opEq op = iota + 1
	opNe
	opGt
	opGte
	opLt
	opLte
	opLike
	opIn
	opBetween
)

// Predicate 是一个带类型操作数的条件谓词。
type Predicate struct {
	op   op
	args []any
}

func Eq(v any) Predicate  { return Predicate{op: opEq, args: []any{v}} }
func Ne(v any) Predicate  { return Predicate{op: opNe, args: []any{v}} }
func Gt(v any) Predicate  { return Predicate{op: opGt, args: []any{v}} }
func Gte(v any) Predicate { return Predicate{op: opGte, args: []any{v}} }
func Lt(v any) Predicate  { return Predicate{op: opLt, args: []any{v}} }
func Lte(v any) Predicate { return Predicate{op: opLte, args: []any{v}} }

// Like 生成 `field LIKE ?`，操作数两侧自动包上 % 通配符。
func Like(s string) Predicate { return Predicate{op: opLike, args: []any{s}} }

// In 生成 `field IN (...)`；空列表不产生任何条件。
func In(vs ...any) Predicate { return Predicate{op: opIn, args: vs} }

// Between 生成 `field BETWEEN ? AND ?`，上下界都是闭区间。
func Between(lower, upper any) Predicate {
	return Predicate{op: opBetween, args: []any{lower, upper}}
}

// Conditions 是字段到条件值的映射，多个条目之间用 AND 连接。
//
// 值的解释规则:
//   - nil 或 nil 指针: 跳过该字段
//   - Predicate: 按谓词种类生成
//   - 切片/数组: 等价于 In，空切片跳过
//   - bool: 等值比较，true/false 转换为 1/0
//   - 其它标量: 等值比较
//
// 字段按字典序输出，保证同样的条件总是生成同样的 SQL。
type Conditions map[string]any

// Empty 报告这组条件是否不会生成任何谓词。
func (c Conditions) Empty() bool {
	clause, _ := buildPredicates(c)
	return clause == ""
}

func buildWhere(c Conditions) (string, []any) {
	clause, params := buildPredicates(c)
	if clause == "" {
		return "", params
	}
	return "WHERE " + clause, params
}

func buildPredicates(c Conditions) (string, []any) {
	if len(c) == 0 {
		return "", nil
	}
	fields := make([]string, 0, len(c))
	for f := range c {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	clauses := make([]string, 0, len(fields))
	var params []any
	for _, field := range fields {
		p, ok := toPredicate(c[field])
		if !ok {
			continue
		}
		clause, args, ok := p.render(field)
		if !ok {
			continue
		}
		clauses = append(clauses, clause)
		params = append(params, args...)
	}
	return strings.Join(clauses, " AND "), params
}

func toPredicate(v any) (Predicate, bool) {
	switch val := v.(type) {
	case nil:
		return Predicate{}, false
	case Predicate:
		return val, true
	case *Predicate:
		if val == nil {
			return Predicate{}, false
		}
		return *val, true
	case []byte:
		return Eq(val), true
	case string, bool:
		return Eq(val), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Predicate{}, false
		}
		return toPredicate(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return In(), true
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return In(items...), true
	}
	return Eq(v), true
}

func (p Predicate) render(field string) (string, []any, bool) {
	switch p.op {
	case opEq:
		return field + " = ?", normalize(p.args), true
	case opNe:
		return field + " != ?", normalize(p.args), true
	case opGt:
		return field + " > ?", normalize(p.args), true
	case opGte:
		return field + " >= ?", normalize(p.args), true
	case opLt:
		return field + " < ?", normalize(p.args), true
	case opLte:
		return field + " <= ?", normalize(p.args), true
	case opLike:
		return field + " LIKE ?", []any{fmt.Sprintf("%%%v%%", p.args[0])}, true
	case opIn:
		if len(p.args) == 0 {
			return "", nil, false
		}
		return fmt.Sprintf("%s IN (%s)", field, placeholders(len(p.args))), normalize(p.args), true
	case opBetween:
		return field + " BETWEEN ? AND ?", normalize(p.args), true
	}
	// 零值 Predicate{}
	return "", nil, false
}

func normalize(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if b, ok := a.(bool); ok {
			out[i] = boolToInt(b)
			continue
		}
		out[i] = a
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
