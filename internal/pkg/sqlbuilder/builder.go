// Package sqlbuilder 把声明式的条件映射翻译成带 ? 占位符的 SQL 和参数列表。
package sqlbuilder

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrEmptyRows   = errors.New("sqlbuilder: batch insert requires at least one row")
	ErrEmptyUpdate = errors.New("sqlbuilder: update requires at least one non-null field")
	ErrEmptyRow    = errors.New("sqlbuilder: insert requires at least one non-null field")
)

const DefaultPageSize = 20

// Row 是一行数据，列名到值。值为 nil 的列在 INSERT/UPDATE 中被忽略。
type Row map[string]any

// SelectQuery 描述一个 SELECT 语句。
type SelectQuery struct {
	Table   string
	Fields  []string // 为空时为 *
	Where   Conditions
	GroupBy []string
	Having  Conditions
	OrderBy string
	Limit   int
	Offset  int
}

// BuildSelect 生成 SELECT 语句。
func BuildSelect(q SelectQuery) (string, []any) {
	var sb strings.Builder
	fields := "*"
	if len(q.Fields) > 0 {
		fields = strings.Join(q.Fields, ", ")
	}
	fmt.Fprintf(&sb, "SELECT %s FROM %s", fields, q.Table)

	where, params := buildWhere(q.Where)
	if where != "" {
		sb.WriteString(" " + where)
	}
	if len(q.GroupBy) > 0 {
		sb.WriteString(" GROUP BY " + strings.Join(q.GroupBy, ", "))
		having, havingParams := buildPredicates(q.Having)
		if having != "" {
			sb.WriteString(" HAVING " + having)
			params = append(params, havingParams...)
		}
	}
	if q.OrderBy != "" {
		sb.WriteString(" ORDER BY " + q.OrderBy)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
		if q.Offset > 0 {
			fmt.Fprintf(&sb, " OFFSET %d", q.Offset)
		}
	}
	return sb.String(), params
}

// BuildCount 生成与 BuildSelect 相同过滤条件的计数语句，结果列名为 total。
func BuildCount(q SelectQuery) (string, []any) {
	where, params := buildWhere(q.Where)
	sql := "SELECT COUNT(*) AS total FROM " + q.Table
	if where != "" {
		sql += " " + where
	}
	return sql, params
}

// Paginated 是一次分页查询需要执行的两条语句。
type Paginated struct {
	DataSQL     string
	DataParams  []any
	CountSQL    string
	CountParams []any
	Page        int
	PageSize    int
}

// BuildPaginated 生成分页数据语句和计数语句。page 从 1 开始。
func BuildPaginated(q SelectQuery, page, pageSize int) Paginated {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q.Limit = pageSize
	q.Offset = (page - 1) * pageSize

	p := Paginated{Page: page, PageSize: pageSize}
	p.DataSQL, p.DataParams = BuildSelect(q)
	p.CountSQL, p.CountParams = BuildCount(q)
	return p
}

// BuildInsert 生成单行 INSERT，值为 nil 的列被省略，所以无法显式插入 NULL。
func BuildInsert(table string, row Row) (string, []any, error) {
	cols := settableColumns(row)
	if len(cols) == 0 {
		return "", nil, ErrEmptyRow
	}
	params := make([]any, len(cols))
	for i, c := range cols {
		params[i] = normalizeValue(row[c])
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders(len(cols)))
	return sql, params, nil
}

// BuildBatchInsert 生成多行 INSERT。列取自第一行，后续行按同样的列顺序取值，
// 缺少的列以 NULL 写入。
func BuildBatchInsert(table string, rows []Row) (string, []any, error) {
	if len(rows) == 0 {
		return "", nil, ErrEmptyRows
	}
	cols := settableColumns(rows[0])
	if len(cols) == 0 {
		return "", nil, ErrEmptyRow
	}
	rowPlaceholder := "(" + placeholders(len(cols)) + ")"
	values := make([]string, len(rows))
	params := make([]any, 0, len(rows)*len(cols))
	for i, r := range rows {
		values[i] = rowPlaceholder
		for _, c := range cols {
			params = append(params, normalizeValue(r[c]))
		}
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		table, strings.Join(cols, ", "), strings.Join(values, ", "))
	return sql, params, nil
}

// BuildUpdate 生成 UPDATE。where 为空时不带 WHERE 子句，会更新整张表，
// 需要限定范围的调用方必须自己保证 where 非空。
func BuildUpdate(table string, row Row, where Conditions) (string, []any, error) {
	cols := settableColumns(row)
	if len(cols) == 0 {
		return "", nil, ErrEmptyUpdate
	}
	sets := make([]string, len(cols))
	params := make([]any, 0, len(cols)+len(where))
	for i, c := range cols {
		sets[i] = c + " = ?"
		params = append(params, normalizeValue(row[c]))
	}
	sql := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", "))
	clause, whereParams := buildWhere(where)
	if clause != "" {
		sql += " " + clause
		params = append(params, whereParams...)
	}
	return sql, params, nil
}

func settableColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for c, v := range row {
		if isNil(v) {
			continue
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func normalizeValue(v any) any {
	if isNil(v) {
		return nil
	}
	return normalize([]any{v})[0]
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
