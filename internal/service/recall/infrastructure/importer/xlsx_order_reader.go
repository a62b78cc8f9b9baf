// Package importer 解析商家上传的订单表格。
package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"recall/internal/service/recall/domain"
)

// 表头别名，英文列名和常见的中文列名都可以识别。
var headerAliases = map[string]string{
	"order_id":     "order_id",
	"订单号":          "order_id",
	"user_id":      "user_id",
	"用户id":         "user_id",
	"name":         "name",
	"用户名":          "name",
	"contact":      "contact",
	"联系方式":         "contact",
	"contact_type": "contact_type",
	"联系方式类型":       "contact_type",
	"product":      "product",
	"商品":           "product",
	"product_type": "product_type",
	"商品类型":         "product_type",
	"amount":       "amount",
	"金额":           "amount",
	"create_time":  "create_time",
	"下单时间":         "create_time",
}

var timeLayouts = []string{
	time.DateTime,
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
	time.DateOnly,
	"2006/01/02",
	time.RFC3339,
}

// XLSXOrderReader 读取第一个工作表，首行为表头，之后每行一笔订单。空行跳过。
type XLSXOrderReader struct {
	loc *time.Location
}

func NewXLSXOrderReader(loc *time.Location) *XLSXOrderReader {
	if loc == nil {
		loc = time.Local
	}
	return &XLSXOrderReader{loc: loc}
}

func (x *XLSXOrderReader) ReadOrders(r io.Reader, merchantID int64) ([]*domain.Order, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(domain.ErrInvalidSheet, err.Error())
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.ErrInvalidSheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrap(domain.ErrInvalidSheet, err.Error())
	}
	if len(rows) == 0 {
		return nil, domain.ErrEmptyOrders
	}

	columns := make(map[string]int)
	for i, h := range rows[0] {
		if field, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			columns[field] = i
		}
	}
	if _, ok := columns["user_id"]; !ok {
		return nil, domain.InvalidArgument("订单表格缺少 user_id 列")
	}

	var orders []*domain.Order
	for n, row := range rows[1:] {
		cell := func(field string) string {
			i, ok := columns[field]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		if isBlank(row) {
			continue
		}
		line := n + 2
		o := &domain.Order{
			MerchantID:  merchantID,
			OrderNo:     cell("order_id"),
			UserID:      cell("user_id"),
			Name:        cell("name"),
			Contact:     cell("contact"),
			ContactType: cell("contact_type"),
			Product:     cell("product"),
			ProductType: cell("product_type"),
			Amount:      decimal.Zero,
		}
		if o.UserID == "" {
			return nil, domain.InvalidArgument(fmt.Sprintf("第%d行缺少用户ID", line))
		}
		if s := cell("amount"); s != "" {
			amount, err := decimal.NewFromString(s)
			if err != nil {
				return nil, domain.InvalidArgument(fmt.Sprintf("第%d行金额格式不正确: %s", line, s))
			}
			o.Amount = amount
		}
		if s := cell("create_time"); s != "" {
			t, err := x.parseTime(s)
			if err != nil {
				return nil, domain.InvalidArgument(fmt.Sprintf("第%d行下单时间格式不正确: %s", line, s))
			}
			o.CreateTime = t
		}
		orders = append(orders, o)
	}
	if len(orders) == 0 {
		return nil, domain.ErrEmptyOrders
	}
	return orders, nil
}

// parseTime 支持常见的文本格式和 Excel 日期序列号。
func (x *XLSXOrderReader) parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, x.loc); err == nil {
			return t, nil
		}
	}
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, errors.Errorf("unrecognized time %q", s)
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, x.loc), nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
