package importer

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"recall/internal/service/recall/domain"
)

func buildSheet(t *testing.T, rows [][]any) *bytes.Reader {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return bytes.NewReader(buf.Bytes())
}

func TestReadOrders(t *testing.T) {
	r := buildSheet(t, [][]any{
		{"user_id", "name", "contact", "contact_type", "product", "product_type", "amount", "create_time"},
		{"u1", "张三", "13800000001", "mobile", "月卡", "game", "30.00", "2024-05-01 10:00:00"},
		{"", "", "", "", "", "", "", ""},
		{"u2", "李四", "13800000002", "mobile", "年卡", "game", "298", "2024-05-02"},
	})

	orders, err := NewXLSXOrderReader(time.UTC).ReadOrders(r, 7)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, int64(7), orders[0].MerchantID)
	assert.Equal(t, "u1", orders[0].UserID)
	assert.Equal(t, "月卡", orders[0].Product)
	assert.True(t, decimal.RequireFromString("30").Equal(orders[0].Amount))
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), orders[0].CreateTime)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), orders[1].CreateTime)
}

func TestReadOrdersChineseHeaders(t *testing.T) {
	r := buildSheet(t, [][]any{
		{"用户ID", "金额"},
		{"u9", "12.5"},
	})
	orders, err := NewXLSXOrderReader(time.UTC).ReadOrders(r, 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "u9", orders[0].UserID)
	assert.True(t, orders[0].CreateTime.IsZero())
}

func TestReadOrdersErrors(t *testing.T) {
	tests := []struct {
		name string
		rows [][]any
		want string
	}{
		{"missing user column", [][]any{{"name"}, {"x"}}, "user_id"},
		{"missing user id", [][]any{{"user_id", "name"}, {"", "x"}}, "第2行"},
		{"bad amount", [][]any{{"user_id", "amount"}, {"u1", "abc"}}, "金额"},
		{"bad time", [][]any{{"user_id", "create_time"}, {"u1", "yesterday"}}, "下单时间"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewXLSXOrderReader(time.UTC).ReadOrders(buildSheet(t, tt.rows), 1)
			require.Error(t, err)
			appErr, ok := domain.AsAppError(err)
			require.True(t, ok)
			assert.Contains(t, appErr.Message, tt.want)
		})
	}
}

func TestReadOrdersHeaderOnly(t *testing.T) {
	_, err := NewXLSXOrderReader(time.UTC).ReadOrders(buildSheet(t, [][]any{{"user_id"}}), 1)
	assert.ErrorIs(t, err, domain.ErrEmptyOrders)
}

func TestReadOrdersNotAWorkbook(t *testing.T) {
	_, err := NewXLSXOrderReader(time.UTC).ReadOrders(strings.NewReader("not a zip"), 1)
	assert.ErrorIs(t, err, domain.ErrInvalidSheet)
}

func TestParseExcelSerialDate(t *testing.T) {
	got, err := NewXLSXOrderReader(time.UTC).parseTime("45413")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), got)
}
