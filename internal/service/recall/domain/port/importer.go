package port

import (
	"io"

	"recall/internal/service/recall/domain"
)

// OrderSheetReader 从表格文件中解析订单。
type OrderSheetReader interface {
	ReadOrders(r io.Reader, merchantID int64) ([]*domain.Order, error)
}
