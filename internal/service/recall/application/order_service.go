package application

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"recall/internal/pkg/logger"
	"recall/internal/service/recall/domain"
	"recall/internal/service/recall/domain/port"
)

const defaultTopProducts = 10

var orderTimeLayouts = []string{time.DateTime, time.RFC3339, time.DateOnly}

// OrderService 负责订单导入和订单统计。
type OrderService struct {
	repo   domain.OrderRepository
	sheets port.OrderSheetReader
	tracer trace.Tracer
	now    func() time.Time
}

func NewOrderService(repo domain.OrderRepository, sheets port.OrderSheetReader, tracer trace.Tracer) *OrderService {
	return &OrderService{repo: repo, sheets: sheets, tracer: tracer, now: time.Now}
}

// CreateOrders 批量写入订单，订单列表为空时返回 ErrEmptyOrders。
func (s *OrderService) CreateOrders(ctx context.Context, req CreateOrdersRequest) (*CreateOrdersResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.CreateOrders")
	defer span.End()
	span.SetAttributes(attribute.Int("orders.count", len(req.Orders)))

	if len(req.Orders) == 0 {
		return nil, domain.ErrEmptyOrders
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	now := s.now()
	orders := make([]*domain.Order, len(req.Orders))
	for i, in := range req.Orders {
		o := &domain.Order{
			MerchantID:  in.MerchantID,
			OrderNo:     in.OrderID,
			UserID:      in.UserID,
			Name:        in.Name,
			Contact:     in.Contact,
			ContactType: in.ContactType,
			Product:     in.Product,
			ProductType: in.ProductType,
			Amount:      in.Amount,
			CreateTime:  now,
		}
		if in.CreateTime != "" {
			t, err := parseOrderTime(in.CreateTime)
			if err != nil {
				return nil, domain.InvalidArgument(fmt.Sprintf("第%d笔订单的下单时间格式不正确", i+1))
			}
			o.CreateTime = t
		}
		orders[i] = o
	}
	return s.persist(ctx, orders)
}

// ImportOrders 解析上传的表格后写入。
func (s *OrderService) ImportOrders(ctx context.Context, merchantID int64, r io.Reader) (*CreateOrdersResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.ImportOrders")
	defer span.End()

	if merchantID <= 0 {
		return nil, domain.InvalidArgument("商户ID不能为空")
	}
	orders, err := s.sheets.ReadOrders(r, merchantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	now := s.now()
	for _, o := range orders {
		if o.CreateTime.IsZero() {
			o.CreateTime = now
		}
	}
	return s.persist(ctx, orders)
}

func (s *OrderService) persist(ctx context.Context, orders []*domain.Order) (*CreateOrdersResult, error) {
	n, err := s.repo.BatchCreate(ctx, orders)
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Int64("inserted", n).Msg("orders saved")
	return &CreateOrdersResult{Inserted: n}, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetOrder")
	defer span.End()
	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
	}
	return o, err
}

// GetOrderByMerchantOrderNo 按商家侧订单号查找订单。
func (s *OrderService) GetOrderByMerchantOrderNo(ctx context.Context, merchantID int64, orderNo string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetOrderByMerchantOrderNo")
	defer span.End()
	if merchantID <= 0 || orderNo == "" {
		return nil, domain.InvalidArgument("商户ID和订单号不能为空")
	}
	o, err := s.repo.FindByMerchantOrderNo(ctx, merchantID, orderNo)
	if err != nil {
		span.RecordError(err)
	}
	return o, err
}

// UpdateOrder 更正一笔订单，订单不存在时返回 ErrOrderNotFound。
func (s *OrderService) UpdateOrder(ctx context.Context, id int64, upd domain.OrderUpdate) error {
	ctx, span := s.tracer.Start(ctx, "service.UpdateOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", id))

	if id <= 0 {
		return domain.InvalidArgument("订单ID不能为空")
	}
	if upd.Empty() {
		return domain.InvalidArgument("没有需要更新的字段")
	}
	if upd.Amount != nil && upd.Amount.IsNegative() {
		return domain.InvalidArgument("订单金额不能为负数")
	}
	n, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if n == 0 {
		// 值未变化时 MySQL 也返回 0，再查一次区分不存在
		if _, err := s.repo.FindByID(ctx, id); err != nil {
			return err
		}
	}
	logger.Ctx(ctx).Info().Int64("order_id", id).Msg("order updated")
	return nil
}

func (s *OrderService) GetUserOrders(ctx context.Context, merchantID int64, userID string, limit int) ([]*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetUserOrders")
	defer span.End()
	if userID == "" {
		return nil, domain.InvalidArgument("用户ID不能为空")
	}
	out, err := s.repo.UserOrders(ctx, merchantID, userID, limit)
	if err != nil {
		span.RecordError(err)
	}
	return out, err
}

func (s *OrderService) QueryOrders(ctx context.Context, f domain.OrderFilter, page, pageSize int) (*domain.Page[*domain.Order], error) {
	ctx, span := s.tracer.Start(ctx, "service.QueryOrders")
	defer span.End()
	p, err := s.repo.Query(ctx, f, page, pageSize)
	if err != nil {
		span.RecordError(err)
	}
	return p, err
}

// InactiveUsers 返回 inactiveDays 天内没有下单的用户。
func (s *OrderService) InactiveUsers(ctx context.Context, merchantID int64, inactiveDays, limit int) ([]*domain.InactiveUser, error) {
	ctx, span := s.tracer.Start(ctx, "service.InactiveUsers")
	defer span.End()
	span.SetAttributes(attribute.Int64("merchant.id", merchantID), attribute.Int("inactive_days", inactiveDays))

	if inactiveDays <= 0 {
		return nil, domain.InvalidArgument("未活跃天数必须大于0")
	}
	cutoff := s.now().AddDate(0, 0, -inactiveDays)
	out, err := s.repo.InactiveUsers(ctx, merchantID, cutoff, limit)
	if err != nil {
		span.RecordError(err)
	}
	return out, err
}

// OrderStats 汇总销售额、按日销售额和热销商品。
func (s *OrderService) OrderStats(ctx context.Context, merchantID int64, r domain.DateRange, topN int) (*OrderStatsResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.OrderStats")
	defer span.End()

	if topN <= 0 {
		topN = defaultTopProducts
	}
	sales, err := s.repo.SalesStats(ctx, merchantID, r)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	daily, err := s.repo.DailySales(ctx, merchantID, r)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	top, err := s.repo.TopProducts(ctx, merchantID, topN, r)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &OrderStatsResult{Sales: sales, Daily: daily, TopProducts: top}, nil
}

func parseOrderTime(s string) (time.Time, error) {
	var err error
	for _, layout := range orderTimeLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
