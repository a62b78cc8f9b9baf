package interfaces

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/skip2/go-qrcode"

	"recall/internal/service/recall/application"
	"recall/internal/service/recall/domain"
)

const (
	maxUploadSize = 10 << 20
	qrCodeSize    = 256
)

type MerchantAPI interface {
	Login(ctx context.Context, req application.LoginRequest) (*application.LoginResult, error)
	GetMerchantByID(ctx context.Context, id int64) (*domain.Merchant, error)
	GetMerchantByUsername(ctx context.Context, username string) (*domain.Merchant, error)
	UpdateMerchant(ctx context.Context, id int64, upd domain.MerchantUpdate) error
	DeleteMerchant(ctx context.Context, id int64) error
	QueryMerchants(ctx context.Context, f domain.MerchantFilter, page, pageSize int) (*domain.Page[*domain.Merchant], error)
	MerchantStats(ctx context.Context, merchantID int64) (*domain.MerchantStats, error)
}

type OrderAPI interface {
	CreateOrders(ctx context.Context, req application.CreateOrdersRequest) (*application.CreateOrdersResult, error)
	ImportOrders(ctx context.Context, merchantID int64, r io.Reader) (*application.CreateOrdersResult, error)
	QueryOrders(ctx context.Context, f domain.OrderFilter, page, pageSize int) (*domain.Page[*domain.Order], error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	GetOrderByMerchantOrderNo(ctx context.Context, merchantID int64, orderNo string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, id int64, upd domain.OrderUpdate) error
	GetUserOrders(ctx context.Context, merchantID int64, userID string, limit int) ([]*domain.Order, error)
	InactiveUsers(ctx context.Context, merchantID int64, inactiveDays, limit int) ([]*domain.InactiveUser, error)
	OrderStats(ctx context.Context, merchantID int64, r domain.DateRange, topN int) (*application.OrderStatsResult, error)
}

type RecallAPI interface {
	CreateRecalls(ctx context.Context, req application.CreateRecallsRequest) (*application.CreateRecallsResult, error)
	GetRecall(ctx context.Context, token string) (*domain.Recall, error)
	OpenLanding(ctx context.Context, token string) (*application.LandingView, error)
	ClaimCoupon(ctx context.Context, req application.ClaimRequest) error
	WriteOff(ctx context.Context, token string) error
	LandingURL(token string) string
	RecallStats(ctx context.Context, merchantID int64, r domain.DateRange) (*application.RecallStatsResult, error)
	QueryRecalls(ctx context.Context, f domain.RecallFilter, page, pageSize int) (*domain.Page[*domain.Recall], error)
	UserRecallHistory(ctx context.Context, merchantID int64, contact, contactType string, limit int) ([]*domain.Recall, error)
	ExpiredRecalls(ctx context.Context, before time.Time, limit int) ([]*domain.Recall, error)
	RecallDetail(ctx context.Context, token string) (*application.RecallDetailResult, error)
}

type TargetingAPI interface {
	RecallCandidates(ctx context.Context, q application.CandidateQuery) (*application.CandidatesResult, error)
}

// RecallHandler 封装召回服务的 HTTP 接口
type RecallHandler struct {
	merchants MerchantAPI
	orders    OrderAPI
	recalls   RecallAPI
	targeting TargetingAPI
	hub       *FunnelHub
	pages     *pageRenderer
}

func NewRecallHandler(merchants MerchantAPI, orders OrderAPI, recalls RecallAPI, targeting TargetingAPI, hub *FunnelHub) *RecallHandler {
	return &RecallHandler{
		merchants: merchants,
		orders:    orders,
		recalls:   recalls,
		targeting: targeting,
		hub:       hub,
		pages:     newPageRenderer(),
	}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *RecallHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /login", h.handleLogin)
	mux.HandleFunc("GET /merchants", h.handleQueryMerchants)
	mux.HandleFunc("GET /merchants/stats", h.handleMerchantStats)
	mux.HandleFunc("GET /merchants/lookup", h.handleMerchantByUsername)
	mux.HandleFunc("GET /merchants/{id}", h.handleGetMerchant)
	mux.HandleFunc("POST /merchants/{id}/update", h.handleUpdateMerchant)
	mux.HandleFunc("POST /merchants/{id}/delete", h.handleDeleteMerchant)

	mux.HandleFunc("POST /orders/create", h.handleCreateOrders)
	mux.HandleFunc("POST /orders/import", h.handleImportOrders)
	mux.HandleFunc("GET /orders", h.handleQueryOrders)
	mux.HandleFunc("GET /orders/user", h.handleUserOrders)
	mux.HandleFunc("GET /orders/inactive", h.handleInactiveUsers)
	mux.HandleFunc("GET /orders/stats", h.handleOrderStats)
	mux.HandleFunc("GET /orders/lookup", h.handleOrderByNo)
	mux.HandleFunc("GET /orders/{id}", h.handleGetOrder)
	mux.HandleFunc("POST /orders/{id}/update", h.handleUpdateOrder)

	mux.HandleFunc("POST /recalls/create", h.handleCreateRecalls)
	mux.HandleFunc("GET /recalls", h.handleQueryRecalls)
	mux.HandleFunc("GET /recalls/candidates", h.handleCandidates)
	mux.HandleFunc("GET /recalls/stats", h.handleRecallStats)
	mux.HandleFunc("GET /recalls/history", h.handleRecallHistory)
	mux.HandleFunc("GET /recalls/expired", h.handleExpiredRecalls)
	mux.HandleFunc("GET /recalls/token/{token}", h.handleRecallDetail)

	mux.HandleFunc("GET /landing/{token}", h.handleLanding)
	mux.HandleFunc("GET /landing/{token}/qrcode.png", h.handleQRCode)
	mux.HandleFunc("POST /coupon/get", h.handleClaimCoupon)
	mux.HandleFunc("POST /coupon/writeoff", h.handleWriteOff)

	if h.hub != nil {
		mux.HandleFunc("GET /ws/funnel", h.hub.ServeWS)
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.InvalidArgument("请求体不是合法的JSON")
	}
	return nil
}

func (h *RecallHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req application.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.merchants.Login(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		StatusCode: statusOK,
		Username:   res.Username,
		Name:       res.Name,
		Token:      res.Token,
		Message:    domain.MsgLoginSuccess,
	})
}

func (h *RecallHandler) handleQueryMerchants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	page, err := queryInt(q, "page", 1)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	pageSize, err := queryInt(q, "page_size", 20)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.merchants.QueryMerchants(ctx, domain.MerchantFilter{
		Industry: q.Get("industry"),
		NameLike: q.Get("name"),
	}, page, pageSize)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

func (h *RecallHandler) handleMerchantStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := queryInt64(r.URL.Query(), "merchant_id")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.merchants.MerchantStats(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

func (h *RecallHandler) handleGetMerchant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.merchants.GetMerchantByID(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

func (h *RecallHandler) handleMerchantByUsername(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.merchants.GetMerchantByUsername(ctx, r.URL.Query().Get("username"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

// updateMerchantBody 中缺省的字段不修改。
type updateMerchantBody struct {
	Name     *string `json:"name"`
	Industry *string `json:"industry"`
	Password *string `json:"password"`
}

func (h *RecallHandler) handleUpdateMerchant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var body updateMerchantBody
	if err := decodeBody(r, &body); err != nil {
		writeError(ctx, w, err)
		return
	}
	upd := domain.MerchantUpdate{Name: body.Name, Industry: body.Industry, Password: body.Password}
	if err := h.merchants.UpdateMerchant(ctx, id, upd); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, map[string]int64{"id": id})
}

func (h *RecallHandler) handleDeleteMerchant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.merchants.DeleteMerchant(ctx, id); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, map[string]int64{"id": id})
}

func (h *RecallHandler) handleCreateOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req application.CreateOrdersRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.orders.CreateOrders(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

// handleImportOrders 接收 multipart 表单: merchant_id 和 xlsx 文件 file。
func (h *RecallHandler) handleImportOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(ctx, w, domain.InvalidArgument("上传的表单不合法"))
		return
	}
	merchantID, err := requireMerchantID(r.MultipartForm.Value)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(ctx, w, domain.InvalidArgument("请上传订单文件"))
		return
	}
	defer file.Close()

	res, err := h.orders.ImportOrders(ctx, merchantID, file)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

func (h *RecallHandler) handleQueryOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	merchantID, err := requireMerchantID(q)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	rng, err := dateRange(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	page, err := queryInt(q, "page", 1)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	pageSize, err := queryInt(q, "page_size", 20)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.orders.QueryOrders(ctx, domain.OrderFilter{
		MerchantID:  merchantID,
		UserID:      q.Get("user_id"),
		ProductType: q.Get("product_type"),
		Range:       rng,
	}, page, pageSize)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

func (h *RecallHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

// handleOrderByNo 处理 /orders/lookup?merchant_id=&order_id=。
func (h *RecallHandler) handleOrderByNo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	merchantID, err := requireMerchantID(q)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.orders.GetOrderByMerchantOrderNo(ctx, merchantID, q.Get("order_id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

func (h *RecallHandler) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var upd domain.OrderUpdate
	if err := decodeBody(r, &upd); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.orders.UpdateOrder(ctx, id, upd); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, map[string]int64{"id": id})
}

func (h *RecallHandler) handleUserOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	merchantID, err := requireMerchantID(q)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	limit, err := queryInt(q, "limit", 50)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.orders.GetUserOrders(ctx, merchantID, q.Get("user_id"), limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

func (h *RecallHandler) handleInactiveUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	merchantID, err := requireMerchantID(q)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	days, err := queryInt(q, "inactive_days", 30)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	limit, err := queryInt(q, "limit", 100)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.orders.InactiveUsers(ctx, merchantID, days, limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

func (h *RecallHandler) handleOrderStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	merchantID, err := requireMerchantID(q)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	rng, err := dateRange(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	top, err := queryInt(q, "top", 0)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.orders.OrderStats(ctx, merchantID, rng, top)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

func (h *RecallHandler) handleCreateRecalls(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req application.CreateRecallsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.recalls.CreateRecalls(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

func (h *RecallHandler) handleQueryRecalls(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	merchantID, err := requireMerchantID(q)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	rng, err := dateRange(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	clicked, err := queryBool(q, "click")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	claimed, err := queryBool(q, "claim")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	page, err := queryInt(q, "page", 1)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	pageSize, err := queryInt(q, "page_size", 20)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.recalls.QueryRecalls(ctx, domain.RecallFilter{
		MerchantID:  merchantID,
		Status:      q.Get("status"),
		Clicked:     clicked,
		Claimed:     claimed,
		ProductType: q.Get("product_type"),
		Range:       rng,
	}, page, pageSize)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

func (h *RecallHandler) handleCandidates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	merchantID, err := queryInt64(q, "merchant_id")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	days, err := queryInt(q, "inactive_days", 30)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	limit, err := queryInt(q, "limit", 0)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.targeting.RecallCandidates(ctx, application.CandidateQuery{
		MerchantID:   merchantID,
		InactiveDays: days,
		Limit:        limit,
		Rule:         q.Get("rule"),
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

func (h *RecallHandler) handleRecallStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID, err := requireMerchantID(r.URL.Query())
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	rng, err := dateRange(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.recalls.RecallStats(ctx, merchantID, rng)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

func (h *RecallHandler) handleRecallHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	merchantID, err := requireMerchantID(q)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	limit, err := queryInt(q, "limit", 0)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	contactType := q.Get("contact_type")
	if contactType == "" {
		contactType = domain.ContactTypeMobile
	}
	res, err := h.recalls.UserRecallHistory(ctx, merchantID, q.Get("contact"), contactType, limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

// handleExpiredRecalls 处理 /recalls/expired?before=YYYY-MM-DD&limit=，before 缺省为当前时间。
func (h *RecallHandler) handleExpiredRecalls(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	var before time.Time
	if v := q.Get("before"); v != "" {
		t, err := time.ParseInLocation(dateLayout, v, time.Local)
		if err != nil {
			writeError(ctx, w, domain.InvalidArgument("before日期格式应为YYYY-MM-DD"))
			return
		}
		before = t
	}
	limit, err := queryInt(q, "limit", 100)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := h.recalls.ExpiredRecalls(ctx, before, limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

func (h *RecallHandler) handleRecallDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.recalls.RecallDetail(ctx, r.PathValue("token"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeData(w, res)
}

// handleLanding 渲染落地页。券不可用时渲染错误页，HTTP 状态码仍为 200。
func (h *RecallHandler) handleLanding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.recalls.OpenLanding(ctx, r.PathValue("token"))
	if err != nil {
		h.pages.renderError(ctx, w, err)
		return
	}
	h.pages.renderLanding(ctx, w, view)
}

func (h *RecallHandler) handleQRCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := r.PathValue("token")
	if _, err := h.recalls.GetRecall(ctx, token); err != nil {
		if _, ok := domain.AsAppError(err); ok {
			http.NotFound(w, r)
			return
		}
		writeError(ctx, w, err)
		return
	}
	png, err := qrcode.Encode(h.recalls.LandingURL(token), qrcode.Medium, qrCodeSize)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age="+maxAgeSeconds(domain.TokenTTL))
	_, _ = w.Write(png)
}

func (h *RecallHandler) handleClaimCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req application.ClaimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.recalls.ClaimCoupon(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{StatusCode: statusOK, Message: domain.MsgClaimSuccess})
}

func (h *RecallHandler) handleWriteOff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if err := h.recalls.WriteOff(ctx, req.Token); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{StatusCode: statusOK, Message: domain.MsgWriteOffSuccess})
}

func maxAgeSeconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}
