package adapter

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"recall/internal/pkg/httpclient"
	"recall/internal/pkg/logger"
	"recall/internal/pkg/metrics"
	"recall/internal/service/recall/domain"
	"recall/internal/service/recall/domain/port"
)

const (
	multiSendPath = "/v2/sms/multi_send.json"
	tplGetPath    = "/v2/tpl/get.json"
)

// ErrSMSNotConfigured 表示没有配置云片 apikey 或模板。
var ErrSMSNotConfigured = errors.New("yunpian: api key or template not configured")

type YunpianConfig struct {
	BaseURL string
	APIKey  string
	TplID   string
	// TplContent 是已审核模板的正文，为空时按 TplID 向云片查询一次并缓存。
	TplContent string
}

// FormPoster 是 httpclient.Client 的表单提交能力。
type FormPoster interface {
	PostForm(ctx context.Context, endpoint string, form url.Values) (*httpclient.Response, error)
}

// YunpianSMSAdapter 用云片 multi_send 接口实现 port.SMSDispatcher:
// 每个收件人按模板渲染自己的正文，整批在一次请求里提交。
type YunpianSMSAdapter struct {
	client FormPoster
	cfg    YunpianConfig

	mu      sync.Mutex
	content string
}

func NewYunpianSMSAdapter(client FormPoster, cfg YunpianConfig) *YunpianSMSAdapter {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &YunpianSMSAdapter{client: client, cfg: cfg, content: cfg.TplContent}
}

// yunpianError 是云片在 4xx 时返回的错误体。
type yunpianError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail"`
}

type yunpianTemplate struct {
	TplID       int64  `json:"tpl_id"`
	TplContent  string `json:"tpl_content"`
	CheckStatus string `json:"check_status"`
}

// Dispatch 只发送联系方式为手机号的记录，其余计入 Skipped。
func (a *YunpianSMSAdapter) Dispatch(ctx context.Context, recalls []*domain.Recall, landingURL func(token string) string) (*port.DispatchResult, error) {
	messages, skipped := collectMessages(recalls, landingURL)
	result := &port.DispatchResult{Skipped: skipped, Data: []port.DispatchEntry{}}
	if skipped > 0 {
		metrics.SMSDispatched.WithLabelValues("skipped").Add(float64(skipped))
	}
	if len(messages) == 0 {
		return result, nil
	}
	if a.cfg.APIKey == "" || (a.cfg.TplID == "" && a.cfg.TplContent == "") {
		return result, ErrSMSNotConfigured
	}

	content, err := a.template(ctx)
	if err != nil {
		metrics.SMSDispatched.WithLabelValues("failed").Add(float64(len(messages)))
		return result, err
	}
	batch, err := a.multiSend(ctx, content, messages)
	if err != nil {
		metrics.SMSDispatched.WithLabelValues("failed").Add(float64(len(messages)))
		return result, err
	}
	metrics.SMSDispatched.WithLabelValues("sent").Add(float64(batch.TotalCount))
	batch.Skipped = skipped
	if batch.Data == nil {
		batch.Data = []port.DispatchEntry{}
	}
	return batch, nil
}

func collectMessages(recalls []*domain.Recall, landingURL func(string) string) ([]port.SMSMessage, int) {
	var (
		out     []port.SMSMessage
		skipped int
	)
	for _, r := range recalls {
		if r.ContactType != domain.ContactTypeMobile || r.Contact == "" {
			skipped++
			continue
		}
		coupon, _ := r.CouponLabel()
		out = append(out, port.SMSMessage{
			Mobile:   r.Contact,
			UserName: r.DisplayName(),
			Product:  r.Product,
			Coupon:   coupon,
			URL:      landingURL(r.Token),
		})
	}
	return out, skipped
}

// RenderText 把模板里的 #username# #product# #coupon# #url# 替换成收件人自己的值。
func RenderText(content string, m port.SMSMessage) string {
	return strings.NewReplacer(
		"#username#", m.UserName,
		"#product#", m.Product,
		"#coupon#", m.Coupon,
		"#url#", m.URL,
	).Replace(content)
}

// template 返回模板正文，未配置时查询一次后缓存，查询失败不缓存。
func (a *YunpianSMSAdapter) template(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.content != "" {
		return a.content, nil
	}

	form := url.Values{}
	form.Set("apikey", a.cfg.APIKey)
	form.Set("tpl_id", a.cfg.TplID)
	body, err := a.post(ctx, tplGetPath, form)
	if err != nil {
		return "", err
	}
	var tpl yunpianTemplate
	if err := json.Unmarshal(body, &tpl); err != nil {
		return "", errors.Wrap(err, "decode yunpian template")
	}
	if tpl.TplContent == "" {
		return "", errors.Errorf("yunpian: template %s has no content", a.cfg.TplID)
	}
	a.content = tpl.TplContent
	return a.content, nil
}

// multiSend 的 mobile 和 text 按位置一一对应，每条正文单独 urlencode 后用逗号连接。
func (a *YunpianSMSAdapter) multiSend(ctx context.Context, content string, messages []port.SMSMessage) (*port.DispatchResult, error) {
	mobiles := make([]string, len(messages))
	texts := make([]string, len(messages))
	for i, m := range messages {
		mobiles[i] = m.Mobile
		texts[i] = url.QueryEscape(RenderText(content, m))
	}
	form := url.Values{}
	form.Set("apikey", a.cfg.APIKey)
	form.Set("mobile", strings.Join(mobiles, ","))
	form.Set("text", strings.Join(texts, ","))

	start := time.Now()
	body, err := a.post(ctx, multiSendPath, form)
	metrics.SMSDispatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	var out port.DispatchResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.Wrap(err, "decode yunpian response")
	}
	return &out, nil
}

func (a *YunpianSMSAdapter) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	resp, err := a.client.PostForm(ctx, a.cfg.BaseURL+path, form)
	if err != nil {
		if resp != nil {
			var pe yunpianError
			if json.Unmarshal(resp.Body, &pe) == nil && pe.Code != 0 {
				logger.Ctx(ctx).Error().Int("code", pe.Code).Str("detail", pe.Detail).Str("path", path).Msg("yunpian rejected request")
				return nil, errors.Errorf("yunpian: code %d: %s", pe.Code, pe.Msg)
			}
		}
		return nil, errors.Wrap(err, "yunpian "+path)
	}
	return resp.Body, nil
}
