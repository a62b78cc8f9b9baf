package interfaces

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"recall/internal/pkg/logger"
	"recall/internal/service/recall/application"
	"recall/internal/service/recall/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageRenderer 渲染落地页和错误页。
type pageRenderer struct {
	landing *template.Template
	failure *template.Template
}

func newPageRenderer() *pageRenderer {
	funcs := template.FuncMap{
		"datetime": func(t time.Time) string { return t.Format(time.DateTime) },
	}
	return &pageRenderer{
		landing: template.Must(template.New("landing.html").Funcs(funcs).ParseFS(templateFS, "templates/landing.html")),
		failure: template.Must(template.New("error.html").ParseFS(templateFS, "templates/error.html")),
	}
}

func (p *pageRenderer) renderLanding(ctx context.Context, w http.ResponseWriter, view *application.LandingView) {
	p.render(ctx, w, http.StatusOK, p.landing, view)
}

// renderError 业务错误展示错误信息，其余错误返回 500 和通用文案。
func (p *pageRenderer) renderError(ctx context.Context, w http.ResponseWriter, err error) {
	if appErr, ok := domain.AsAppError(err); ok {
		p.render(ctx, w, http.StatusOK, p.failure, map[string]string{"Message": appErr.Message})
		return
	}
	logger.Ctx(ctx).Error().Err(err).Msg("render landing failed")
	p.render(ctx, w, http.StatusInternalServerError, p.failure, map[string]string{"Message": internalErrorText})
}

func (p *pageRenderer) render(ctx context.Context, w http.ResponseWriter, code int, t *template.Template, data any) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("template", t.Name()).Msg("execute template failed")
		http.Error(w, internalErrorText, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}
