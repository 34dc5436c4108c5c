// internal/service/reservation/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"taller/internal/pkg/logger"
	"taller/internal/service/reservation/application"
	"taller/internal/service/reservation/domain"
)

const serviceName = "reservation-service"

// ReservationHandler 封装了预约服务的 HTTP 处理器
type ReservationHandler struct {
	service *application.ReservationService
	query   *application.ReservationQueryService
}

// NewReservationHandler 创建一个新的 HTTP 处理器实例
func NewReservationHandler(service *application.ReservationService, query *application.ReservationQueryService) *ReservationHandler {
	return &ReservationHandler{service: service, query: query}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *ReservationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/materials", h.listMaterials)
	mux.HandleFunc("/materials/restock", h.restock)
	mux.HandleFunc("/subjects", h.listSubjects)

	mux.HandleFunc("/builder/new", h.newBuilder)
	mux.HandleFunc("/builder/add_line", h.addLine)
	mux.HandleFunc("/builder/remove_line", h.removeLine)
	mux.HandleFunc("/builder/reset", h.resetBuilder)
	mux.HandleFunc("/builder/submit", h.submit)

	mux.HandleFunc("/reservations/search", h.search)
	mux.HandleFunc("/dashboard", h.dashboard)
}

// principalFromRequest 从请求头取出外部认证服务注入的主体
// 核心操作全部显式接收主体，不依赖任何隐式会话
func principalFromRequest(r *http.Request) (domain.Principal, bool) {
	p := domain.Principal{
		ID:   r.Header.Get("X-User-Id"),
		Name: r.Header.Get("X-User-Name"),
		Role: r.Header.Get("X-User-Role"),
	}
	if p.Role == "" {
		p.Role = domain.RoleInstructor
	}
	return p, p.ID != ""
}

func (h *ReservationHandler) listMaterials(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.ListMaterials")
	defer span.End()

	materials, err := h.service.ListMaterials(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, materials)
}

func (h *ReservationHandler) listSubjects(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.ListSubjects")
	defer span.End()

	subjects, err := h.service.ListSubjects(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subjects)
}

func (h *ReservationHandler) newBuilder(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.NewBuilder")
	defer span.End()

	principal, ok := principalFromRequest(r)
	if !ok {
		http.Error(w, "missing authenticated principal", http.StatusUnauthorized)
		return
	}

	handle := h.service.NewBuilder(ctx, principal,
		r.URL.Query().Get("subjectId"),
		r.URL.Query().Get("reservationDate"),
		r.URL.Query().Get("usageDate"),
	)
	writeJSON(w, http.StatusOK, map[string]string{"handle": handle})
}

func (h *ReservationHandler) addLine(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.AddLine")
	defer span.End()

	if _, ok := principalFromRequest(r); !ok {
		http.Error(w, "missing authenticated principal", http.StatusUnauthorized)
		return
	}

	quantityStr := r.URL.Query().Get("quantity")
	quantity, err := strconv.Atoi(quantityStr)
	if err != nil {
		// 非整数的数量直接判为输入错误
		writeError(w, domain.NewValidationError("invalid quantity"))
		return
	}

	materialID := r.URL.Query().Get("materialId")
	span.SetAttributes(
		attribute.String("material.id", materialID),
		attribute.Int("material.quantity", quantity),
	)

	line, err := h.service.AddLine(ctx, r.URL.Query().Get("handle"), materialID, quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (h *ReservationHandler) removeLine(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.RemoveLine")
	defer span.End()

	handle := r.URL.Query().Get("handle")
	var err error
	if lineID := r.URL.Query().Get("lineId"); lineID != "" {
		err = h.service.RemoveLine(ctx, handle, lineID)
	} else {
		// 不带 lineId 时删除最近添加的一行
		err = h.service.RemoveLastLine(ctx, handle)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *ReservationHandler) resetBuilder(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.ResetBuilder")
	defer span.End()

	if err := h.service.ResetBuilder(ctx, r.URL.Query().Get("handle")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *ReservationHandler) submit(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.Submit")
	defer span.End()

	principal, ok := principalFromRequest(r)
	if !ok {
		http.Error(w, "missing authenticated principal", http.StatusUnauthorized)
		return
	}

	reservation, err := h.service.Submit(ctx, principal, r.URL.Query().Get("handle"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reservation)
}

func (h *ReservationHandler) restock(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.Restock")
	defer span.End()

	principal, ok := principalFromRequest(r)
	if !ok {
		http.Error(w, "missing authenticated principal", http.StatusUnauthorized)
		return
	}
	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		writeError(w, domain.NewValidationError("invalid quantity"))
		return
	}
	if err := h.service.Restock(ctx, principal, r.URL.Query().Get("materialId"), quantity); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *ReservationHandler) search(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.SearchReservations")
	defer span.End()

	results, err := h.query.Search(ctx, r.URL.Query().Get("term"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *ReservationHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.Dashboard")
	defer span.End()

	view, err := h.query.Dashboard(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// extract 重建上游传入的追踪上下文
func extract(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError 把领域错误映射到 HTTP 状态码
func writeError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	var insufficient *domain.InsufficientStockError
	var transient *domain.TransientError

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Msg})
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":       "insufficient stock",
			"material_id": insufficient.MaterialID,
			"requested":   insufficient.Requested,
			"available":   insufficient.Available,
		})
	case errors.Is(err, domain.ErrMaterialNotFound),
		errors.Is(err, domain.ErrSubjectNotFound),
		errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrLineNotFound),
		errors.Is(err, domain.ErrBuilderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &transient):
		// 瞬时故障：调用方可以带着同一请求重试
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		logger.Logger().Error().Err(err).Msg("unhandled error in http layer")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
