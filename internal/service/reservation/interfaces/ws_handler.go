// internal/service/reservation/interfaces/ws_handler.go
package interfaces

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"taller/internal/pkg/logger"
	"taller/internal/service/reservation/application"
)

// StatusStreamHandler 通过 WebSocket 周期性推送车间状态面板
// 前端的状态页不用轮询，保持一个连接即可
type StatusStreamHandler struct {
	query    *application.ReservationQueryService
	interval time.Duration
	upgrader websocket.Upgrader
}

// NewStatusStreamHandler 创建状态推送处理器
func NewStatusStreamHandler(query *application.ReservationQueryService, interval time.Duration) *StatusStreamHandler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatusStreamHandler{
		query:    query,
		interval: interval,
		upgrader: websocket.Upgrader{
			// 鉴权在外部网关完成，这里不再做 Origin 校验
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *StatusStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// 连接建立后立刻推一帧，不让客户端等第一个周期
	for {
		view, err := h.query.Dashboard(ctx)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("dashboard query failed, closing status stream")
			return
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(view); err != nil {
			// 客户端断开是正常路径
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
