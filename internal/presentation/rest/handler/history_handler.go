package handler

import (
	"net/http"
	"strconv"
	"time"

	historyapp "tip-server/internal/application/history"

	"github.com/labstack/echo/v4"
)

// HistoryHandler 決済履歴ハンドラー（管理API）
type HistoryHandler struct {
	historyService *historyapp.HistoryApplicationService
}

// NewHistoryHandler 新しいHistoryHandlerを作成
func NewHistoryHandler(historyService *historyapp.HistoryApplicationService) *HistoryHandler {
	return &HistoryHandler{
		historyService: historyService,
	}
}

// ListPayments 決済一覧取得ハンドラー
// @Summary 決済一覧を取得（管理API）
// @Description STK Pushで発行された決済を新しい順に取得します。ステータスでの絞り込みとページネーションに対応しています
// @Tags admin
// @Produce json
// @Security Bearer
// @Param status query string false "ステータスでフィルタ（pending/succeeded/failed/cancelled）" example(succeeded)
// @Param limit query int false "取得件数（デフォルト: 50, 最大: 100)" default(50) example(50)
// @Param offset query int false "オフセット（デフォルト: 0)" default(0) example(0)
// @Success 200 {object} PaymentListResponse "取得成功"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Failure 401 {object} ErrorResponse "認証エラー"
// @Router /api/v1/admin/payments [get]
func (h *HistoryHandler) ListPayments(c echo.Context) error {
	// クエリパラメータを取得
	limit := 0 // 未指定はサービス側のデフォルト
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > 100 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit parameter")
		}
	}

	offset := 0
	if offsetStr := c.QueryParam("offset"); offsetStr != "" {
		var err error
		offset, err = strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid offset parameter")
		}
	}

	resp, err := h.historyService.ListPayments(c.Request().Context(), &historyapp.ListPaymentsRequest{
		Status: c.QueryParam("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return err
	}

	payments := make([]PaymentItem, len(resp.Payments))
	for i, tx := range resp.Payments {
		item := PaymentItem{
			CheckoutRequestID:  tx.CheckoutRequestID(),
			MerchantRequestID:  tx.MerchantRequestID(),
			PhoneNumber:        tx.PhoneNumber(),
			Amount:             tx.Amount(),
			AccountReference:   tx.AccountReference(),
			Status:             tx.Status().String(),
			ResultCode:         tx.ResultCode(),
			ResultDesc:         tx.ResultDesc(),
			MpesaReceiptNumber: tx.ReceiptNumber(),
			TransactionDate:    tx.TransactionDate(),
			CreatedAt:          tx.CreatedAt().UTC().Format(time.RFC3339),
			UpdatedAt:          tx.UpdatedAt().UTC().Format(time.RFC3339),
		}
		if settled := tx.SettledAmount(); settled.Valid {
			item.SettledAmount = settled.Decimal.String()
		}
		payments[i] = item
	}

	return c.JSON(http.StatusOK, PaymentListResponse{
		Payments: payments,
		Total:    resp.Total,
		Limit:    resp.Limit,
		Offset:   resp.Offset,
	})
}
