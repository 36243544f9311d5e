package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	mpesaapp "tip-server/internal/application/mpesa"
	"tip-server/internal/infrastructure/config"
	mpesainfra "tip-server/internal/infrastructure/mpesa"
	otelinfra "tip-server/internal/infrastructure/observability/otel"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const (
	msgSTKPushSent         = "STK Push sent successfully"
	msgMethodNotAllowed    = "Method not allowed"
	msgInternalServerError = "Internal server error"
)

// MpesaHandler M-Pesa STK Push関連ハンドラー
type MpesaHandler struct {
	mpesaService *mpesaapp.MpesaApplicationService
	logger       *otelinfra.Logger
}

// NewMpesaHandler 新しいMpesaHandlerを作成
func NewMpesaHandler(mpesaService *mpesaapp.MpesaApplicationService, logger *otelinfra.Logger) *MpesaHandler {
	return &MpesaHandler{
		mpesaService: mpesaService,
		logger:       logger,
	}
}

// InitiateSTKPush STK Push開始ハンドラー
// @Summary STK Pushを送信
// @Description 支払者の端末にM-Pesa STK Pushを送信します。結果はコールバックで通知されます
// @Tags mpesa
// @Accept json
// @Produce json
// @Param request body STKPushRequest true "STK Push開始リクエスト"
// @Success 200 {object} STKPushSuccessResponse "STK Push送信成功"
// @Failure 400 {object} STKPushErrorResponse "不正なリクエストまたはプロバイダーによる拒否"
// @Failure 405 {object} MethodNotAllowedResponse "POST以外のメソッド"
// @Failure 500 {object} STKPushErrorResponse "設定不足・認証失敗・内部エラー"
// @Router /api/mpesa/stk-push [post]
func (h *MpesaHandler) InitiateSTKPush(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return c.JSON(http.StatusMethodNotAllowed, MethodNotAllowedResponse{Error: msgMethodNotAllowed})
	}

	var reqBody STKPushRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&reqBody); err != nil {
		return stkPushError(c, http.StatusBadRequest, mpesaapp.ErrMissingFields.Error())
	}

	amount, ok := parseAmount(reqBody.Amount)
	if !ok {
		return stkPushError(c, http.StatusBadRequest, mpesaapp.ErrMissingFields.Error())
	}

	req := &mpesaapp.InitiateSTKPushRequest{
		PhoneNumber:      string(reqBody.PhoneNumber),
		Amount:           amount,
		AccountReference: reqBody.AccountReference,
		TransactionDesc:  reqBody.TransactionDesc,
	}

	resp, err := h.mpesaService.InitiateSTKPush(c.Request().Context(), req)
	if err != nil {
		status, message := classifySTKPushError(err)
		return stkPushError(c, status, message)
	}

	return c.JSON(http.StatusOK, STKPushSuccessResponse{
		Success:           true,
		Message:           msgSTKPushSent,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
	})
}

// Callback Darajaからの結果通知ハンドラー
// @Summary STK Push結果通知を受信
// @Description Darajaからのコールバックを受け取ります。POSTであれば内容に関わらず常に200を返します
// @Tags mpesa
// @Accept json
// @Produce json
// @Param token query string false "MPESA_CALLBACK_TOKEN（不一致の場合は処理せず受信応答のみ）"
// @Param request body object true "Daraja STKコールバック"
// @Success 200 {object} CallbackResponse "受信応答"
// @Failure 405 {object} MethodNotAllowedResponse "POST以外のメソッド"
// @Router /api/mpesa/callback [post]
func (h *MpesaHandler) Callback(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return c.JSON(http.StatusMethodNotAllowed, MethodNotAllowedResponse{Error: msgMethodNotAllowed})
	}

	ctx := c.Request().Context()
	received := CallbackResponse{ResultCode: 0, ResultDesc: "Received"}

	// 偽の通知も200で受け流し、内容は処理しない
	if !h.mpesaService.AuthorizeCallback(ctx, c.QueryParam(config.CallbackQueryToken), c.RealIP()) {
		return c.JSON(http.StatusOK, received)
	}

	var envelope mpesaapp.CallbackEnvelope
	if err := json.NewDecoder(c.Request().Body).Decode(&envelope); err != nil {
		h.logger.Error(ctx, "Failed to parse M-Pesa callback", err, nil)
		return c.JSON(http.StatusOK, received)
	}

	cb, ok := envelope.Callback()
	if !ok {
		h.logger.Warn(ctx, "M-Pesa callback without Body.stkCallback", nil)
		return c.JSON(http.StatusOK, received)
	}

	ack := h.mpesaService.HandleCallback(ctx, cb)
	return c.JSON(http.StatusOK, CallbackResponse{
		ResultCode: ack.ResultCode,
		ResultDesc: ack.ResultDesc,
	})
}

// GetStatus 決済ステータス取得ハンドラー
// @Summary 決済ステータスを取得
// @Description CheckoutRequestIDで決済の状態を取得します。UIはこのエンドポイントをポーリングします
// @Tags mpesa
// @Produce json
// @Param checkoutRequestId path string true "CheckoutRequestID" example(ws_CO_191220191020363925)
// @Success 200 {object} TransactionStatusResponse "取得成功"
// @Failure 404 {object} ErrorResponse "該当する決済がない"
// @Router /api/mpesa/stk-push/{checkoutRequestId} [get]
func (h *MpesaHandler) GetStatus(c echo.Context) error {
	checkoutRequestID := c.Param("checkoutRequestId")
	if checkoutRequestID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "checkoutRequestId is required")
	}

	resp, err := h.mpesaService.GetStatus(c.Request().Context(), checkoutRequestID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, TransactionStatusResponse{
		CheckoutRequestID:  resp.CheckoutRequestID,
		MerchantRequestID:  resp.MerchantRequestID,
		Status:             resp.Status,
		ResultCode:         resp.ResultCode,
		ResultDesc:         resp.ResultDesc,
		MpesaReceiptNumber: resp.MpesaReceiptNumber,
		Amount:             resp.Amount,
		UpdatedAt:          resp.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

// parseAmount 数値または数値文字列の金額を読み取る（未指定はゼロ）
func parseAmount(raw json.RawMessage) (decimal.Decimal, bool) {
	if len(raw) == 0 {
		return decimal.Zero, true
	}
	var amount decimal.NullDecimal
	if err := json.Unmarshal(raw, &amount); err != nil {
		return decimal.Zero, false
	}
	if !amount.Valid {
		return decimal.Zero, true
	}
	return amount.Decimal, true
}

// classifySTKPushError エラーをHTTPステータスと公開メッセージに変換
func classifySTKPushError(err error) (int, string) {
	var rejected *mpesaapp.RejectedError
	switch {
	case errors.Is(err, mpesaapp.ErrMissingFields):
		return http.StatusBadRequest, mpesaapp.ErrMissingFields.Error()
	case errors.As(err, &rejected):
		return http.StatusBadRequest, rejected.Error()
	case errors.Is(err, mpesaapp.ErrConfigurationIncomplete):
		return http.StatusInternalServerError, mpesaapp.ErrConfigurationIncomplete.Error()
	case errors.Is(err, mpesainfra.ErrCredentialsNotConfigured):
		return http.StatusInternalServerError, mpesainfra.ErrCredentialsNotConfigured.Error()
	case errors.Is(err, mpesainfra.ErrAccessTokenFailed):
		return http.StatusInternalServerError, mpesainfra.ErrAccessTokenFailed.Error()
	default:
		return http.StatusInternalServerError, msgInternalServerError
	}
}

func stkPushError(c echo.Context, status int, message string) error {
	return c.JSON(status, STKPushErrorResponse{
		Success: false,
		Error:   message,
	})
}
