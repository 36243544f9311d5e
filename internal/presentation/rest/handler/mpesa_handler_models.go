package handler

import (
	"bytes"
	"encoding/json"
)

// STKPushRequest STK Push開始リクエスト
// @Description STK Push開始リクエスト
type STKPushRequest struct {
	PhoneNumber      flexString      `json:"phoneNumber" swaggertype:"string" example:"254712345678"`
	Amount           json.RawMessage `json:"amount" swaggertype:"number" example:"100"`
	AccountReference string          `json:"accountReference,omitempty" example:"TheMwendaChronicles"`
	TransactionDesc  string          `json:"transactionDesc,omitempty" example:"Blog Support"`
}

// STKPushSuccessResponse STK Push送信成功レスポンス
// @Description STK Push送信成功レスポンス
type STKPushSuccessResponse struct {
	Success           bool   `json:"success" example:"true"`
	Message           string `json:"message" example:"STK Push sent successfully"`
	CheckoutRequestID string `json:"checkoutRequestId" example:"ws_CO_191220191020363925"`
	MerchantRequestID string `json:"merchantRequestId" example:"29115-34620561-1"`
}

// STKPushErrorResponse STK Push失敗レスポンス
// @Description STK Push失敗レスポンス
type STKPushErrorResponse struct {
	Success bool   `json:"success" example:"false"`
	Error   string `json:"error" example:"Phone number and amount are required"`
}

// MethodNotAllowedResponse 許可されていないメソッドのレスポンス
// @Description 許可されていないメソッドのレスポンス
type MethodNotAllowedResponse struct {
	Error string `json:"error" example:"Method not allowed"`
}

// CallbackResponse Darajaへのコールバック応答
// @Description Darajaへのコールバック応答
type CallbackResponse struct {
	ResultCode int    `json:"ResultCode" example:"0"`
	ResultDesc string `json:"ResultDesc" example:"Success"`
}

// TransactionStatusResponse 決済ステータスレスポンス
// @Description 決済ステータスレスポンス
type TransactionStatusResponse struct {
	CheckoutRequestID  string `json:"checkoutRequestId" example:"ws_CO_191220191020363925"`
	MerchantRequestID  string `json:"merchantRequestId" example:"29115-34620561-1"`
	Status             string `json:"status" example:"succeeded"`
	ResultCode         *int   `json:"resultCode,omitempty" example:"0"`
	ResultDesc         string `json:"resultDesc,omitempty" example:"The service request is processed successfully."`
	MpesaReceiptNumber string `json:"mpesaReceiptNumber,omitempty" example:"NLJ7RT61SV"`
	Amount             int64  `json:"amount" example:"100"`
	UpdatedAt          string `json:"updatedAt" example:"2024-01-01T12:00:00Z"`
}

// flexString 文字列または数値で送られる値を文字列として受け取る
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
