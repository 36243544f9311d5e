package handler

// PaymentItem 決済一覧の1件
// @Description 決済一覧の1件
type PaymentItem struct {
	CheckoutRequestID  string `json:"checkout_request_id" example:"ws_CO_191220191020363925"`
	MerchantRequestID  string `json:"merchant_request_id" example:"29115-34620561-1"`
	PhoneNumber        string `json:"phone_number" example:"254712345678"`
	Amount             int64  `json:"amount" example:"100"`
	AccountReference   string `json:"account_reference" example:"TheMwendaChronicles"`
	Status             string `json:"status" example:"succeeded"`
	ResultCode         *int   `json:"result_code,omitempty" example:"0"`
	ResultDesc         string `json:"result_desc,omitempty" example:"The service request is processed successfully."`
	MpesaReceiptNumber string `json:"mpesa_receipt_number,omitempty" example:"NLJ7RT61SV"`
	SettledAmount      string `json:"settled_amount,omitempty" example:"100"`
	TransactionDate    string `json:"transaction_date,omitempty" example:"20191219102115"`
	CreatedAt          string `json:"created_at" example:"2024-01-01T12:00:00Z"`
	UpdatedAt          string `json:"updated_at" example:"2024-01-01T12:00:30Z"`
}

// PaymentListResponse 決済一覧レスポンス
// @Description 決済一覧レスポンス
type PaymentListResponse struct {
	Payments []PaymentItem `json:"payments"`
	Total    int           `json:"total" example:"1"`
	Limit    int           `json:"limit" example:"50"`
	Offset   int           `json:"offset" example:"0"`
}
