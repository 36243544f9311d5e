package mpesa

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	"tip-server/internal/domain/mpesa_transaction"
)

// コールバックメタデータの項目名
const (
	MetadataAmount             = "Amount"
	MetadataMpesaReceiptNumber = "MpesaReceiptNumber"
	MetadataTransactionDate    = "TransactionDate"
	MetadataPhoneNumber        = "PhoneNumber"
)

// CallbackEnvelope Darajaが送信するコールバックの外側
type CallbackEnvelope struct {
	Body *struct {
		STKCallback *STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback STK Pushの結果通知
// ResultCodeが欠落またはnullの場合はnilのまま残し、成功扱いにしない
type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        *int              `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackMetadata 成功時のメタデータ
type CallbackMetadata struct {
	Item []CallbackMetadataItem `json:"Item"`
}

// CallbackMetadataItem メタデータの1項目
type CallbackMetadataItem struct {
	Name  string        `json:"Name"`
	Value MetadataValue `json:"Value,omitempty"`
}

// MetadataValue 文字列または数値で届く値をJSON上の表記のまま保持する（数値をfloat64に変換しない）
type MetadataValue string

// UnmarshalJSON 文字列はそのまま、数値はリテラル表記、nullは空文字にする
func (v *MetadataValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = MetadataValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = MetadataValue(n.String())
	return nil
}

// Callback エンベロープからstkCallbackを取り出す
func (e *CallbackEnvelope) Callback() (*STKCallback, bool) {
	if e == nil || e.Body == nil || e.Body.STKCallback == nil {
		return nil, false
	}
	return e.Body.STKCallback, true
}

// ExtractOutcome メタデータ項目を名前で探して決済結果を取り出す（順序は問わない）
func ExtractOutcome(items []CallbackMetadataItem) mpesa_transaction.Outcome {
	var outcome mpesa_transaction.Outcome
	for _, item := range items {
		value := string(item.Value)
		switch item.Name {
		case MetadataAmount:
			if amount, err := decimal.NewFromString(value); err == nil {
				outcome.Amount = decimal.NewNullDecimal(amount)
			}
		case MetadataMpesaReceiptNumber:
			outcome.MpesaReceiptNumber = value
		case MetadataTransactionDate:
			outcome.TransactionDate = value
		case MetadataPhoneNumber:
			outcome.PhoneNumber = value
		}
	}
	return outcome
}

func (c *STKCallback) metadataItems() []CallbackMetadataItem {
	if c.CallbackMetadata == nil {
		return nil
	}
	return c.CallbackMetadata.Item
}
