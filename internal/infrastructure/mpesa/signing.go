package mpesa

import (
	"encoding/base64"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout Daraja APIが要求するタイムスタンプ形式（YYYYMMDDHHmmss）
const TimestampLayout = "20060102150405"

var half = decimal.NewFromFloat(0.5)

// GenerateTimestamp 与えられた時刻をYYYYMMDDHHmmss形式に変換
// タイムゾーンは呼び出し側でtに反映しておくこと
func GenerateTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// GeneratePassword STK Push用パスワードを生成
// base64(shortcode + passkey + timestamp)。ハッシュではなく単純なエンコード
func GeneratePassword(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

// RoundAmount 金額を最も近い整数に丸める
// .5は正の無限大方向に丸める（floor(x + 0.5)）
func RoundAmount(amount decimal.Decimal) int64 {
	return amount.Add(half).Floor().IntPart()
}
