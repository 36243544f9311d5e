package middleware

import (
	"net"
	"strings"

	"github.com/labstack/echo/v4"
)

// NewIPExtractor c.RealIP()が使うクライアントIPの取得方法を返す
// 信頼するプロキシが未設定なら接続元アドレスだけを使い、X-Forwarded-Forは無視する
func NewIPExtractor(trustedProxies []string) echo.IPExtractor {
	var opts []echo.TrustOption
	for _, proxy := range trustedProxies {
		if network, ok := parseIPRange(proxy); ok {
			opts = append(opts, echo.TrustIPRange(network))
		}
	}
	if len(opts) == 0 {
		return echo.ExtractIPDirect()
	}
	// 明示した範囲以外は信頼しない
	opts = append(opts,
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	)
	return echo.ExtractIPFromXFFHeader(opts...)
}

// parseIPRange 単一IPまたはCIDRをネットワークとして解釈
func parseIPRange(v string) (*net.IPNet, bool) {
	v = strings.TrimSpace(v)
	if strings.Contains(v, "/") {
		_, network, err := net.ParseCIDR(v)
		return network, err == nil
	}
	ip := net.ParseIP(v)
	if ip == nil {
		return nil, false
	}
	if v4 := ip.To4(); v4 != nil {
		return &net.IPNet{IP: v4, Mask: net.CIDRMask(32, 32)}, true
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}, true
}
