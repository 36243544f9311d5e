package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"tip-server/internal/infrastructure/config"
	otelinfra "tip-server/internal/infrastructure/observability/otel"
)

const (
	tokenPath   = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath = "/mpesa/stkpush/v1/processrequest"

	// tokenExpiryMargin 期限切れ直前のトークンを使わないための余裕
	tokenExpiryMargin = 60 * time.Second
	// defaultTokenLifetime expires_inが解析できない場合の既定値
	defaultTokenLifetime = 3599 * time.Second
	// maxErrorBodyBytes ログに残すエラーレスポンスの最大長
	maxErrorBodyBytes = 512
	// defaultFetchTimeout RequestTimeout未設定時の共有トークン取得の上限
	defaultFetchTimeout = 30 * time.Second
)

// STKPushRequest Daraja STK Push APIのリクエストボディ
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse Daraja STK Push APIのレスポンス
// 受付時はResponseCode等、エラー時はerrorCode/errorMessageが返る
type STKPushResponse struct {
	MerchantRequestID   string          `json:"MerchantRequestID"`
	CheckoutRequestID   string          `json:"CheckoutRequestID"`
	ResponseCode        json.RawMessage `json:"ResponseCode,omitempty"`
	ResponseDescription string          `json:"ResponseDescription"`
	CustomerMessage     string          `json:"CustomerMessage"`
	RequestID           string          `json:"requestId"`
	ErrorCode           string          `json:"errorCode"`
	ErrorMessage        string          `json:"errorMessage"`
	// HTTPStatus プロバイダーが返したHTTPステータス
	HTTPStatus int `json:"-"`
}

// Accepted ResponseCodeが文字列の"0"の場合のみtrue
func (r *STKPushResponse) Accepted() bool {
	var code string
	if err := json.Unmarshal(r.ResponseCode, &code); err != nil {
		return false
	}
	return code == "0"
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// Client Daraja APIクライアント
type Client struct {
	httpClient     *http.Client
	baseURL        string
	consumerKey    string
	consumerSecret string
	cache          TokenCache
	group          singleflight.Group
	fetchTimeout   time.Duration
	logger         *otelinfra.Logger
	metrics        *otelinfra.Metrics
	tracer         trace.Tracer
}

// Option Clientのオプション
type Option func(*Client)

// WithHTTPClient HTTPクライアントを差し替える
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTokenCache トークンキャッシュを設定する（nilの場合は毎回取得）
func WithTokenCache(cache TokenCache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// NewClient 新しいClientを作成
func NewClient(cfg *config.MpesaConfig, logger *otelinfra.Logger, metrics *otelinfra.Metrics, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:        cfg.BaseURL(),
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		fetchTimeout:   cfg.RequestTimeout,
		logger:         logger,
		metrics:        metrics,
		tracer:         otel.Tracer("mpesa-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAccessToken OAuthアクセストークンを取得
// キャッシュが有効な場合は期限内のトークンを再利用し、同一認証情報の同時取得は1回にまとめる
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	ctx, span := c.tracer.Start(ctx, "mpesa.Client.GetAccessToken")
	defer span.End()

	if c.consumerKey == "" || c.consumerSecret == "" {
		span.SetStatus(otelcodes.Error, ErrCredentialsNotConfigured.Error())
		return "", ErrCredentialsNotConfigured
	}

	key := CacheKey(c.consumerKey, c.consumerSecret)
	if c.cache != nil {
		token, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			// キャッシュ障害時はプロバイダーから取得する
			c.logger.Warn(ctx, "Failed to read access token cache", map[string]interface{}{
				"error": err.Error(),
			})
		}
		if ok {
			c.recordTokenCache(ctx, true)
			span.SetAttributes(attribute.Bool("mpesa.token_cache_hit", true))
			return token, nil
		}
		c.recordTokenCache(ctx, false)
	}

	// 取得は最初の呼び出し元のキャンセルから切り離し、待機中の呼び出し元は各自のctxで離脱する
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.fetchShared(context.WithoutCancel(ctx), key)
	})

	select {
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(otelcodes.Error, ctx.Err().Error())
		return "", ctx.Err()
	case res := <-ch:
		span.SetAttributes(attribute.Bool("mpesa.token_fetch_shared", res.Shared))
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(otelcodes.Error, res.Err.Error())
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// fetchShared singleflight内でトークンを取得してキャッシュする
// 直前の取得で既にキャッシュされていればプロバイダーを呼ばない
func (c *Client) fetchShared(ctx context.Context, key string) (string, error) {
	timeout := c.fetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.cache != nil {
		if token, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			return token, nil
		}
	}

	token, ttl, err := c.fetchAccessToken(ctx)
	if err != nil {
		return "", err
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, key, token, ttl); err != nil {
			c.logger.Warn(ctx, "Failed to write access token cache", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return token, nil
}

// fetchAccessToken トークンエンドポイントを呼び出す
func (c *Client) fetchAccessToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create token request: %w", err)
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(c.consumerKey + ":" + c.consumerSecret))
	req.Header.Set("Authorization", "Basic "+credentials)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordLatency(ctx, "token", 0, start)
		return "", 0, fmt.Errorf("failed to call token endpoint: %w", err)
	}
	defer resp.Body.Close()
	c.recordLatency(ctx, "token", resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Error(ctx, "M-Pesa token endpoint returned an error", nil, map[string]interface{}{
			"status_code": resp.StatusCode,
			"body":        string(body),
		})
		return "", 0, fmt.Errorf("%w: status %d", ErrAccessTokenFailed, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("%w: empty access_token", ErrAccessTokenFailed)
	}

	lifetime := defaultTokenLifetime
	if seconds, err := tr.ExpiresIn.Int64(); err == nil && seconds > 0 {
		lifetime = time.Duration(seconds) * time.Second
	}
	return tr.AccessToken, lifetime - tokenExpiryMargin, nil
}

// STKPush STK Pushリクエストを送信
// HTTPステータスに関わらずJSONを解析できればレスポンスを返し、受付可否は呼び出し側が判定する
func (c *Client) STKPush(ctx context.Context, accessToken string, body *STKPushRequest) (*STKPushResponse, error) {
	ctx, span := c.tracer.Start(ctx, "mpesa.Client.STKPush")
	defer span.End()

	span.SetAttributes(
		attribute.String("mpesa.shortcode", body.BusinessShortCode),
		attribute.Int64("mpesa.amount", body.Amount),
	)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stk push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+stkPushPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create stk push request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordLatency(ctx, "stk_push", 0, start)
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("failed to call stk push endpoint: %w", err)
	}
	defer resp.Body.Close()
	c.recordLatency(ctx, "stk_push", resp.StatusCode, start)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	var result STKPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	result.HTTPStatus = resp.StatusCode
	return &result, nil
}

func (c *Client) recordTokenCache(ctx context.Context, hit bool) {
	if c.metrics != nil {
		c.metrics.RecordTokenCache(ctx, hit)
	}
}

func (c *Client) recordLatency(ctx context.Context, operation string, statusCode int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordProviderLatency(ctx, operation, statusCode, time.Since(start).Seconds())
	}
}
