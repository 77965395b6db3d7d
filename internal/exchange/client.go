package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
)

// restClient is the shared HTTP plumbing under every native client.
// Signing and payload shapes stay in the per-exchange clients; status-code
// classification into the error taxonomy lives here.
type restClient struct {
	exchange   domain.ExchangeID
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func newRESTClient(exchange domain.ExchangeID, baseURL string) *restClient {
	return &restClient{
		exchange: exchange,
		baseURL:  baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger: slog.Default().With("module", string(exchange)+"_client"),
	}
}

// do issues one request and returns the response body on HTTP 200.
// Non-200 statuses and transport failures come back as tagged ExchangeErrors.
func (c *restClient) do(ctx context.Context, method, path string, query url.Values, body []byte, headers map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, domain.NewExchangeError(c.exchange, domain.ErrClassNetwork, path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewExchangeError(c.exchange, domain.ErrClassNetwork, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewExchangeError(c.exchange, domain.ErrClassNetwork, path, err)
	}

	if resp.StatusCode != http.StatusOK {
		class := classifyStatus(resp.StatusCode)
		c.logger.Warn("request failed",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("class", string(class)),
		)
		return respBody, domain.NewExchangeError(c.exchange, class, path,
			fmt.Errorf("status=%d body=%s", resp.StatusCode, truncate(respBody, 256)))
	}

	return respBody, nil
}

func classifyStatus(code int) domain.ErrorClass {
	switch {
	case code == http.StatusUnauthorized:
		return domain.ErrClassAuth
	case code == http.StatusForbidden:
		return domain.ErrClassPermission
	case code == http.StatusTooManyRequests:
		return domain.ErrClassRateLimit
	case code >= 500:
		return domain.ErrClassNetwork
	default:
		return domain.ErrClassExchange
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
