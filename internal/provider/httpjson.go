package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const maxErrorBody = 512

// JSONRequest describes one JSON round trip against a provider's HTTP API.
type JSONRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   any
}

// DoJSON sends req and decodes a 2xx response into out. Non-2xx responses
// become ProviderErrors classified by StatusKind; a Retry-After header on
// 429 is carried in RetryAfter.
func DoJSON(ctx context.Context, client *http.Client, providerName string, req JSONRequest, out any) error {
	if client == nil {
		client = http.DefaultClient
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", providerName, err)
		}
		body = bytes.NewReader(raw)
	}

	header := req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Accept", "application/json")
	if body != nil {
		header.Set("Content-Type", "application/json")
	}

	resp, err := send(ctx, client, providerName, method, req.URL, header, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Wrap(providerName, KindNetwork, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// GetBytes fetches url and returns at most limit bytes of a 2xx body, for
// providers that answer in XML or compressed dumps. Errors are classified
// like DoJSON's.
func GetBytes(ctx context.Context, client *http.Client, providerName, url string, limit int64) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := send(ctx, client, providerName, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Wrap(providerName, KindNetwork, fmt.Errorf("read response: %w", err))
	}
	if int64(len(raw)) > limit {
		return nil, Errorf(providerName, KindNetwork, "response larger than %d bytes", limit)
	}
	return raw, nil
}

// send performs one request and turns transport failures and non-2xx
// statuses into ProviderErrors. The caller closes the body on success.
func send(ctx context.Context, client *http.Client, providerName, method, url string, header http.Header, body io.Reader) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", providerName, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Wrap(providerName, KindNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		perr := Errorf(providerName, StatusKind(resp.StatusCode), "%s %s: %s", method, resp.Status, bytes.TrimSpace(snippet))
		if resp.StatusCode == http.StatusTooManyRequests {
			perr.RetryAfter = retryAfter(resp.Header.Get("Retry-After"))
		}
		return nil, perr
	}
	return resp, nil
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
