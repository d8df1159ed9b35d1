package resthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/wareline/arrivalbox/internal/models"
)

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// New строит клиента upstream-бэкенда. Пустой token допустим: запросы
// уходят без Authorization и полагаются на серверный отказ.
func New(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if timeout <= 0 {
		// Запрос без таймаута оставил бы оптимистичное изменение
		// неподтверждённым навсегда.
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) ListArrivals(ctx context.Context) ([]map[string]any, error) {
	var out []map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/arrivals", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetArrival(ctx context.Context, id int64) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/arrivals/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateArrival(ctx context.Context, input models.ArrivalCreateInput) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPost, "/api/arrivals", input, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateArrival шлёт PATCH с частичным набором полей (обычно {status}).
// Бэкенд отвечает обновлённым объектом либо эхом патча.
func (c *Client) UpdateArrival(ctx context.Context, id int64, patch map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/arrivals/%d", id), patch, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteArrival(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/arrivals/%d", id), nil, nil)
}

func (c *Client) ListFiles(ctx context.Context, id int64) ([]map[string]any, error) {
	var out []map[string]any
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/arrivals/%d/files", id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = path

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal body")
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("arrivals backend http %d (%s %s)", resp.StatusCode, method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// DELETE и эхо-ответы бывают пустыми, это не ошибка.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.Wrap(err, "decode")
	}
	return nil
}
