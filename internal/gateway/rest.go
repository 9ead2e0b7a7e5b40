package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"citymeet/mobile/internal/config"
	"citymeet/mobile/internal/models"
)

// RestClient talks to the backend's REST query API. It implements every
// Client method except Subscribe, which it delegates to an attached
// RealtimeClient.
type RestClient struct {
	baseURL     string
	apiKey      string
	accessToken string
	httpClient  *http.Client
	realtime    *RealtimeClient
	logger      *slog.Logger
}

func NewRestClient(cfg config.GatewayConfig, realtime *RealtimeClient, httpClient *http.Client, logger *slog.Logger) *RestClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RestClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		httpClient:  httpClient,
		realtime:    realtime,
		logger:      logger,
	}
}

func (c *RestClient) Select(ctx context.Context, q Query) ([]Row, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, url.PathEscape(q.Collection), renderQuery(q))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if q.Single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	if q.Single {
		var row Row
		if err := json.Unmarshal(body, &row); err != nil {
			return nil, fmt.Errorf("decode %s row: %w", q.Collection, err)
		}
		return []Row{row}, nil
	}
	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", q.Collection, err)
	}
	return rows, nil
}

func (c *RestClient) Insert(ctx context.Context, collection string, rows []Row) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, url.PathEscape(collection))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")
	_, err = c.do(req)
	return err
}

func (c *RestClient) Update(ctx context.Context, collection string, patch Row, conds []Cond) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, url.PathEscape(collection), renderConds(conds))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")
	_, err = c.do(req)
	return err
}

func (c *RestClient) Delete(ctx context.Context, collection string, conds []Cond) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, url.PathEscape(collection), renderConds(conds))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

// Session introspects the access token against the auth endpoint. An
// anonymous client (no token, or a rejected one) yields a nil session, not
// an error.
func (c *RestClient) Session(ctx context.Context) (*models.Session, error) {
	if c.accessToken == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, readAPIError(resp)
	}
	var user struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode session user: %w", err)
	}
	return &models.Session{
		AccessToken: c.accessToken,
		UserID:      user.ID,
		Email:       user.Email,
	}, nil
}

func (c *RestClient) Subscribe(ctx context.Context, collection, filter string, buffer int) (Subscription, error) {
	if c.realtime == nil {
		return nil, fmt.Errorf("realtime is not configured")
	}
	return c.realtime.Subscribe(ctx, collection, filter, buffer)
}

func (c *RestClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, readAPIError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *RestClient) send(req *http.Request) (*http.Response, error) {
	req.Header.Set("apikey", c.apiKey)
	token := c.accessToken
	if token == "" {
		token = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.httpClient.Do(req)
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Code != "" {
			apiErr.Code = parsed.Code
		}
		if parsed.Message != "" {
			apiErr.Message = parsed.Message
		}
	}
	return apiErr
}

// renderQuery turns a Query into backend query parameters.
func renderQuery(q Query) string {
	values := url.Values{}
	if q.Columns != "" {
		values.Set("select", q.Columns)
	}
	for _, cond := range q.Conds {
		values.Add(cond.Column, renderOpValue(cond))
	}
	for _, group := range q.Or {
		parts := make([]string, 0, len(group.Conds))
		for _, cond := range group.Conds {
			parts = append(parts, cond.Column+"."+renderOpValue(cond))
		}
		values.Add("or", "("+strings.Join(parts, ",")+")")
	}
	if len(q.Order) > 0 {
		keys := make([]string, 0, len(q.Order))
		for _, key := range q.Order {
			direction := "asc"
			if key.Desc {
				direction = "desc"
			}
			keys = append(keys, key.Column+"."+direction)
		}
		values.Set("order", strings.Join(keys, ","))
	}
	return values.Encode()
}

func renderConds(conds []Cond) string {
	values := url.Values{}
	for _, cond := range conds {
		values.Add(cond.Column, renderOpValue(cond))
	}
	return values.Encode()
}

func renderOpValue(cond Cond) string {
	switch cond.Op {
	case OpIlike:
		// Substring semantics: wildcards on both sides.
		return fmt.Sprintf("ilike.*%v*", cond.Value)
	case OpOverlaps:
		return "ov.{" + strings.Join(toStrings(cond.Value), ",") + "}"
	case OpIn:
		return "in.(" + strings.Join(toStrings(cond.Value), ",") + ")"
	default:
		return string(cond.Op) + "." + renderLiteral(cond.Value)
	}
}

func renderLiteral(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toStrings(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		return []string{fmt.Sprintf("%v", v)}
	}
}
