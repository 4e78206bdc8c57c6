package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client talks to a PostgREST-style backend-as-a-service: tables under
// /rest/v1 and edge functions under /functions/v1.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetHeader("apikey", apiKey).SetAuthToken(apiKey)
	}
	return &Client{http: c}
}

func (c *Client) Query(ctx context.Context, q Query, dest any) error {
	if err := q.validate(); err != nil {
		return err
	}

	params := url.Values{}
	params.Set("select", "*")
	for _, f := range q.Filters {
		params.Add(f.Column, encodeFilter(f))
	}
	if q.OrderBy != "" {
		dir := "asc"
		if q.Descending {
			dir = "desc"
		}
		params.Set("order", q.OrderBy+"."+dir)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get("/rest/v1/" + q.Collection)
	if err != nil {
		return err
	}
	if err := checkResponse(resp); err != nil {
		return err
	}
	return json.Unmarshal(resp.Body(), dest)
}

func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := checkIdentifier(collection); err != nil {
		return err
	}

	var updated []json.RawMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParam("id", "eq."+id).
		SetBody(fields).
		Patch("/rest/v1/" + collection)
	if err != nil {
		return err
	}
	if err := checkResponse(resp); err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body(), &updated); err != nil {
		return err
	}
	if len(updated) == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) Insert(ctx context.Context, collection string, record any) error {
	if err := checkIdentifier(collection); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody(record).
		Post("/rest/v1/" + collection)
	if err != nil {
		return err
	}
	return checkResponse(resp)
}

func (c *Client) Invoke(ctx context.Context, name string, body any, dest any) error {
	if err := checkIdentifier(strings.ReplaceAll(name, "-", "_")); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/functions/v1/" + name)
	if err != nil {
		return err
	}
	if err := checkResponse(resp); err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	return json.Unmarshal(resp.Body(), dest)
}

func checkResponse(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}

	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		msg = body.Message
		if msg == "" {
			msg = body.Error
		}
	}
	if msg == "" {
		msg = fmt.Sprintf("backend request status: %d", resp.StatusCode())
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: msg}
}

// encodeFilter renders a filter in PostgREST operator syntax, e.g.
// "eq.sent", "in.(sent,overdue)", "not.is.null".
func encodeFilter(f Filter) string {
	switch f.Op {
	case OpNotNull:
		return "not.is.null"
	case OpIn:
		return "in.(" + strings.Join(encodeList(f.Value), ",") + ")"
	default:
		return string(f.Op) + "." + encodeValue(f.Value)
	}
}

func encodeList(value any) []string {
	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return []string{encodeValue(value)}
	}
	out := make([]string, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		out = append(out, encodeValue(v.Index(i).Interface()))
	}
	return out
}

func encodeValue(value any) string {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if v == nil {
			return "null"
		}
		return v.UTC().Format(time.RFC3339Nano)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
