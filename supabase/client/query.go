package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// From starts a query on table.
func (c *Client) From(table string) *QueryBuilder {
	return &QueryBuilder{client: c, table: table, params: url.Values{}}
}

// QueryBuilder builds one PostgREST request.
type QueryBuilder struct {
	client     *Client
	table      string
	params     url.Values
	orders     []string
	single     bool
	count      string
	upsert     bool
	onConflict string
}

func (q *QueryBuilder) filter(column, op string, value any) *QueryBuilder {
	q.params.Add(column, op+"."+fmt.Sprint(value))
	return q
}

func (q *QueryBuilder) Select(columns string) *QueryBuilder {
	q.params.Set("select", columns)
	return q
}

func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder  { return q.filter(column, "eq", value) }
func (q *QueryBuilder) Neq(column string, value any) *QueryBuilder { return q.filter(column, "neq", value) }
func (q *QueryBuilder) Gt(column string, value any) *QueryBuilder  { return q.filter(column, "gt", value) }
func (q *QueryBuilder) Gte(column string, value any) *QueryBuilder { return q.filter(column, "gte", value) }
func (q *QueryBuilder) Lt(column string, value any) *QueryBuilder  { return q.filter(column, "lt", value) }
func (q *QueryBuilder) Lte(column string, value any) *QueryBuilder { return q.filter(column, "lte", value) }

// ILike adds a case-insensitive pattern filter.
func (q *QueryBuilder) ILike(column, pattern string) *QueryBuilder {
	return q.filter(column, "ilike", pattern)
}

// In adds a membership filter.
func (q *QueryBuilder) In(column string, values []any) *QueryBuilder {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return q.filter(column, "in", "("+strings.Join(parts, ",")+")")
}

// Is adds an IS filter for null, true or false.
func (q *QueryBuilder) Is(column string, value any) *QueryBuilder {
	return q.filter(column, "is", value)
}

// Order appends an ORDER BY term.
func (q *QueryBuilder) Order(column string, ascending bool) *QueryBuilder {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.params.Set("offset", strconv.Itoa(n))
	return q
}

// Single asks for one object instead of an array. Zero rows come back as a
// 406 with code PGRST116.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// Count asks for a row count (exact, planned or estimated) in Content-Range.
func (q *QueryBuilder) Count(countType string) *QueryBuilder {
	q.count = countType
	return q
}

// Upsert turns the next ExecuteInsert into an upsert on onConflict.
func (q *QueryBuilder) Upsert(onConflict string) *QueryBuilder {
	q.upsert = true
	q.onConflict = onConflict
	return q
}

func (q *QueryBuilder) path() string {
	params := url.Values{}
	for k, v := range q.params {
		params[k] = v
	}
	if len(q.orders) > 0 {
		params.Set("order", strings.Join(q.orders, ","))
	}
	if q.upsert && q.onConflict != "" {
		params.Set("on_conflict", q.onConflict)
	}
	p := "/rest/v1/" + q.table
	if encoded := params.Encode(); encoded != "" {
		p += "?" + encoded
	}
	return p
}

func (q *QueryBuilder) send(ctx context.Context, method string, data any, prefer []string) (*Response, error) {
	var body io.Reader
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", q.table, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := q.client.newRequest(ctx, method, q.path(), body)
	if err != nil {
		return nil, err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	if q.count != "" {
		prefer = append(prefer, "count="+q.count)
	}
	if len(prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(prefer, ","))
	}
	return q.client.do(req)
}

// Execute runs a SELECT.
func (q *QueryBuilder) Execute(ctx context.Context) (*Response, error) {
	return q.send(ctx, http.MethodGet, nil, nil)
}

// ExecuteInsert inserts data (an object or an array) and returns the rows.
func (q *QueryBuilder) ExecuteInsert(ctx context.Context, data any) (*Response, error) {
	prefer := []string{"return=representation"}
	if q.upsert {
		prefer = append(prefer, "resolution=merge-duplicates")
	}
	return q.send(ctx, http.MethodPost, data, prefer)
}

// ExecuteUpdate patches every row matching the filters and returns them.
func (q *QueryBuilder) ExecuteUpdate(ctx context.Context, data any) (*Response, error) {
	return q.send(ctx, http.MethodPatch, data, []string{"return=representation"})
}

// ExecuteDelete deletes every row matching the filters and returns them.
func (q *QueryBuilder) ExecuteDelete(ctx context.Context) (*Response, error) {
	return q.send(ctx, http.MethodDelete, nil, []string{"return=representation"})
}

// RPC calls a Postgres function exposed by PostgREST.
func (c *Client) RPC(ctx context.Context, fn string, params any) (*Response, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal rpc %s params: %w", fn, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/rest/v1/rpc/"+fn, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func decodeJSON(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}
