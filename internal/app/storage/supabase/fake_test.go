package supabase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/muraguri00/zalora-luxury/pkg/logger"
	"github.com/muraguri00/zalora-luxury/supabase/client"
)

type row = map[string]any

// uniqueRule reports whether a and b may not coexist.
type uniqueRule func(a, b row) bool

func sameNonNull(cols ...string) uniqueRule {
	return func(a, b row) bool {
		for _, c := range cols {
			if a[c] == nil || b[c] == nil || fmt.Sprint(a[c]) != fmt.Sprint(b[c]) {
				return false
			}
		}
		return true
	}
}

// fakePostgREST is a small in-process PostgREST with the filters, ordering
// and unique indexes the store relies on.
type fakePostgREST struct {
	mu      sync.Mutex
	tables  map[string][]row
	unique  map[string][]uniqueRule
	fail    map[string]int
	beforeP map[string]func(f *fakePostgREST)
	rpc     map[string]http.HandlerFunc
}

func newFakePostgREST() *fakePostgREST {
	return &fakePostgREST{
		tables: map[string][]row{},
		unique: map[string][]uniqueRule{
			tableMovements: {sameNonNull("idempotency_key")},
			tableOrders:    {sameNonNull("user_id", "idempotency_key")},
			tableApplications: {func(a, b row) bool {
				return a["user_id"] == b["user_id"] && a["status"] == "pending" && b["status"] == "pending"
			}},
			tableWallets: {func(a, b row) bool {
				return a["is_active"] == true && b["is_active"] == true &&
					strings.EqualFold(fmt.Sprint(a["wallet_type"]), fmt.Sprint(b["wallet_type"]))
			}},
		},
		fail:    map[string]int{},
		beforeP: map[string]func(f *fakePostgREST){},
		rpc:     map[string]http.HandlerFunc{},
	}
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *fakePostgREST) {
	t.Helper()
	fake := newFakePostgREST()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	db, err := client.New(client.Config{URL: server.URL, APIKey: "service"})
	require.NoError(t, err)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var tick int64
	var clockMu sync.Mutex
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	opts = append([]Option{WithClock(clock)}, opts...)
	return New(db, logger.NewNop(), opts...), fake
}

func (f *fakePostgREST) seed(table string, r row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, _ := json.Marshal(r)
	f.tables[table] = append(f.tables[table], decodeRow(raw))
}

func (f *fakePostgREST) rows(table string) []row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]row(nil), f.tables[table]...)
}

func (f *fakePostgREST) set(table, id, col string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLocked(table, id, col, v)
}

func (f *fakePostgREST) setLocked(table, id, col string, v any) {
	raw, _ := json.Marshal(v)
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	_ = dec.Decode(&decoded)
	for _, r := range f.tables[table] {
		if r["id"] == id {
			r[col] = decoded
		}
	}
}

func decodeRow(raw []byte) row {
	var r row
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	_ = dec.Decode(&r)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	if fn, ok := strings.CutPrefix(path, "rpc/"); ok {
		f.mu.Lock()
		h := f.rpc[fn]
		f.mu.Unlock()
		if h == nil {
			writeJSON(w, http.StatusNotFound, row{"code": "PGRST202", "message": "Could not find the function"})
			return
		}
		h(w, r)
		return
	}

	table := path
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.Method + " " + table
	if f.fail[key] > 0 {
		f.fail[key]--
		writeJSON(w, http.StatusInternalServerError, row{"message": "injected failure"})
		return
	}
	if hook := f.beforeP[key]; hook != nil {
		delete(f.beforeP, key)
		hook(f)
	}

	body, _ := io.ReadAll(r.Body)
	q := r.URL.Query()
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, f.selectRows(table, q))
	case http.MethodPost:
		var incoming []row
		if bytes.HasPrefix(bytes.TrimSpace(body), []byte("[")) {
			dec := json.NewDecoder(bytes.NewReader(body))
			dec.UseNumber()
			_ = dec.Decode(&incoming)
		} else {
			incoming = []row{decodeRow(body)}
		}
		for _, in := range incoming {
			if f.conflicts(table, in, nil) {
				writeJSON(w, http.StatusConflict, row{"code": "23505", "message": "duplicate key value violates unique constraint"})
				return
			}
		}
		f.tables[table] = append(f.tables[table], incoming...)
		writeJSON(w, http.StatusCreated, incoming)
	case http.MethodPatch:
		patch := decodeRow(body)
		matched := f.matching(table, q)
		for _, m := range matched {
			next := row{}
			for k, v := range m {
				next[k] = v
			}
			for k, v := range patch {
				next[k] = v
			}
			if f.conflicts(table, next, m) {
				writeJSON(w, http.StatusConflict, row{"code": "23505", "message": "duplicate key value violates unique constraint"})
				return
			}
		}
		out := []row{}
		for _, m := range matched {
			for k, v := range patch {
				m[k] = v
			}
			out = append(out, m)
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodDelete:
		matched := f.matching(table, q)
		keep := f.tables[table][:0]
		for _, existing := range f.tables[table] {
			removed := false
			for _, m := range matched {
				if existing["id"] == m["id"] {
					removed = true
				}
			}
			if !removed {
				keep = append(keep, existing)
			}
		}
		f.tables[table] = keep
		writeJSON(w, http.StatusOK, matched)
	}
}

func (f *fakePostgREST) conflicts(table string, candidate, self row) bool {
	for _, existing := range f.tables[table] {
		if self != nil && existing["id"] == self["id"] {
			continue
		}
		if existing["id"] == candidate["id"] {
			return true
		}
		for _, rule := range f.unique[table] {
			if rule(existing, candidate) {
				return true
			}
		}
	}
	return false
}

func (f *fakePostgREST) matching(table string, q map[string][]string) []row {
	var out []row
	for _, r := range f.tables[table] {
		if matches(r, q) {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakePostgREST) selectRows(table string, q map[string][]string) []row {
	out := append([]row{}, f.matching(table, q)...)
	if order := first1(q["order"]); order != "" {
		col, dir, _ := strings.Cut(strings.Split(order, ",")[0], ".")
		sort.SliceStable(out, func(i, j int) bool {
			c := compare(out[i][col], fmt.Sprint(out[j][col]))
			if dir == "desc" {
				return c > 0
			}
			return c < 0
		})
	}
	if limit, err := strconv.Atoi(first1(q["limit"])); err == nil && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func first1(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

var reserved = map[string]bool{"select": true, "order": true, "limit": true, "offset": true, "on_conflict": true}

func matches(r row, q map[string][]string) bool {
	for col, filters := range q {
		if reserved[col] {
			continue
		}
		for _, filter := range filters {
			op, val, _ := strings.Cut(filter, ".")
			v := r[col]
			switch op {
			case "eq":
				if v == nil || fmt.Sprint(v) != val {
					return false
				}
			case "neq":
				if v != nil && fmt.Sprint(v) == val {
					return false
				}
			case "ilike":
				unescaped := strings.NewReplacer(`\%`, `%`, `\_`, `_`, `\\`, `\`).Replace(val)
				if v == nil || !strings.EqualFold(fmt.Sprint(v), unescaped) {
					return false
				}
			case "lt":
				if v == nil || compare(v, val) >= 0 {
					return false
				}
			case "gte":
				if v == nil || compare(v, val) < 0 {
					return false
				}
			case "is":
				if val == "null" && v != nil {
					return false
				}
			}
		}
	}
	return true
}

// compare orders timestamps chronologically, numbers numerically and
// everything else lexically.
func compare(v any, other string) int {
	s := fmt.Sprint(v)
	if a, err := time.Parse(time.RFC3339Nano, s); err == nil {
		if b, err := time.Parse(time.RFC3339Nano, other); err == nil {
			return a.Compare(b)
		}
	}
	if a, err := strconv.ParseFloat(s, 64); err == nil {
		if b, err := strconv.ParseFloat(other, 64); err == nil {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(s, other)
}
