package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/erikg84/supabase-sdk/errors"
	"github.com/erikg84/supabase-sdk/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type person struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func newTestExecutor(t *testing.T, handler http.HandlerFunc, opts ...Option) *Executor {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	exec, err := NewExecutor(server.URL, "anon-key", opts...)
	require.NoError(t, err)
	return exec
}

func TestNewExecutor_Validates(t *testing.T) {
	_, err := NewExecutor("", "key")
	require.Error(t, err)
	assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))

	_, err = NewExecutor("http://localhost", " ")
	require.Error(t, err)
}

func TestExecute_Select(t *testing.T) {
	var got *http.Request
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"name":"Ada","age":36}]`))
	}, WithSchema("app"), WithTokenSource(func() (string, bool) { return "user-token", true }))

	res := query.From[person](exec, "people").Select("id", "name", "age").
		Where(func(f *query.FilterBuilder) {
			f.Gte("age", 18)
			f.Lte("age", 65)
			f.IsNull("deleted_at")
		}).
		OrderNullsFirst("name", true).
		Range(10, 19).
		Execute(context.Background())

	require.True(t, res.IsSuccess(), "%v", res.Err())
	assert.Equal(t, []person{{ID: 1, Name: "Ada", Age: 36}}, res.Value())

	require.NotNil(t, got)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/rest/v1/people", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, []string{"gte.18", "lte.65"}, q["age"])
	assert.Equal(t, "is.null", q.Get("deleted_at"))
	assert.Equal(t, "id,name,age", q.Get("select"))
	assert.Equal(t, "name.asc.nullsfirst", q.Get("order"))
	assert.Equal(t, "10", q.Get("limit"))
	assert.Equal(t, "10", q.Get("offset"))
	assert.Equal(t, "anon-key", got.Header.Get("apikey"))
	assert.Equal(t, "Bearer user-token", got.Header.Get("Authorization"))
	assert.Equal(t, "app", got.Header.Get("Accept-Profile"))
	assert.NotEmpty(t, got.Header.Get("X-Request-Id"))
}

func TestExecute_DeleteKeepsBothBounds(t *testing.T) {
	var got *http.Request
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.WriteHeader(http.StatusNoContent)
	})

	res := query.From[person](exec, "people").Delete().
		Where(func(f *query.FilterBuilder) {
			f.Gte("age", 18)
			f.Lte("age", 65)
		}).
		Execute(context.Background())

	require.True(t, res.IsSuccess(), "%v", res.Err())
	assert.Equal(t, http.MethodDelete, got.Method)
	assert.Equal(t, []string{"gte.18", "lte.65"}, got.URL.Query()["age"])
	assert.Equal(t, "return=minimal", got.Header.Get("Prefer"))
	assert.Equal(t, "Bearer anon-key", got.Header.Get("Authorization"))
}

func TestExecute_UpdateSendsPayload(t *testing.T) {
	var method, prefer string
	var payload map[string]interface{}
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		prefer = r.Header.Get("Prefer")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		_, _ = w.Write([]byte(`[{"id":3,"name":"Grace","age":40}]`))
	})

	res := query.From[person](exec, "people").
		Update(map[string]interface{}{"age": 40}).
		Where(func(f *query.FilterBuilder) { f.Eq("id", 3) }).
		Execute(context.Background())

	require.True(t, res.IsSuccess(), "%v", res.Err())
	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, "return=representation", prefer)
	assert.Equal(t, float64(40), payload["age"])
	assert.Equal(t, 40, res.Value()[0].Age)
}

func TestExecute_Upsert(t *testing.T) {
	var got *http.Request
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`[]`))
	})

	res := query.From[person](exec, "people").
		Upsert([]person{{ID: 1, Name: "Ada"}}, "id").
		IgnoreDuplicates(true).
		Execute(context.Background())

	require.True(t, res.IsSuccess(), "%v", res.Err())
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "id", got.URL.Query().Get("on_conflict"))
	assert.Equal(t, "return=representation,resolution=ignore-duplicates", got.Header.Get("Prefer"))
}

func TestExecute_Count(t *testing.T) {
	cases := map[string]int64{"0-9/42": 42, "*/7": 7}
	for header, want := range cases {
		header, want := header, want
		t.Run(header, func(t *testing.T) {
			var method, prefer string
			exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
				method = r.Method
				prefer = r.Header.Get("Prefer")
				w.Header().Set("Content-Range", header)
			})

			res := query.From[person](exec, "people").Select().Count(context.Background())
			require.True(t, res.IsSuccess(), "%v", res.Err())
			assert.Equal(t, want, res.Value())
			assert.Equal(t, http.MethodHead, method)
			assert.Equal(t, "count=exact", prefer)
		})
	}

	t.Run("unknown total is zero", func(t *testing.T) {
		exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Range", "0-9/*")
		})
		res := query.From[person](exec, "people").Select().Count(context.Background())
		require.True(t, res.IsSuccess())
		assert.Equal(t, int64(0), res.Value())
	})
}

func TestExecute_RPC(t *testing.T) {
	var path string
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`5`))
	})

	res := query.RPC[int](context.Background(), exec, "add_numbers", map[string]int{"a": 2, "b": 3})
	require.True(t, res.IsSuccess(), "%v", res.Err())
	assert.Equal(t, 5, res.Value())
	assert.Equal(t, "/rest/v1/rpc/add_numbers", path)
}

func TestExecute_ErrorMapping(t *testing.T) {
	t.Run("database error keeps code and hint", func(t *testing.T) {
		exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"42P01","message":"relation \"public.ghosts\" does not exist","details":null,"hint":"check the table name"}`))
		})

		res := query.From[person](exec, "ghosts").Select().Execute(context.Background())
		require.True(t, res.IsFailure())
		assert.Equal(t, errors.KindDatabase, res.Err().Kind)
		assert.Equal(t, "42P01", res.Err().Code)
		assert.Equal(t, "check the table name", res.Err().Hint)
		assert.Equal(t, `SELECT on 'ghosts' failed: relation "public.ghosts" does not exist`, res.Err().Message)
	})

	t.Run("auth status keeps the authentication cause", func(t *testing.T) {
		exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"PGRST301","message":"JWT expired"}`))
		})

		res := query.From[person](exec, "people").Select().Execute(context.Background())
		require.True(t, res.IsFailure())
		assert.Equal(t, errors.KindDatabase, res.Err().Kind)
		assert.Equal(t, errors.KindAuthentication, errors.KindOf(res.Err().Cause))
		assert.Equal(t, "PGRST301", res.Err().Code)
	})

	t.Run("transport failure is a network cause", func(t *testing.T) {
		exec, err := NewExecutor("http://127.0.0.1:1", "anon-key")
		require.NoError(t, err)

		res := query.From[person](exec, "people").Select().Execute(context.Background())
		require.True(t, res.IsFailure())
		assert.Equal(t, errors.KindNetwork, errors.KindOf(res.Err().Cause))
	})
}

func TestEncodeParams(t *testing.T) {
	f := query.NewFilter()
	f.Eq("status", "open")
	f.Eq("owner", nil)
	f.Neq("owner", nil)
	f.Is("done", false)
	f.In("tag", "a", "b,c", nil, 3)
	f.ILike("title", "*go*")

	values, err := encodeParams(&query.Request{Kind: query.KindDelete, Table: "todos", Filter: f})
	require.NoError(t, err)

	assert.Equal(t, url.Values{
		"status": {"eq.open"},
		"owner":  {"is.null", "not.is.null"},
		"done":   {"is.false"},
		"tag":    {`in.(a,"b,c",null,3)`},
		"title":  {"ilike.*go*"},
	}, values)
}

func TestExecute_ReservedColumnFilter(t *testing.T) {
	for _, column := range []string{"order", "limit", "offset", "on_conflict", "select"} {
		t.Run(column, func(t *testing.T) {
			calls := 0
			exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				_, _ = w.Write([]byte(`[]`))
			})

			req := query.From[person](exec, "people").
				Select().
				Where(func(f *query.FilterBuilder) { f.Eq(column, 7) }).
				Order("id", true).
				Limit(5).
				Request()

			_, err := exec.Execute(context.Background(), req)
			var e *errors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, errors.KindConfiguration, e.Kind)
			assert.Equal(t, errors.CodeReservedColumn, e.Code)
			assert.Zero(t, calls)
		})
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "plain", quote("plain"))
	assert.Equal(t, `"a b"`, quote("a b"))
	assert.Equal(t, `"say \"hi\""`, quote(`say "hi"`))
	assert.Equal(t, `""`, quote(""))
}
