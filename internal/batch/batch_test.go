package batch

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

func TestMerge_RequestWins(t *testing.T) {
	defaults := &Request{Method: "POST", Body: map[string]any{"a": 1}}
	got := Merge(defaults, Request{Path: "/x", Body: map[string]any{"a": 2, "b": 3}})

	assert.Equal(t, "POST", got.Method)
	assert.Equal(t, "/x", got.Path)
	assert.Equal(t, map[string]any{"a": 2, "b": 3}, got.Body)
}

func TestMerge_Recursive(t *testing.T) {
	defaults := &Request{
		Headers: map[string]string{"X-A": "d", "X-B": "d"},
		Body: map[string]any{
			"meta": map[string]any{"owner": "d", "tier": "gold"},
			"flag": true,
		},
	}
	got := Merge(defaults, Request{
		Headers: map[string]string{"X-A": "r"},
		Body: map[string]any{
			"meta": map[string]any{"owner": "r"},
		},
	})

	assert.Equal(t, map[string]string{"X-A": "r", "X-B": "d"}, got.Headers)
	assert.Equal(t, map[string]any{
		"meta": map[string]any{"owner": "r", "tier": "gold"},
		"flag": true,
	}, got.Body)
}

func TestMerge_DoesNotAliasDefaults(t *testing.T) {
	defaults := &Request{Body: map[string]any{"m": map[string]any{"k": 1}}}
	got := Merge(defaults, Request{})
	got.Body.(map[string]any)["m"].(map[string]any)["k"] = 2
	assert.Equal(t, 1, defaults.Body.(map[string]any)["m"].(map[string]any)["k"])
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		spec Spec
		ok   bool
	}{
		{"empty", Spec{}, false},
		{"relative path", Spec{Requests: []Request{{Path: "a"}}}, false},
		{"bad method", Spec{Requests: []Request{{Method: "TRACE", Path: "/a"}}}, false},
		{"nested batch", Spec{Requests: []Request{{Method: "POST", Path: "/v1/batch"}}}, false},
		{"path from defaults", Spec{Defaults: &Request{Path: "/a"}, Requests: []Request{{}}}, true},
		{"lowercase method", Spec{Requests: []Request{{Method: "post", Path: "/a"}}}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.spec)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			kind, _ := model.KindOf(err)
			assert.Equal(t, model.ErrValidationFailed, kind)
		})
	}
}

// fakeServer is a tiny in-memory collection store addressed by path.
type fakeServer struct {
	records map[string][]any
	calls   []string
}

func (f *fakeServer) Execute(_ context.Context, req Request) (Response, error) {
	f.calls = append(f.calls, req.Method+" "+req.Path)
	switch req.Method {
	case "POST":
		f.records[req.Path] = append(f.records[req.Path], req.Body)
		return Response{Status: http.StatusCreated, Body: req.Body}, nil
	case "GET":
		return Response{Status: http.StatusOK, Body: append([]any(nil), f.records[req.Path]...)}, nil
	}
	return Response{}, errors.New("unexpected")
}

func TestDispatch_Ordering(t *testing.T) {
	srv := &fakeServer{records: map[string][]any{}}
	d := New(srv, 0)

	out, err := d.Dispatch(context.Background(), Spec{Requests: []Request{
		{Method: "POST", Path: "/a", Body: map[string]any{"x": 1}},
		{Method: "GET", Path: "/a"},
	}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, http.StatusCreated, out[0].Status)
	assert.Equal(t, "/a", out[0].Path)
	assert.Equal(t, []any{map[string]any{"x": 1}}, out[1].Body)
	assert.Equal(t, []string{"POST /a", "GET /a"}, srv.calls)
}

func TestDispatch_FollowsRedirects(t *testing.T) {
	var seen []Request
	exec := ExecutorFunc(func(_ context.Context, req Request) (Response, error) {
		seen = append(seen, req)
		switch req.Path {
		case "/old":
			return Response{Status: http.StatusPermanentRedirect, Headers: map[string]string{"Location": "http://host/mid"}}, nil
		case "/mid":
			return Response{Status: http.StatusFound, Headers: map[string]string{"location": "/new?x=1"}}, nil
		}
		return Response{Status: http.StatusCreated, Body: req.Body}, nil
	})

	out, err := New(exec, 0).Dispatch(context.Background(), Spec{Requests: []Request{
		{Method: "POST", Path: "/old", Headers: map[string]string{"X-Trace": "1"}, Body: map[string]any{"v": true}},
	}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, http.StatusCreated, out[0].Status)
	assert.Equal(t, "/new?x=1", out[0].Path)
	assert.Equal(t, map[string]any{"v": true}, out[0].Body)

	require.Len(t, seen, 3)
	for _, req := range seen {
		assert.Equal(t, "POST", req.Method)
		assert.Equal(t, "1", req.Headers["X-Trace"])
	}
}

func TestDispatch_RelativeRedirects(t *testing.T) {
	var paths []string
	exec := ExecutorFunc(func(_ context.Context, req Request) (Response, error) {
		paths = append(paths, req.Path)
		switch req.Path {
		case "/v1/types/notes/objects/old":
			return Response{Status: http.StatusMovedPermanently, Headers: map[string]string{"Location": "new"}}, nil
		case "/v1/types/notes/objects/new":
			return Response{Status: http.StatusFound, Headers: map[string]string{"Location": "../../tasks/objects?limit=1"}}, nil
		}
		return Response{Status: http.StatusOK}, nil
	})

	out, err := New(exec, 0).Dispatch(context.Background(), Spec{Requests: []Request{
		{Method: "GET", Path: "/v1/types/notes/objects/old"},
	}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, http.StatusOK, out[0].Status)
	assert.Equal(t, []string{
		"/v1/types/notes/objects/old",
		"/v1/types/notes/objects/new",
		"/v1/types/tasks/objects?limit=1",
	}, paths)
}

func TestRedirectTarget(t *testing.T) {
	for _, tc := range []struct {
		from, loc string
		status    int
		want      string
		ok        bool
	}{
		{"/v1/types/t/objects/a", "b", http.StatusFound, "/v1/types/t/objects/b", true},
		{"/v1/types/t/objects/a", "./b?x=1", http.StatusSeeOther, "/v1/types/t/objects/b?x=1", true},
		{"/v1/types/t/objects/a", "/v1/types/u", http.StatusFound, "/v1/types/u", true},
		{"/v1/types/t/objects/a", "https://example.com/v1/types/u?x=1#frag", http.StatusFound, "/v1/types/u?x=1", true},
		{"/v1/types/t/objects/a", "?offset=2", http.StatusFound, "/v1/types/t/objects/a?offset=2", true},
		{"/v1/types/t/objects/a", "b", http.StatusNotModified, "", false},
		{"/v1/types/t/objects/a", "", http.StatusFound, "", false},
		{"/v1/types/t/objects/a", "b", http.StatusOK, "", false},
	} {
		t.Run(tc.loc, func(t *testing.T) {
			got, ok := redirectTarget(tc.from, Response{Status: tc.status, Headers: map[string]string{"Location": tc.loc}})
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDispatch_RedirectLoop(t *testing.T) {
	exec := ExecutorFunc(func(_ context.Context, req Request) (Response, error) {
		next := "/a"
		if req.Path == "/a" {
			next = "/b"
		}
		return Response{Status: http.StatusFound, Headers: map[string]string{"Location": next}}, nil
	})

	out, err := New(exec, 0).Dispatch(context.Background(), Spec{Requests: []Request{
		{Path: "/a"},
		{Path: "/a"},
	}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, http.StatusBadRequest, out[0].Status)
	body := out[0].Body.(model.ErrorBody)
	assert.Equal(t, model.ErrValidationFailed, body.Error.Kind)
	assert.Contains(t, body.Error.Message, "loop")
}

func TestDispatch_RedirectLimit(t *testing.T) {
	n := 0
	exec := ExecutorFunc(func(_ context.Context, req Request) (Response, error) {
		n++
		return Response{Status: http.StatusFound, Headers: map[string]string{"Location": "/hop/" + string(rune('a'+n))}}, nil
	})

	out, err := New(exec, 3).Dispatch(context.Background(), Spec{Requests: []Request{{Path: "/start"}}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, out[0].Status)
	assert.Equal(t, 4, n)
}

func TestDispatch_ErrorContainment(t *testing.T) {
	var calls int
	exec := ExecutorFunc(func(_ context.Context, req Request) (Response, error) {
		calls++
		switch req.Path {
		case "/forbidden":
			return Response{}, model.NewError(model.ErrForbidden, "t", "nope")
		case "/broken":
			return Response{}, errors.New("connection reset")
		case "/conflict":
			return Response{}, model.NewError(model.ErrStorageConflict, "t", "bad column")
		}
		return Response{Status: http.StatusOK}, nil
	})
	d := New(exec, 0)
	ctx := context.Background()

	out, err := d.Dispatch(ctx, Spec{Requests: []Request{{Path: "/forbidden"}, {Path: "/ok"}}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, http.StatusForbidden, out[0].Status)
	assert.Equal(t, "t", out[0].Body.(model.ErrorBody).Error.TypeID)
	assert.Equal(t, http.StatusOK, out[1].Status)

	calls = 0
	out, err = d.Dispatch(ctx, Spec{Requests: []Request{{Path: "/ok"}, {Path: "/broken"}, {Path: "/ok"}}})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 2, calls, "requests after an unrecoverable failure must not run")

	_, err = d.Dispatch(ctx, Spec{Requests: []Request{{Path: "/conflict"}}})
	kind, _ := model.KindOf(err)
	assert.Equal(t, model.ErrStorageConflict, kind)
}
