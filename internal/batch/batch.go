// Package batch runs a sequence of sub-requests as one call.
//
// Sub-requests run one after another in submission order, without a
// shared transaction: earlier effects stay committed when a later request
// fails. Redirects are followed up to a fixed bound.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// DefaultMaxRedirects bounds the redirect chain of one sub-request.
const DefaultMaxRedirects = 10

// Path is the batch endpoint. Sub-requests may not target it.
const Path = "/v1/batch"

// Request is one sub-request, or the defaults applied to every one.
type Request struct {
	Method  string            `json:"method,omitempty"`
	Path    string            `json:"path,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// Spec is a batch call.
type Spec struct {
	Defaults *Request  `json:"defaults,omitempty"`
	Requests []Request `json:"requests"`
}

// Response is the outcome of one sub-request. Path is where the final
// response came from, after redirects.
type Response struct {
	Path    string            `json:"path"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// Executor runs one sub-request. Recognized failures may be returned
// either as an error response or as a classified error; any other error
// aborts the batch.
type Executor interface {
	Execute(ctx context.Context, req Request) (Response, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (Response, error)

func (f ExecutorFunc) Execute(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

var allowedMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// Validate checks a spec after defaults have been merged into it.
func Validate(spec Spec) error {
	ve := &model.ValidationError{}
	if len(spec.Requests) == 0 {
		ve.Add("requests", "must not be empty")
		return ve
	}
	for i, req := range Prepare(spec) {
		field := fmt.Sprintf("requests.%d", i)
		if !allowedMethods[req.Method] {
			ve.Add(field+".method", "unsupported method %q", req.Method)
		}
		if !strings.HasPrefix(req.Path, "/") {
			ve.Add(field+".path", "must be absolute")
		} else if isBatchPath(req.Path) {
			ve.Add(field+".path", "batch requests cannot be nested")
		}
	}
	return ve.Err()
}

func isBatchPath(path string) bool {
	p, _, _ := strings.Cut(path, "?")
	return strings.TrimSuffix(p, "/") == Path
}

// Prepare merges the defaults into every request and normalizes methods.
// GET is assumed when no method is given.
func Prepare(spec Spec) []Request {
	out := make([]Request, len(spec.Requests))
	for i, req := range spec.Requests {
		merged := Merge(spec.Defaults, req)
		merged.Method = strings.ToUpper(merged.Method)
		if merged.Method == "" {
			merged.Method = "GET"
		}
		out[i] = merged
	}
	return out
}

// Merge fills the gaps of req from defaults. Keys req defines are never
// overwritten; nested objects merge recursively.
func Merge(defaults *Request, req Request) Request {
	if defaults == nil {
		return req
	}
	out := req
	if out.Method == "" {
		out.Method = defaults.Method
	}
	if out.Path == "" {
		out.Path = defaults.Path
	}
	if len(defaults.Headers) > 0 {
		headers := make(map[string]string, len(defaults.Headers)+len(req.Headers))
		for k, v := range defaults.Headers {
			headers[k] = v
		}
		for k, v := range req.Headers {
			headers[k] = v
		}
		out.Headers = headers
	}
	out.Body = MergeValues(defaults.Body, req.Body)
	return out
}

// MergeValues merges def into v. Objects merge key by key with v winning;
// any other value in v replaces def.
func MergeValues(def, v any) any {
	if v == nil {
		return cloneValue(def)
	}
	vm, ok := v.(map[string]any)
	if !ok {
		return v
	}
	dm, ok := def.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(dm)+len(vm))
	for k, dv := range dm {
		out[k] = cloneValue(dv)
	}
	for k, rv := range vm {
		out[k] = MergeValues(dm[k], rv)
	}
	return out
}

func cloneValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, e := range m {
		out[k] = cloneValue(e)
	}
	return out
}

// Dispatcher executes batch specs.
type Dispatcher struct {
	exec         Executor
	maxRedirects int
}

// New returns a dispatcher. A non-positive maxRedirects uses
// DefaultMaxRedirects.
func New(exec Executor, maxRedirects int) *Dispatcher {
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}
	return &Dispatcher{exec: exec, maxRedirects: maxRedirects}
}

// Dispatch validates spec and runs its requests in order. It returns one
// response per request in submission order. A failure that is not
// recoverable aborts the batch and no responses are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, spec Spec) ([]Response, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}
	reqs := Prepare(spec)
	out := make([]Response, 0, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := d.follow(ctx, req)
		if err != nil {
			slog.Error("batch aborted", "index", i, "method", req.Method, "path", req.Path, "error", err)
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

// follow runs req and re-issues it at each redirect target, keeping the
// method, headers and body.
func (d *Dispatcher) follow(ctx context.Context, req Request) (Response, error) {
	visited := map[string]bool{req.Path: true}
	for hops := 0; ; hops++ {
		resp, err := d.exec.Execute(ctx, req)
		if err != nil {
			if !model.Recoverable(err) {
				return Response{}, err
			}
			return ErrorResponse(req.Path, err), nil
		}
		if resp.Path == "" {
			resp.Path = req.Path
		}
		target, ok := redirectTarget(req.Path, resp)
		if !ok {
			return resp, nil
		}
		if hops >= d.maxRedirects {
			return ErrorResponse(req.Path, model.NewError(model.ErrValidationFailed, "",
				"redirect limit of %d exceeded", d.maxRedirects)), nil
		}
		if visited[target] {
			return ErrorResponse(req.Path, model.NewError(model.ErrValidationFailed, "",
				"redirect loop at %s", target)), nil
		}
		visited[target] = true
		req.Path = target
	}
}

// redirectTarget returns the path a 3xx response to a request for from
// points to. Relative Locations resolve against from; absolute URLs are
// reduced to their path and query.
func redirectTarget(from string, resp Response) (string, bool) {
	if resp.Status < 300 || resp.Status >= 400 || resp.Status == 304 {
		return "", false
	}
	loc := headerValue(resp.Headers, "Location")
	if loc == "" {
		return "", false
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return "", false
	}
	base, err := url.Parse(from)
	if err != nil {
		return "", false
	}
	target := base.ResolveReference(ref)
	target.Scheme, target.Host, target.User, target.Fragment = "", "", nil, ""
	if target.Path == "" {
		target.Path = "/"
	}
	return target.RequestURI(), true
}

func headerValue(h map[string]string, name string) string {
	if v, ok := h[name]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// ErrorResponse renders a recognized failure as a sub-response.
func ErrorResponse(path string, err error) Response {
	detail := model.Describe(err)
	return Response{
		Path:    path,
		Status:  detail.Kind.HTTPStatus(),
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    model.ErrorBody{Error: detail},
	}
}
