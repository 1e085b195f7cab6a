package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alfredjeanlab/moisturizer/internal/batch"
	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// batchResult is the body of a batch response.
type batchResult struct {
	Responses []batch.Response `json:"responses"`
}

// handleBatch handles POST /v1/batch.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) error {
	var spec batch.Spec
	if err := decodeJSON(r, &spec); err != nil {
		return err
	}
	out, err := s.batch.Dispatch(r.Context(), spec)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, batchResult{Responses: out})
	return nil
}

// executeSubrequest runs one batch sub-request through the routes in
// process. The caller's identity travels in ctx, so sub-requests are not
// authenticated again.
func (s *Server) executeSubrequest(ctx context.Context, req batch.Request) (batch.Response, error) {
	var body *bytes.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return batch.Response{}, model.NewError(model.ErrValidationFailed, "", "encoding body of %s %s: %v", req.Method, req.Path, err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	sink := &errSink{}
	hr, err := http.NewRequestWithContext(context.WithValue(ctx, errSinkKey, sink), req.Method, req.Path, body)
	if err != nil {
		return batch.Response{}, model.NewError(model.ErrValidationFailed, "", "invalid sub-request %s %s: %v", req.Method, req.Path, err)
	}
	for k, v := range req.Headers {
		hr.Header.Set(k, v)
	}
	if req.Body != nil && hr.Header.Get("Content-Type") == "" {
		hr.Header.Set("Content-Type", "application/json")
	}

	rec := newBufferedResponse()
	s.routes.ServeHTTP(rec, hr)
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	if sink.err != nil && !model.Recoverable(sink.err) {
		return batch.Response{}, fmt.Errorf("%s %s: %w", req.Method, req.Path, sink.err)
	}
	return batch.Response{
		Path:    req.Path,
		Status:  rec.status,
		Headers: rec.flatHeaders(),
		Body:    rec.decodedBody(),
	}, nil
}

// bufferedResponse is an http.ResponseWriter that keeps everything in
// memory.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) flatHeaders() map[string]string {
	out := make(map[string]string, len(b.header))
	for k := range b.header {
		out[k] = b.header.Get(k)
	}
	return out
}

// decodedBody returns JSON bodies as raw JSON and anything else as text.
func (b *bufferedResponse) decodedBody() any {
	raw := bytes.TrimSpace(b.body.Bytes())
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	return string(raw)
}
