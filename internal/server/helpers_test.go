package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alfredjeanlab/moisturizer/internal/auth"
	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/store/memory"
)

const testToken = "test-token"

func newTestServer(t *testing.T) (*Server, *memory.Store, http.Handler) {
	t.Helper()
	return newTestServerWith(t, Config{})
}

func newTestServerWith(t *testing.T, cfg Config) (*Server, *memory.Store, http.Handler) {
	t.Helper()
	st := memory.New()
	cfg.AuthToken = testToken
	cfg.AdminID = "admin"
	srv := New(st, nil, cfg)
	if err := srv.Bootstrap(context.Background(), ""); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return srv, st, srv.NewHTTPHandler()
}

func bodyReader(body any) io.Reader {
	switch b := body.(type) {
	case nil:
		return nil
	case string:
		return bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		return bytes.NewReader(raw)
	}
}

func adminRequest(method, path string, body any) *http.Request {
	req := httptest.NewRequest(method, path, bodyReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func userRequest(method, path, user, key string, body any) *http.Request {
	req := httptest.NewRequest(method, path, bodyReader(body))
	cred := base64.StdEncoding.EncodeToString([]byte(user + ":" + key))
	req.Header.Set("Authorization", "Basic "+cred)
	return req
}

// createUser stores a plain user and returns its API key.
func createUser(t *testing.T, st *memory.Store, id string) string {
	t.Helper()
	u, err := auth.NewUser(id, model.RoleUser, "")
	if err != nil {
		t.Fatalf("new user: %v", err)
	}
	if err := st.PutUser(context.Background(), u); err != nil {
		t.Fatalf("put user: %v", err)
	}
	return u.APIKey
}

func grantCaps(t *testing.T, st *memory.Store, key model.GrantKey, caps model.Capabilities) {
	t.Helper()
	if err := st.PutGrant(context.Background(), &model.Grant{GrantKey: key, Capabilities: caps}); err != nil {
		t.Fatalf("put grant: %v", err)
	}
}

// serve runs req through h and decodes a JSON response into out when out
// is non-nil.
func serve(t *testing.T, h http.Handler, req *http.Request, wantStatus int, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d: %s", req.Method, req.URL, wantStatus, rec.Code, rec.Body.String())
	}
	if out != nil {
		dec := json.NewDecoder(rec.Body)
		dec.UseNumber()
		if err := dec.Decode(out); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
	return rec
}

// errorCode decodes an error body and returns its error_code.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorKind {
	t.Helper()
	var body model.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Kind
}
