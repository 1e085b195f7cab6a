package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// HTTPClient implements Client using the moisturizer HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080").
func NewHTTPClient(baseURL string, creds Credentials) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Types ---

func (c *HTTPClient) ListTypes(ctx context.Context) ([]*model.TypeDescriptor, error) {
	var ds []*model.TypeDescriptor
	if err := c.doJSON(ctx, http.MethodGet, "/v1/types", nil, &ds); err != nil {
		return nil, err
	}
	return ds, nil
}

func (c *HTTPClient) GetType(ctx context.Context, id string) (*model.TypeDescriptor, error) {
	var d model.TypeDescriptor
	if err := c.doJSON(ctx, http.MethodGet, typePath(id), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *HTTPClient) DeclareType(ctx context.Context, req *DeclareTypeRequest) (*model.TypeDescriptor, error) {
	var d model.TypeDescriptor
	if err := c.doJSON(ctx, http.MethodPut, typePath(req.ID), req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *HTTPClient) DeleteType(ctx context.Context, id string) (*model.TypeDescriptor, error) {
	var d model.TypeDescriptor
	if err := c.doJSON(ctx, http.MethodDelete, typePath(id), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// --- Objects ---

func (c *HTTPClient) ListObjects(ctx context.Context, typeID string, filter url.Values) ([]Object, error) {
	path := typePath(typeID) + "/objects"
	if len(filter) > 0 {
		path += "?" + filter.Encode()
	}
	var objs []Object
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &objs); err != nil {
		return nil, err
	}
	return objs, nil
}

func (c *HTTPClient) GetObject(ctx context.Context, typeID, id string) (Object, error) {
	return c.object(ctx, http.MethodGet, objectPath(typeID, id), nil)
}

func (c *HTTPClient) CreateObject(ctx context.Context, typeID string, body Object) (Object, error) {
	return c.object(ctx, http.MethodPost, typePath(typeID)+"/objects", body)
}

func (c *HTTPClient) PutObject(ctx context.Context, typeID, id string, body Object) (Object, error) {
	return c.object(ctx, http.MethodPut, objectPath(typeID, id), body)
}

func (c *HTTPClient) PatchObject(ctx context.Context, typeID, id string, body Object) (Object, error) {
	return c.object(ctx, http.MethodPatch, objectPath(typeID, id), body)
}

func (c *HTTPClient) DeleteObject(ctx context.Context, typeID, id string) (Object, error) {
	return c.object(ctx, http.MethodDelete, objectPath(typeID, id), nil)
}

func (c *HTTPClient) object(ctx context.Context, method, path string, body Object) (Object, error) {
	var obj Object
	var reqBody any
	if body != nil {
		reqBody = body
	}
	if err := c.doJSON(ctx, method, path, reqBody, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// --- Users and grants ---

func (c *HTTPClient) ListUsers(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	if err := c.doJSON(ctx, http.MethodGet, "/v1/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *HTTPClient) CreateUser(ctx context.Context, req *CreateUserRequest) (*model.User, error) {
	var u model.User
	if err := c.doJSON(ctx, http.MethodPost, "/v1/users", req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) DeleteUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := c.doJSON(ctx, http.MethodDelete, "/v1/users/"+url.PathEscape(id), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) ListGrants(ctx context.Context, userID string) ([]*model.Grant, error) {
	var grants []*model.Grant
	if err := c.doJSON(ctx, http.MethodGet, grantsPath(userID), nil, &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

func (c *HTTPClient) SetGrant(ctx context.Context, userID string, req *SetGrantRequest) (*model.Grant, error) {
	var g model.Grant
	if err := c.doJSON(ctx, http.MethodPost, grantsPath(userID), req, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *HTTPClient) RevokeGrant(ctx context.Context, userID, resourceID, typeScope string) error {
	path := grantsPath(userID) + "/" + url.PathEscape(resourceID)
	if typeScope != "" {
		path += "?" + url.Values{"type": {typeScope}}.Encode()
	}
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// --- Batch ---

func (c *HTTPClient) Batch(ctx context.Context, spec json.RawMessage) (*BatchResponse, error) {
	var resp BatchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/batch", spec, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

func typePath(id string) string { return "/v1/types/" + url.PathEscape(id) }

func objectPath(typeID, id string) string {
	return typePath(typeID) + "/objects/" + url.PathEscape(id)
}

func grantsPath(userID string) string {
	return "/v1/users/" + url.PathEscape(userID) + "/permissions"
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Kind       model.ErrorKind
	TypeID     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (c *HTTPClient) authorize(req *http.Request) {
	switch {
	case c.creds.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.creds.Token)
	case c.creds.User != "":
		req.SetBasicAuth(c.creds.User, c.creds.Secret)
	}
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content: success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp model.ErrorBody
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return &APIError{
				StatusCode: resp.StatusCode,
				Kind:       errResp.Error.Kind,
				TypeID:     errResp.Error.TypeID,
				Message:    errResp.Error.Message,
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil {
		dec := json.NewDecoder(bytes.NewReader(respBody))
		dec.UseNumber()
		if err := dec.Decode(result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
