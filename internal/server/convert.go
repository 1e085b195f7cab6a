package server

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// structToMap converts a protobuf Struct to a generic map. Numbers come
// back as json.Number so whole numbers still infer as integers.
func structToMap(s *structpb.Struct) (map[string]any, error) {
	if s == nil {
		return map[string]any{}, nil
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding struct: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding struct: %w", err)
	}
	return out, nil
}

// toStruct converts any JSON-encodable value to a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("converting response: %w", err)
	}
	return out, nil
}

// stringField reads a string member of a request.
func stringField(m map[string]any, name string) string {
	s, _ := m[name].(string)
	return s
}

// objectField reads an object member of a request.
func objectField(m map[string]any, name string) map[string]any {
	o, _ := m[name].(map[string]any)
	return o
}

// intField reads a non-negative integer member of a request.
func intField(m map[string]any, name string) (int, error) {
	v, ok := m[name]
	if !ok || v == nil {
		return 0, nil
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, model.NewError(model.ErrValidationFailed, "", "%s must be a number", name)
	}
	i, err := n.Int64()
	if err != nil || i < 0 {
		return 0, model.NewError(model.ErrValidationFailed, "", "%s must be a non-negative integer", name)
	}
	return int(i), nil
}

// grpcError converts a classified error to a gRPC status error.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	detail := model.Describe(err)
	code := codes.Internal
	switch detail.Kind {
	case model.ErrTypeNotFound, model.ErrNotFound:
		code = codes.NotFound
	case model.ErrForbidden:
		code = codes.PermissionDenied
	case model.ErrUnauthenticated:
		code = codes.Unauthenticated
	case model.ErrValidationFailed:
		code = codes.InvalidArgument
	case model.ErrStorageConflict:
		code = codes.Aborted
	}
	return status.Error(code, detail.Message)
}
