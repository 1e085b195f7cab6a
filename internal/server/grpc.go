package server

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/moisturizer/internal/batch"
	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/typemodel"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "moisturizer.v1.Moisturizer"

const healthMethod = "/" + ServiceName + "/Health"

// NewGRPCServer creates a gRPC server with standard interceptors,
// registers the Moisturizer service and reflection, and returns the server
// ready to serve.
func NewGRPCServer(s *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		RecoveryInterceptor,
		LoggingInterceptor,
		s.AuthInterceptor(),
	))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&serviceDesc, s)
	reflection.Register(srv)
	return srv
}

// structHandler is the shape every method of the service has: a Struct in,
// a Struct out.
type structHandler func(s *Server, ctx context.Context, id model.Identity, in map[string]any) (any, error)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("Health", rpcHealth),
		unary("ListTypes", rpcListTypes),
		unary("GetType", rpcGetType),
		unary("CreateObject", rpcCreateObject),
		unary("ListObjects", rpcListObjects),
		unary("GetObject", rpcGetObject),
		unary("Resolve", rpcResolve),
		unary("Batch", rpcBatch),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "moisturizer/v1/moisturizer.proto",
}

// unary builds the method descriptor for fn, decoding the request Struct
// and running the interceptor chain.
func unary(name string, fn structHandler) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, req any) (any, error) {
				args, err := structToMap(req.(*structpb.Struct))
				if err != nil {
					return nil, grpcError(model.WrapError(model.ErrValidationFailed, "", err))
				}
				id, _ := IdentityFrom(ctx)
				out, err := fn(srv.(*Server), ctx, id, args)
				if err != nil {
					return nil, grpcError(err)
				}
				return toStruct(out)
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, call)
		},
	}
}

func rpcHealth(_ *Server, _ context.Context, _ model.Identity, _ map[string]any) (any, error) {
	return map[string]string{"status": "ok"}, nil
}

func rpcListTypes(s *Server, ctx context.Context, id model.Identity, _ map[string]any) (any, error) {
	ds, err := s.listTypes(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"types": ds}, nil
}

func rpcGetType(s *Server, ctx context.Context, id model.Identity, in map[string]any) (any, error) {
	typeID, err := requireString(in, "type")
	if err != nil {
		return nil, err
	}
	return s.getType(ctx, id, typeID)
}

func rpcCreateObject(s *Server, ctx context.Context, id model.Identity, in map[string]any) (any, error) {
	typeID, err := requireString(in, "type")
	if err != nil {
		return nil, err
	}
	data := objectField(in, "data")
	if data == nil {
		return nil, model.NewError(model.ErrValidationFailed, typeID, "data is required")
	}
	return s.createObject(ctx, id, typeID, data)
}

func rpcListObjects(s *Server, ctx context.Context, id model.Identity, in map[string]any) (any, error) {
	typeID, err := requireString(in, "type")
	if err != nil {
		return nil, err
	}
	q := typemodel.Query{Equals: map[string]string{}}
	for k, v := range objectField(in, "filter") {
		q.Equals[k] = fmt.Sprint(v)
	}
	if q.Limit, err = intField(in, "limit"); err != nil {
		return nil, err
	}
	if q.Offset, err = intField(in, "offset"); err != nil {
		return nil, err
	}
	recs, err := s.listObjects(ctx, id, typeID, q)
	if err != nil {
		return nil, err
	}
	return map[string]any{"objects": recs}, nil
}

func rpcGetObject(s *Server, ctx context.Context, id model.Identity, in map[string]any) (any, error) {
	typeID, err := requireString(in, "type")
	if err != nil {
		return nil, err
	}
	recordID, err := requireString(in, "id")
	if err != nil {
		return nil, err
	}
	return s.getObject(ctx, id, typeID, recordID)
}

func rpcResolve(s *Server, ctx context.Context, id model.Identity, in map[string]any) (any, error) {
	typeID, err := requireString(in, "type")
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, id, typeID, stringField(in, "id"))
}

// rpcBatch runs a batch spec given in the request's "defaults" and
// "requests" members.
func rpcBatch(s *Server, ctx context.Context, _ model.Identity, in map[string]any) (any, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encoding batch: %w", err)
	}
	var spec batch.Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, model.NewError(model.ErrValidationFailed, "", "invalid batch: %v", err)
	}
	out, err := s.batch.Dispatch(ctx, spec)
	if err != nil {
		return nil, err
	}
	return batchResult{Responses: out}, nil
}

func requireString(in map[string]any, name string) (string, error) {
	v := stringField(in, name)
	if v == "" {
		return "", model.NewError(model.ErrValidationFailed, "", "%s is required", name)
	}
	return v, nil
}
