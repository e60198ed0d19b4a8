// Package api exposes the daemon over gRPC on the session socket.
//
// Every message is a google.protobuf.Struct carrying the JSON form of the Go
// request and response types in types.go, so services are described by
// hand-written grpc.ServiceDesc values instead of generated stubs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/app"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/syncerr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Package is the protobuf package of every service.
const Package = "chatsync.v1"

// watchBuffer is the bus buffer of one watch stream.
const watchBuffer = 256

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, v any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// service collects the methods of one gRPC service.
type service struct {
	desc grpc.ServiceDesc
}

func newService(name string) *service {
	return &service{desc: grpc.ServiceDesc{
		ServiceName: Package + "." + name,
		HandlerType: (*any)(nil),
		Metadata:    "chatsync/v1/" + name,
	}}
}

func (s *service) register(r grpc.ServiceRegistrar, impl any) {
	r.RegisterService(&s.desc, impl)
}

// unary adds a request/response method.
func unary[Req, Resp any](s *service, name string, fn func(context.Context, *Req) (*Resp, error)) {
	full := "/" + s.desc.ServiceName + "/" + name
	s.desc.Methods = append(s.desc.Methods, grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handle := func(ctx context.Context, req any) (any, error) {
				r := new(Req)
				if err := fromStruct(req.(*structpb.Struct), r); err != nil {
					return nil, grpcstatus.Errorf(codes.InvalidArgument, "decode %s: %v", name, err)
				}
				resp, err := fn(ctx, r)
				if err != nil {
					return nil, toStatus(err)
				}
				return toStruct(resp)
			}
			if interceptor == nil {
				return handle(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: full}, handle)
		},
	})
}

// watch adds a server-streaming method that forwards bus events whose kind
// starts with prefix.
func (s *service) watch(name, sessionName string, b *bus.Bus, prefix string) {
	s.desc.Streams = append(s.desc.Streams, grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(_ any, stream grpc.ServerStream) error {
			in := new(structpb.Struct)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			var req WatchRequest
			if err := fromStruct(in, &req); err != nil {
				return grpcstatus.Errorf(codes.InvalidArgument, "decode %s: %v", name, err)
			}
			return forward(stream, sessionName, b, prefix+req.Kind)
		},
	})
}

func forward(stream grpc.ServerStream, sessionName string, b *bus.Bus, prefix string) error {
	ch, unsub := b.Subscribe(prefix, watchBuffer)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			out, err := toStruct(Event{
				ID:         uuid.NewString(),
				Session:    sessionName,
				Kind:       evt.Kind,
				OccurredAt: evt.Timestamp.UnixMilli(),
				Payload:    evt.Payload,
			})
			if err != nil {
				return grpcstatus.Errorf(codes.Internal, "encode event: %v", err)
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

// toStatus maps domain errors to gRPC codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if st, ok := grpcstatus.FromError(err); ok && st.Code() != codes.Unknown {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, app.ErrLoggedOut):
		code = codes.FailedPrecondition
	case errors.Is(err, syncerr.ErrUnauthorized):
		code = codes.PermissionDenied
	case errors.Is(err, syncerr.ErrUnsupported):
		code = codes.InvalidArgument
	case errors.Is(err, syncerr.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, syncerr.ErrDataIntegrity), errors.Is(err, syncerr.ErrManualRequired):
		code = codes.FailedPrecondition
	case syncerr.IsTransient(err):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return grpcstatus.Error(code, err.Error())
}
