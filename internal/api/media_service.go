package api

import (
	"context"

	"github.com/matheus3301/chatsync/internal/app"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/media"
	"google.golang.org/grpc"
)

// MediaService makes media available locally on demand.
type MediaService struct {
	sessionName string
	runtime     *app.Runtime
	bus         *bus.Bus
}

func NewMediaService(sessionName string, rt *app.Runtime, b *bus.Bus) *MediaService {
	return &MediaService{sessionName: sessionName, runtime: rt, bus: b}
}

func (s *MediaService) Register(r grpc.ServiceRegistrar) {
	svc := newService("MediaService")
	unary(svc, "Ensure", s.Ensure)
	unary(svc, "ClearManual", s.ClearManual)
	svc.watch("Watch", s.sessionName, s.bus, "media.")
	svc.register(r, s)
}

func (s *MediaService) Ensure(ctx context.Context, req *MediaRequest) (*MediaResponse, error) {
	sess, err := s.runtime.Active()
	if err != nil {
		return nil, err
	}
	kind, err := media.ParseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	res, err := sess.Media.Ensure(ctx, req.Name, kind, req.ChatID)
	if err != nil {
		return nil, err
	}
	return &MediaResponse{State: string(res.State), Path: res.Path, Reason: res.Reason}, nil
}

// ClearManual lets the next Ensure fetch an item that was left for manual
// download.
func (s *MediaService) ClearManual(_ context.Context, req *MediaRequest) (*Empty, error) {
	sess, err := s.runtime.Active()
	if err != nil {
		return nil, err
	}
	kind, err := media.ParseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	if err := sess.Media.ClearManual(req.Name, kind); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}
