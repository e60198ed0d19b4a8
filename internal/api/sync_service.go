package api

import (
	"context"

	"github.com/matheus3301/chatsync/internal/app"
	"github.com/matheus3301/chatsync/internal/bus"
	"google.golang.org/grpc"
)

// SyncService reports upload and download progress.
type SyncService struct {
	sessionName string
	runtime     *app.Runtime
	bus         *bus.Bus
}

func NewSyncService(sessionName string, rt *app.Runtime, b *bus.Bus) *SyncService {
	return &SyncService{sessionName: sessionName, runtime: rt, bus: b}
}

func (s *SyncService) Register(r grpc.ServiceRegistrar) {
	svc := newService("SyncService")
	unary(svc, "Status", s.Status)
	unary(svc, "Flush", s.Flush)
	svc.watch("Watch", s.sessionName, s.bus, "sync.")
	svc.register(r, s)
}

func (s *SyncService) Status(ctx context.Context, _ *Empty) (*SyncStatusResponse, error) {
	sess, err := s.runtime.Active()
	if err != nil {
		return nil, err
	}
	cols, err := sess.Uploaders.Status(ctx)
	if err != nil {
		return nil, err
	}
	resp := &SyncStatusResponse{
		Collections: make([]Collection, 0, len(cols)),
		Chats:       sess.Registry.Chats(),
		Dropped:     s.bus.Dropped(),
	}
	for _, c := range cols {
		resp.Collections = append(resp.Collections, collectionView(c))
	}
	return resp, nil
}

// Flush uploads every dirty record now, ignoring the poll interval. Records
// that fail stay dirty.
func (s *SyncService) Flush(ctx context.Context, _ *Empty) (*FlushResponse, error) {
	sess, err := s.runtime.Active()
	if err != nil {
		return nil, err
	}
	return &FlushResponse{Uploaded: sess.Uploaders.Flush(ctx)}, nil
}
