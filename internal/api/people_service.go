package api

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/app"
	"github.com/matheus3301/chatsync/internal/messenger"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/syncerr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// PeopleService manages the user's profile, settings and contacts.
type PeopleService struct {
	runtime *app.Runtime
}

func NewPeopleService(rt *app.Runtime) *PeopleService {
	return &PeopleService{runtime: rt}
}

func (s *PeopleService) Register(r grpc.ServiceRegistrar) {
	svc := newService("PeopleService")
	unary(svc, "Me", s.Me)
	unary(svc, "UpdateProfile", s.UpdateProfile)
	unary(svc, "SetPicture", s.SetPicture)
	unary(svc, "SetNetwork", s.SetNetwork)
	unary(svc, "SetKeepMedia", s.SetKeepMedia)
	unary(svc, "Friends", s.Friends)
	unary(svc, "AddFriend", s.AddFriend)
	unary(svc, "RemoveFriend", s.RemoveFriend)
	unary(svc, "Block", s.Block)
	unary(svc, "Unblock", s.Unblock)
	unary(svc, "BlockState", s.BlockState)
	svc.register(r, s)
}

func (s *PeopleService) Me(ctx context.Context, _ *Empty) (*PersonResponse, error) {
	m, err := messengerOf(s.runtime)
	if err != nil {
		return nil, err
	}
	p, err := m.Me(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, grpcstatus.Errorf(codes.NotFound, "person %s not synced yet", m.UserID())
	}
	return &PersonResponse{Person: personView(p)}, nil
}

func (s *PeopleService) UpdateProfile(ctx context.Context, req *ProfileRequest) (*Changed, error) {
	return set(s.runtime, func(m *messenger.Messenger) (bool, error) {
		return m.UpdateProfile(ctx, messenger.Profile{
			Firstname: req.Firstname,
			Lastname:  req.Lastname,
			Country:   req.Country,
			Location:  req.Location,
			Status:    req.Status,
		})
	})
}

func (s *PeopleService) SetPicture(ctx context.Context, req *PathRequest) (*Empty, error) {
	return do(s.runtime, func(m *messenger.Messenger) error { return m.SetPicture(ctx, req.Path) })
}

func (s *PeopleService) SetNetwork(ctx context.Context, req *NetworkRequest) (*Changed, error) {
	p, ok := model.ParseNetworkPolicy(req.Policy)
	if !ok {
		return nil, fmt.Errorf("network policy %q: %w", req.Policy, syncerr.ErrUnsupported)
	}
	return set(s.runtime, func(m *messenger.Messenger) (bool, error) {
		return m.SetNetwork(ctx, model.MessageType(req.Type), p)
	})
}

func (s *PeopleService) SetKeepMedia(ctx context.Context, req *KeepMediaRequest) (*Changed, error) {
	k, ok := model.ParseKeepMedia(req.Keep)
	if !ok {
		return nil, fmt.Errorf("keep media %q: %w", req.Keep, syncerr.ErrUnsupported)
	}
	return set(s.runtime, func(m *messenger.Messenger) (bool, error) { return m.SetKeepMedia(ctx, k) })
}

func (s *PeopleService) Friends(ctx context.Context, _ *Empty) (*UserList, error) {
	m, err := messengerOf(s.runtime)
	if err != nil {
		return nil, err
	}
	ids, err := m.Friends(ctx)
	if err != nil {
		return nil, err
	}
	return &UserList{UserIDs: ids}, nil
}

func (s *PeopleService) AddFriend(ctx context.Context, req *UserRef) (*Empty, error) {
	return do(s.runtime, func(m *messenger.Messenger) error { return m.AddFriend(ctx, req.UserID) })
}

func (s *PeopleService) RemoveFriend(ctx context.Context, req *UserRef) (*Empty, error) {
	return do(s.runtime, func(m *messenger.Messenger) error { return m.RemoveFriend(ctx, req.UserID) })
}

func (s *PeopleService) Block(ctx context.Context, req *UserRef) (*Empty, error) {
	return do(s.runtime, func(m *messenger.Messenger) error { return m.Block(ctx, req.UserID) })
}

func (s *PeopleService) Unblock(ctx context.Context, req *UserRef) (*Empty, error) {
	return do(s.runtime, func(m *messenger.Messenger) error { return m.Unblock(ctx, req.UserID) })
}

// BlockState reports whether the user blocked req.UserID and whether
// req.UserID blocked the user.
func (s *PeopleService) BlockState(ctx context.Context, req *UserRef) (*BlockState, error) {
	m, err := messengerOf(s.runtime)
	if err != nil {
		return nil, err
	}
	blocked, err := m.IsBlocked(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	blocker, err := m.IsBlocker(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &BlockState{Blocked: blocked, Blocker: blocker}, nil
}
