package api

import (
	"context"
	"time"

	"github.com/matheus3301/chatsync/internal/app"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/messenger"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// SessionService reports daemon state and handles login and logout.
type SessionService struct {
	sessionName string
	startedAt   time.Time
	runtime     *app.Runtime
	machine     *status.Machine
	store       *store.Store
	bus         *bus.Bus
	logger      *zap.Logger
}

func NewSessionService(sessionName string, rt *app.Runtime, machine *status.Machine, st *store.Store, b *bus.Bus, logger *zap.Logger) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		runtime:     rt,
		machine:     machine,
		store:       st,
		bus:         b,
		logger:      logger,
	}
}

func (s *SessionService) Register(r grpc.ServiceRegistrar) {
	svc := newService("SessionService")
	unary(svc, "Status", s.Status)
	unary(svc, "Login", s.Login)
	unary(svc, "Logout", s.Logout)
	unary(svc, "SetWifi", s.SetWifi)
	svc.watch("Watch", s.sessionName, s.bus, "session.")
	svc.register(r, s)
}

func (s *SessionService) Status(ctx context.Context, _ *Empty) (*StatusResponse, error) {
	settings := s.runtime.Settings()
	resp := &StatusResponse{
		Session:  s.sessionName,
		State:    string(s.machine.Current()),
		Wifi:     settings.Network.Wifi,
		Remote:   settings.Remote.URL,
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
	}
	sess, err := s.runtime.Active()
	if err != nil {
		return resp, nil
	}
	resp.UserID = sess.UserID
	resp.Online = sess.Monitor.IsOnline()

	// Counts are best effort.
	if chats, err := sess.Messenger.Chats(ctx, messenger.ChatFilter{}); err == nil {
		resp.Chats = len(chats)
	}
	if n, err := chat.Unread(ctx, s.store); err == nil {
		resp.Unread = n
	}
	return resp, nil
}

func (s *SessionService) Login(ctx context.Context, req *LoginRequest) (*StatusResponse, error) {
	if err := session.ValidateUserID(req.UserID); err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	err := s.runtime.Login(ctx, config.Credentials{UserID: req.UserID, Email: req.Email, Token: req.Token})
	if err != nil {
		s.logger.Error("login failed", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, err
	}
	return s.Status(ctx, &Empty{})
}

func (s *SessionService) Logout(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.runtime.Logout(ctx); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *SessionService) SetWifi(ctx context.Context, req *SetWifiRequest) (*StatusResponse, error) {
	if err := s.runtime.SetWifi(req.Wifi); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "save settings: %v", err)
	}
	return s.Status(ctx, &Empty{})
}
