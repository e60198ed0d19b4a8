package api

import (
	"context"

	"github.com/matheus3301/chatsync/internal/app"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/media"
	"github.com/matheus3301/chatsync/internal/messenger"
	"github.com/matheus3301/chatsync/internal/model"
	"google.golang.org/grpc"
)

// MessageService reads and sends messages.
type MessageService struct {
	sessionName string
	runtime     *app.Runtime
	bus         *bus.Bus
}

func NewMessageService(sessionName string, rt *app.Runtime, b *bus.Bus) *MessageService {
	return &MessageService{sessionName: sessionName, runtime: rt, bus: b}
}

func (s *MessageService) Register(r grpc.ServiceRegistrar) {
	svc := newService("MessageService")
	unary(svc, "List", s.List)
	unary(svc, "SendText", s.SendText)
	unary(svc, "SendMedia", s.SendMedia)
	unary(svc, "SendLocation", s.SendLocation)
	unary(svc, "Forward", s.Forward)
	unary(svc, "Delete", s.Delete)
	unary(svc, "RetryMedia", s.RetryMedia)
	svc.watch("Watch", s.sessionName, s.bus, bus.KindMessageChanged)
	svc.register(r, s)
}

func (s *MessageService) List(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	m, err := messengerOf(s.runtime)
	if err != nil {
		return nil, err
	}
	msgs, err := m.Messages(ctx, req.ChatID, req.Limit)
	if err != nil {
		return nil, err
	}
	resp := &ListMessagesResponse{Messages: make([]Message, 0, len(msgs))}
	for _, msg := range msgs {
		resp.Messages = append(resp.Messages, messageView(msg))
	}
	return resp, nil
}

func (s *MessageService) SendText(ctx context.Context, req *SendTextRequest) (*MessageResponse, error) {
	return s.send(func(m *messenger.Messenger) (*model.Message, error) {
		return m.SendText(ctx, req.ChatID, req.Text)
	})
}

func (s *MessageService) SendMedia(ctx context.Context, req *SendMediaRequest) (*MessageResponse, error) {
	kind, err := media.ParseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	info := messenger.MediaInfo{Width: req.Width, Height: req.Height, Duration: req.Duration}
	return s.send(func(m *messenger.Messenger) (*model.Message, error) {
		return m.SendMedia(ctx, req.ChatID, kind, req.Path, info)
	})
}

func (s *MessageService) SendLocation(ctx context.Context, req *SendLocationRequest) (*MessageResponse, error) {
	return s.send(func(m *messenger.Messenger) (*model.Message, error) {
		return m.SendLocation(ctx, req.ChatID, req.Latitude, req.Longitude)
	})
}

func (s *MessageService) Forward(ctx context.Context, req *ForwardRequest) (*MessageResponse, error) {
	return s.send(func(m *messenger.Messenger) (*model.Message, error) {
		return m.Forward(ctx, req.ChatID, req.MessageID)
	})
}

func (s *MessageService) Delete(ctx context.Context, req *MessageRef) (*Changed, error) {
	return set(s.runtime, func(m *messenger.Messenger) (bool, error) { return m.DeleteMessage(ctx, req.MessageID) })
}

func (s *MessageService) RetryMedia(ctx context.Context, req *MessageRef) (*Empty, error) {
	return do(s.runtime, func(m *messenger.Messenger) error { return m.RetryMedia(ctx, req.MessageID) })
}

func (s *MessageService) send(fn func(*messenger.Messenger) (*model.Message, error)) (*MessageResponse, error) {
	m, err := messengerOf(s.runtime)
	if err != nil {
		return nil, err
	}
	msg, err := fn(m)
	if err != nil {
		return nil, err
	}
	return &MessageResponse{Message: messageView(msg)}, nil
}
