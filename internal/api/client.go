package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the daemon services over one connection.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's unix socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) Close() error { return c.conn.Close() }

// Call invokes service/method with in and decodes the response into out.
func (c *Client) Call(ctx context.Context, service, method string, in, out any) error {
	req, err := toStruct(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(service, method), req, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return fromStruct(resp, out)
}

// Watch streams the events of a service's Watch method to fn until ctx is
// done, the daemon goes away or fn returns an error.
func (c *Client) Watch(ctx context.Context, service string, req WatchRequest, fn func(Event) error) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	stream, err := c.conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, fullMethod(service, "Watch"))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var evt Event
		if err := fromStruct(out, &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}

func fullMethod(service, method string) string {
	return "/" + Package + "." + service + "/" + method
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	out := new(StatusResponse)
	return out, c.Call(ctx, "SessionService", "Status", Empty{}, out)
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*StatusResponse, error) {
	out := new(StatusResponse)
	return out, c.Call(ctx, "SessionService", "Login", req, out)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.Call(ctx, "SessionService", "Logout", Empty{}, nil)
}

func (c *Client) SetWifi(ctx context.Context, on bool) (*StatusResponse, error) {
	out := new(StatusResponse)
	return out, c.Call(ctx, "SessionService", "SetWifi", SetWifiRequest{Wifi: on}, out)
}

func (c *Client) ListChats(ctx context.Context, req ListChatsRequest) (*ListChatsResponse, error) {
	out := new(ListChatsResponse)
	return out, c.Call(ctx, "ChatService", "List", req, out)
}

func (c *Client) CreateSingle(ctx context.Context, userID string) (string, error) {
	var out ChatRef
	err := c.Call(ctx, "ChatService", "CreateSingle", UserRef{UserID: userID}, &out)
	return out.ChatID, err
}

func (c *Client) CreateGroup(ctx context.Context, name string, userIDs []string) (string, error) {
	var out ChatRef
	err := c.Call(ctx, "ChatService", "CreateGroup", CreateGroupRequest{Name: name, UserIDs: userIDs}, &out)
	return out.ChatID, err
}

func (c *Client) Messages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	var out ListMessagesResponse
	err := c.Call(ctx, "MessageService", "List", ListMessagesRequest{ChatID: chatID, Limit: limit}, &out)
	return out.Messages, err
}

func (c *Client) SendText(ctx context.Context, chatID, text string) (*Message, error) {
	var out MessageResponse
	if err := c.Call(ctx, "MessageService", "SendText", SendTextRequest{ChatID: chatID, Text: text}, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	return c.Call(ctx, "ChatService", "MarkRead", ChatRef{ChatID: chatID}, nil)
}

func (c *Client) SetTyping(ctx context.Context, chatID string, typing bool) error {
	return c.Call(ctx, "ChatService", "SetTyping", TypingRequest{ChatID: chatID, Typing: typing}, nil)
}

func (c *Client) Members(ctx context.Context, chatID string) ([]string, error) {
	var out UserList
	err := c.Call(ctx, "ChatService", "Members", ChatRef{ChatID: chatID}, &out)
	return out.UserIDs, err
}

func (c *Client) Mute(ctx context.Context, chatID string, until int64) error {
	return c.Call(ctx, "ChatService", "Mute", MuteRequest{ChatID: chatID, Until: until}, nil)
}
