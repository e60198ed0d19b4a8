package main

import (
	"fmt"
	"path/filepath"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/spf13/cobra"
)

var (
	messagesLimit int

	mediaWidth    int
	mediaHeight   int
	mediaDuration int
	locationLat   float64
	locationLon   float64
)

var messagesCmd = &cobra.Command{
	Use:   "messages <chat-id>",
	Short: "Show the latest messages of a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp api.ListMessagesResponse
		text, err := call("MessageService", "List", api.ListMessagesRequest{ChatID: args[0], Limit: messagesLimit}, &resp)
		if err != nil || !text {
			return err
		}
		for _, m := range resp.Messages {
			printMessage(&m)
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <chat-id> <text>",
	Short: "Send a text message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sent("SendText", api.SendTextRequest{ChatID: args[0], Text: args[1]})
	},
}

var sendMediaCmd = &cobra.Command{
	Use:       "send-media <chat-id> <photo|video|audio> <file>",
	Short:     "Send a photo, video or audio file",
	Args:      cobra.ExactArgs(3),
	ValidArgs: []string{"photo", "video", "audio"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[2])
		if err != nil {
			return err
		}
		return sent("SendMedia", api.SendMediaRequest{
			ChatID:   args[0],
			Kind:     args[1],
			Path:     path,
			Width:    mediaWidth,
			Height:   mediaHeight,
			Duration: mediaDuration,
		})
	},
}

var sendLocationCmd = &cobra.Command{
	Use:   "send-location <chat-id>",
	Short: "Send a location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sent("SendLocation", api.SendLocationRequest{ChatID: args[0], Latitude: locationLat, Longitude: locationLon})
	},
}

var forwardCmd = &cobra.Command{
	Use:   "forward <message-id> <chat-id>",
	Short: "Forward a message to another chat",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sent("Forward", api.ForwardRequest{MessageID: args[0], ChatID: args[1]})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <message-id>",
	Short: "Delete one of your messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setter("MessageService", "Delete", api.MessageRef{MessageID: args[0]})
	},
}

func sent(method string, in any) error {
	var resp api.MessageResponse
	text, err := call("MessageService", method, in, &resp)
	if err == nil && text {
		printMessage(&resp.Message)
	}
	return err
}

func printMessage(m *api.Message) {
	body := m.Text
	switch m.Type {
	case "location":
		body = fmt.Sprintf("%s (%.5f, %.5f)", m.Text, m.Latitude, m.Longitude)
	case "photo", "video", "audio":
		body = fmt.Sprintf("%s [%s]", m.Text, m.ID)
	}
	fmt.Printf("%s  %-16s %s  (%s)\n", formatTime(m.CreatedAt), m.Sender, body, m.Status)
}

func init() {
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 50, "number of messages")
	sendMediaCmd.Flags().IntVar(&mediaWidth, "width", 0, "photo width")
	sendMediaCmd.Flags().IntVar(&mediaHeight, "height", 0, "photo height")
	sendMediaCmd.Flags().IntVar(&mediaDuration, "duration", 0, "video or audio duration in seconds")
	sendLocationCmd.Flags().Float64Var(&locationLat, "lat", 0, "latitude")
	sendLocationCmd.Flags().Float64Var(&locationLon, "lon", 0, "longitude")
	rootCmd.AddCommand(messagesCmd, sendCmd, sendMediaCmd, sendLocationCmd, forwardCmd, deleteCmd)
}
