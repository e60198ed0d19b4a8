package main

import (
	"fmt"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/spf13/cobra"
)

var mediaChat string

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Download or retry media",
}

var mediaEnsureCmd = &cobra.Command{
	Use:   "ensure <name> <photo|video|audio|avatar>",
	Short: "Make a media item available locally",
	Long:  "Fetch a media item unless the network policy requires a manual download. name is the message id, or the user id for avatars.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp api.MediaResponse
		text, err := call("MediaService", "Ensure", api.MediaRequest{Name: args[0], Kind: args[1], ChatID: mediaChat}, &resp)
		if err != nil || !text {
			return err
		}
		fmt.Printf("%s %s", resp.State, resp.Path)
		if resp.Reason != "" {
			fmt.Printf(" (%s)", resp.Reason)
		}
		fmt.Println()
		return nil
	},
}

var mediaRetryCmd = &cobra.Command{
	Use:   "retry <message-id>",
	Short: "Requeue a failed upload or clear a failed download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return empty("MessageService", "RetryMedia", api.MessageRef{MessageID: args[0]}, "queued")
	},
}

var mediaClearCmd = &cobra.Command{
	Use:   "clear <name> <photo|video|audio|avatar>",
	Short: "Allow the next ensure to fetch a manual item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return empty("MediaService", "ClearManual", api.MediaRequest{Name: args[0], Kind: args[1]}, "cleared")
	},
}

var networkCmd = &cobra.Command{
	Use:   "network <photo|video|audio> <manual|wifi-only|all>",
	Short: "Set the automatic download policy of a media type",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setter("PeopleService", "SetNetwork", api.NetworkRequest{Type: args[0], Policy: args[1]})
	},
}

var keepMediaCmd = &cobra.Command{
	Use:   "keep-media <week|month|forever>",
	Short: "Set how long downloaded media is kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setter("PeopleService", "SetKeepMedia", api.KeepMediaRequest{Keep: args[0]})
	},
}

func init() {
	mediaEnsureCmd.Flags().StringVar(&mediaChat, "chat", "", "chat id of the message (selects the decryption key)")
	mediaCmd.AddCommand(mediaEnsureCmd, mediaRetryCmd, mediaClearCmd)
	rootCmd.AddCommand(mediaCmd, networkCmd, keepMediaCmd)
}
