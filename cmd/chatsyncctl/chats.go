package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/spf13/cobra"
)

var (
	chatsArchived bool
	chatsSearch   string
	chatsWatch    bool

	typingOff    bool
	muteFor      time.Duration
	unarchive    bool
	groupMembers []string
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := listChats(); err != nil {
			return err
		}
		if !chatsWatch {
			return nil
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return client.Watch(ctx, "ChatService", api.WatchRequest{}, func(api.Event) error {
			if !jsonOutput {
				fmt.Println()
			}
			return listChats()
		})
	},
}

func listChats() error {
	var resp api.ListChatsResponse
	text, err := call("ChatService", "List", api.ListChatsRequest{Archived: chatsArchived, Search: chatsSearch}, &resp)
	if err != nil || !text {
		return err
	}
	for _, c := range resp.Chats {
		flags := ""
		if c.Typing {
			flags += " typing…"
		}
		if c.MutedUntil > time.Now().UnixMilli() {
			flags += " muted"
		}
		unread := ""
		if c.Unread > 0 {
			unread = fmt.Sprintf("(%d) ", c.Unread)
		}
		fmt.Printf("%s  %-24s %s%s  %s%s\n", c.ID, c.Title, unread, formatTime(c.LastMessageAt), c.LastMessageText, flags)
	}
	fmt.Printf("%d chats, %d unread\n", len(resp.Chats), resp.Unread)
	return nil
}

var singleCmd = &cobra.Command{
	Use:   "single <user-id>",
	Short: "Open a private chat with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp api.ChatRef
		text, err := call("ChatService", "CreateSingle", api.UserRef{UserID: args[0]}, &resp)
		if err == nil && text {
			fmt.Println(resp.ChatID)
		}
		return err
	},
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage groups",
}

var groupCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp api.ChatRef
		text, err := call("ChatService", "CreateGroup", api.CreateGroupRequest{Name: args[0], UserIDs: groupMembers}, &resp)
		if err == nil && text {
			fmt.Println(resp.ChatID)
		}
		return err
	},
}

var groupRenameCmd = &cobra.Command{
	Use:   "rename <chat-id> <name>",
	Short: "Rename a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setter("ChatService", "RenameGroup", api.RenameGroupRequest{ChatID: args[0], Name: args[1]})
	},
}

var groupDeleteCmd = &cobra.Command{
	Use:   "delete <chat-id>",
	Short: "Delete a group you own",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return empty("ChatService", "DeleteGroup", api.ChatRef{ChatID: args[0]}, "group deleted")
	},
}

var groupAddCmd = &cobra.Command{
	Use:   "add <chat-id> <user-id>...",
	Short: "Add members to a group",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return empty("ChatService", "AddMembers", api.MembersRequest{ChatID: args[0], UserIDs: args[1:]}, "members added")
	},
}

var groupRemoveCmd = &cobra.Command{
	Use:   "remove <chat-id> <user-id>",
	Short: "Remove a member from a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return empty("ChatService", "RemoveMember", api.MembersRequest{ChatID: args[0], UserIDs: args[1:]}, "member removed")
	},
}

var groupLeaveCmd = &cobra.Command{
	Use:   "leave <chat-id>",
	Short: "Leave a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return empty("ChatService", "Leave", api.ChatRef{ChatID: args[0]}, "left group")
	},
}

var groupMembersCmd = &cobra.Command{
	Use:   "members <chat-id>",
	Short: "List active members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp api.UserList
		text, err := call("ChatService", "Members", api.ChatRef{ChatID: args[0]}, &resp)
		if err == nil && text {
			fmt.Println(strings.Join(resp.UserIDs, "\n"))
		}
		return err
	},
}

var readCmd = &cobra.Command{
	Use:   "read <chat-id>",
	Short: "Mark a chat as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setter("ChatService", "MarkRead", api.ChatRef{ChatID: args[0]})
	},
}

var typingCmd = &cobra.Command{
	Use:   "typing <chat-id>",
	Short: "Set the typing indicator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setter("ChatService", "SetTyping", api.TypingRequest{ChatID: args[0], Typing: !typingOff})
	},
}

var muteCmd = &cobra.Command{
	Use:   "mute <chat-id>",
	Short: "Mute a chat; --for 0 unmutes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var until int64
		if muteFor > 0 {
			until = time.Now().Add(muteFor).UnixMilli()
		}
		return setter("ChatService", "Mute", api.MuteRequest{ChatID: args[0], Until: until})
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <chat-id>",
	Short: "Archive or unarchive a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setter("ChatService", "Archive", api.ArchiveRequest{ChatID: args[0], Archived: !unarchive})
	},
}

var deleteChatCmd = &cobra.Command{
	Use:   "delete-chat <chat-id>",
	Short: "Hide a chat until the next message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setter("ChatService", "Delete", api.ChatRef{ChatID: args[0]})
	},
}

func setter(service, method string, in any) error {
	var resp api.Changed
	text, err := call(service, method, in, &resp)
	if err == nil && text {
		changed(&resp)
	}
	return err
}

func empty(service, method string, in any, done string) error {
	text, err := call(service, method, in, &api.Empty{})
	if err == nil && text {
		fmt.Println(done)
	}
	return err
}

func init() {
	chatsCmd.Flags().BoolVar(&chatsArchived, "archived", false, "list archived chats")
	chatsCmd.Flags().StringVar(&chatsSearch, "search", "", "filter by title")
	chatsCmd.Flags().BoolVar(&chatsWatch, "watch", false, "reprint on every change")
	groupCreateCmd.Flags().StringSliceVar(&groupMembers, "members", nil, "user ids to add")
	typingCmd.Flags().BoolVar(&typingOff, "off", false, "clear the indicator")
	muteCmd.Flags().DurationVar(&muteFor, "for", 8*time.Hour, "mute duration")
	archiveCmd.Flags().BoolVar(&unarchive, "undo", false, "unarchive")

	groupCmd.AddCommand(groupCreateCmd, groupRenameCmd, groupDeleteCmd, groupAddCmd, groupRemoveCmd, groupLeaveCmd, groupMembersCmd)
	rootCmd.AddCommand(chatsCmd, singleCmd, groupCmd, readCmd, typingCmd, muteCmd, archiveCmd, deleteChatCmd)
}
