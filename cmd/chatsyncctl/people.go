package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/spf13/cobra"
)

var (
	profile   api.ProfileRequest
	friendDel bool
	blockDel  bool
)

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show your profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp api.PersonResponse
		text, err := call("PeopleService", "Me", api.Empty{}, &resp)
		if err != nil || !text {
			return err
		}
		p := resp.Person
		fmt.Printf("User:       %s\n", p.ID)
		fmt.Printf("Name:       %s\n", p.Fullname)
		fmt.Printf("Email:      %s\n", p.Email)
		fmt.Printf("Status:     %s\n", p.Status)
		fmt.Printf("Keep media: %s\n", p.KeepMedia)
		fmt.Printf("Network:    photo=%s video=%s audio=%s\n", p.NetworkPhoto, p.NetworkVideo, p.NetworkAudio)
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Update your profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setter("PeopleService", "UpdateProfile", profile)
	},
}

var pictureCmd = &cobra.Command{
	Use:   "picture <file>",
	Short: "Set your profile picture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		return empty("PeopleService", "SetPicture", api.PathRequest{Path: path}, "picture updated")
	},
}

var friendCmd = &cobra.Command{
	Use:   "friend [user-id]",
	Short: "List friends, or add (--remove: remove) one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			var resp api.UserList
			text, err := call("PeopleService", "Friends", api.Empty{}, &resp)
			if err == nil && text {
				fmt.Println(strings.Join(resp.UserIDs, "\n"))
			}
			return err
		}
		if friendDel {
			return empty("PeopleService", "RemoveFriend", api.UserRef{UserID: args[0]}, "friend removed")
		}
		return empty("PeopleService", "AddFriend", api.UserRef{UserID: args[0]}, "friend added")
	},
}

var blockCmd = &cobra.Command{
	Use:   "block <user-id>",
	Short: "Block (--remove: unblock) a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if blockDel {
			return empty("PeopleService", "Unblock", api.UserRef{UserID: args[0]}, "unblocked")
		}
		return empty("PeopleService", "Block", api.UserRef{UserID: args[0]}, "blocked")
	},
}

func init() {
	profileCmd.Flags().StringVar(&profile.Firstname, "first", "", "first name")
	profileCmd.Flags().StringVar(&profile.Lastname, "last", "", "last name")
	profileCmd.Flags().StringVar(&profile.Country, "country", "", "country")
	profileCmd.Flags().StringVar(&profile.Location, "location", "", "location")
	profileCmd.Flags().StringVar(&profile.Status, "status", "", "status line")
	friendCmd.Flags().BoolVar(&friendDel, "remove", false, "remove the friend")
	blockCmd.Flags().BoolVar(&blockDel, "remove", false, "unblock")
	rootCmd.AddCommand(meCmd, profileCmd, pictureCmd, friendCmd, blockCmd)
}
