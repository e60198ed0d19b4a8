package main

import (
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/spf13/cobra"
)

var (
	loginEmail string
	loginToken string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp api.StatusResponse
		text, err := call("SessionService", "Status", api.Empty{}, &resp)
		if err != nil || !text {
			return err
		}
		printStatus(&resp)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <user-id>",
	Short: "Log in and start syncing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp api.StatusResponse
		req := api.LoginRequest{UserID: args[0], Email: loginEmail, Token: loginToken}
		text, err := call("SessionService", "Login", req, &resp)
		if err != nil || !text {
			return err
		}
		printStatus(&resp)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and wipe local data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := call("SessionService", "Logout", api.Empty{}, &api.Empty{})
		if err == nil && text {
			fmt.Println("logged out")
		}
		return err
	},
}

var wifiCmd = &cobra.Command{
	Use:       "wifi <on|off>",
	Short:     "Tell the daemon whether the device is on Wi-Fi",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] != "on" && args[0] != "off" {
			return fmt.Errorf("want on or off, got %q", args[0])
		}
		var resp api.StatusResponse
		text, err := call("SessionService", "SetWifi", api.SetWifiRequest{Wifi: args[0] == "on"}, &resp)
		if err != nil || !text {
			return err
		}
		printStatus(&resp)
		return nil
	},
}

func printStatus(s *api.StatusResponse) {
	fmt.Printf("Session: %s\n", s.Session)
	fmt.Printf("Status:  %s\n", s.State)
	if s.UserID != "" {
		fmt.Printf("User:    %s\n", s.UserID)
		fmt.Printf("Online:  %v\n", s.Online)
		fmt.Printf("Chats:   %d (%d unread)\n", s.Chats, s.Unread)
	}
	fmt.Printf("Wi-Fi:   %v\n", s.Wifi)
	if s.Remote != "" {
		fmt.Printf("Remote:  %s\n", s.Remote)
	}
	fmt.Printf("Uptime:  %s\n", (time.Duration(s.UptimeMs) * time.Millisecond).Round(time.Second))
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "email for a new profile")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "relay bearer token")
	rootCmd.AddCommand(statusCmd, loginCmd, logoutCmd, wifiCmd)
}
