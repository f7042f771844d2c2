package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCommand() *cobra.Command {
	loginCmd := &cobra.Command{
		Use:           "login",
		Short:         "Log in to a ReadyNextOs server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runLogin,
	}
	loginCmd.Flags().String("server", "", "Server base URL (e.g. https://docs.example.com)")
	loginCmd.Flags().String("email", "", "Account email address")
	loginCmd.Flags().String("password", "", "Account password (prompted when omitted)")
	return loginCmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "logout",
		Short:         "Log out and stop syncing",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runLogout,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	serverURL, _ := cmd.Flags().GetString("server")
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")

	reader := bufio.NewReader(os.Stdin)
	var err error
	if serverURL == "" {
		if serverURL, err = promptLine(reader, "Server URL: "); err != nil {
			return out.Error("Failed to read server URL", err)
		}
	}
	if email == "" {
		if email, err = promptLine(reader, "Email: "); err != nil {
			return out.Error("Failed to read email", err)
		}
	}
	if password == "" {
		if password, err = promptPassword("Password: "); err != nil {
			return out.Error("Failed to read password", err)
		}
	}

	c, err := daemonClient()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	identity, err := c.Login(ctx, serverURL, email, password)
	if err != nil {
		return out.Error("Login failed", err)
	}

	return out.Success(fmt.Sprintf("Logged in as %s", identity.Email), map[string]interface{}{
		"email":     identity.Email,
		"name":      identity.Name,
		"tenant_id": identity.TenantID,
	})
}

func runLogout(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	c, err := daemonClient()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := c.Logout(ctx); err != nil {
		return out.Error("Logout failed", err)
	}

	return out.Success("Logged out", nil)
}

func promptLine(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
