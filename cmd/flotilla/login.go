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

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Obtain a bearer token for the /me endpoints",
	Long: `Exchange credentials for a session token. The password is prompted,
never taken from the command line; the token is printed and nothing is
stored on disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		initCLILogging()

		username, _ := cmd.Flags().GetString("username")

		password, err := promptPassword()
		if err != nil {
			return err
		}

		token, err := newCaptainClient(cmd).Login(context.Background(), username, password)
		if err != nil {
			return err
		}

		fmt.Println(token)
		return nil
	},
}

func init() {
	loginCmd.Flags().String("username", "", "Account name (required)")
	_ = loginCmd.MarkFlagRequired("username")
}

// promptPassword reads the password without echo when stdin is a
// terminal, and as a plain line otherwise (pipes, scripts).
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		defer fmt.Fprintln(os.Stderr)
		raw, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
