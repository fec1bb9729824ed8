package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
	"github.com/aryan0dhankhar/rulemaster/internal/security/auth"
)

var (
	loginUsername      string
	loginPasswordStdin bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session in the profile",
	Long: `Exchange a username and password for tokens. The password is prompted
for without echo, or read from stdin with --password-stdin.

  rulectl login -u alice
  echo "$PW" | rulectl login -u alice --password-stdin`,
	RunE: loginCommand,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and clear stored tokens",
	RunE:  logoutCommand,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity in the stored access token",
	RunE:  whoamiCommand,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "Read the password from stdin")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

func loginCommand(cmd *cobra.Command, args []string) error {
	p, path, err := session()
	if err != nil {
		return err
	}
	username := strings.TrimSpace(loginUsername)
	if username == "" {
		return errors.New("--username is required")
	}
	password, err := readPassword(cmd)
	if err != nil {
		return err
	}

	var tokens domain.TokenSet
	client := NewClient(p.ServerURL(), "")
	err = client.Do(cmd.Context(), "POST", "/api/v1/auth/login",
		map[string]string{"username": username, "password": password}, &tokens)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	p.Server = p.ServerURL()
	p.Username = username
	p.AccessToken = tokens.AccessToken
	p.RefreshToken = tokens.RefreshToken
	if err := p.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Logged in as %s\n", username)
	return nil
}

func readPassword(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if !loginPasswordStdin {
		if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
			pw, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return "", fmt.Errorf("failed to read password: %w", err)
			}
			return string(pw), nil
		}
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("empty password")
	}
	return pw, nil
}

func logoutCommand(cmd *cobra.Command, args []string) error {
	p, path, err := session()
	if err != nil {
		return err
	}
	if p.RefreshToken != "" {
		client := NewClient(p.ServerURL(), "")
		if err := client.Do(cmd.Context(), "POST", "/api/v1/auth/logout",
			map[string]string{"refresh_token": p.RefreshToken}, nil); err != nil {
			// the local session is cleared regardless
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: server logout failed: %v\n", err)
		}
	}
	p.AccessToken, p.RefreshToken, p.Username = "", "", ""
	if err := p.Save(path); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
	return nil
}

func whoamiCommand(cmd *cobra.Command, args []string) error {
	p, _, err := session()
	if err != nil {
		return err
	}
	if p.AccessToken == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
		return nil
	}

	// The server verifies signatures; locally the claims are only displayed.
	claims := &auth.Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(p.AccessToken, claims); err != nil {
		return fmt.Errorf("stored token is unreadable: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:    %s\n", claims.PreferredUsername)
	fmt.Fprintf(out, "Server:  %s\n", p.ServerURL())
	fmt.Fprintf(out, "Roles:   %s\n", strings.Join(claims.AllRoles(), ", "))
	if len(claims.Groups) > 0 {
		fmt.Fprintf(out, "Groups:  %s\n", strings.Join(claims.Groups, ", "))
	}
	if claims.ExpiresAt != nil {
		state := "valid"
		if claims.ExpiresAt.Before(time.Now()) {
			state = "expired"
		}
		fmt.Fprintf(out, "Expires: %s (%s)\n", claims.ExpiresAt.Format(time.RFC3339), state)
	}
	return nil
}
