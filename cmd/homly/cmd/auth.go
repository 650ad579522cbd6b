package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/homly/client"
	"github.com/jmcleod/homly/identity"
)

var (
	authName        string
	authEmail       string
	authPassword    string
	authMobile      string
	googleCred      string
	googleAccessTok string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Long: `Sign in with email and password. Missing values are read from stdin,
one per line, email first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := bufio.NewReader(cmd.InOrStdin())
		email, err := prompt(cmd.ErrOrStderr(), in, "Email", authEmail)
		if err != nil {
			return err
		}
		password, err := prompt(cmd.ErrOrStderr(), in, "Password", authPassword)
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app) error {
			ident, err := a.session.Login(cmd.Context(), email, password)
			if err != nil {
				return errors.New(client.Message(err))
			}
			printWelcome(cmd.OutOrStdout(), ident)
			return nil
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := bufio.NewReader(cmd.InOrStdin())
		name, err := prompt(cmd.ErrOrStderr(), in, "Name", authName)
		if err != nil {
			return err
		}
		email, err := prompt(cmd.ErrOrStderr(), in, "Email", authEmail)
		if err != nil {
			return err
		}
		password, err := prompt(cmd.ErrOrStderr(), in, "Password", authPassword)
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app) error {
			ident, err := a.session.Register(cmd.Context(), client.RegisterRequest{
				Name:     name,
				Email:    email,
				Password: password,
				Mobile:   authMobile,
			})
			if err != nil {
				return errors.New(client.Message(err))
			}
			printWelcome(cmd.OutOrStdout(), ident)
			return nil
		})
	},
}

var googleLoginCmd = &cobra.Command{
	Use:   "google-login",
	Short: "Sign in with a Google ID token or access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if googleCred == "" && googleAccessTok == "" {
			return errors.New("one of --credential or --access-token is required")
		}
		return withApp(cmd.Context(), func(a *app) error {
			ident, err := a.session.GoogleLogin(cmd.Context(), client.GoogleAuth{
				Credential:  googleCred,
				AccessToken: googleAccessTok,
			})
			if err != nil {
				return errors.New(client.Message(err))
			}
			printWelcome(cmd.OutOrStdout(), ident)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload the profile of the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.session.Refresh(cmd.Context()); err != nil {
				return errors.New(client.Message(err))
			}
			printSession(cmd.OutOrStdout(), a.session.Session(), a.session)
			return nil
		})
	},
}

// prompt returns value, or reads one line from in after printing label.
func prompt(w io.Writer, in *bufio.Reader, label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(w, "%s: ", label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return line, nil
}

func printWelcome(w io.Writer, ident *identity.Identity) {
	fmt.Fprintf(w, "Signed in as %s <%s> (%s)\n", ident.Name, ident.Email, ident.Role)
}

func init() {
	loginCmd.Flags().StringVar(&authEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&authPassword, "password", "", "Account password")

	registerCmd.Flags().StringVar(&authName, "name", "", "Display name")
	registerCmd.Flags().StringVar(&authEmail, "email", "", "Account email")
	registerCmd.Flags().StringVar(&authPassword, "password", "", "Account password")
	registerCmd.Flags().StringVar(&authMobile, "mobile", "", "Mobile number")

	googleLoginCmd.Flags().StringVar(&googleCred, "credential", "", "Google ID token")
	googleLoginCmd.Flags().StringVar(&googleAccessTok, "access-token", "", "Google OAuth access token")

	rootCmd.AddCommand(loginCmd, registerCmd, googleLoginCmd, logoutCmd, refreshCmd)
}
