package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/homly/session"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user after checking the session with the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			printSession(cmd.OutOrStdout(), a.session.Session(), a.session)
			return nil
		})
	},
}

func printSession(w io.Writer, s session.Session, m *session.Manager) {
	fmt.Fprintf(w, "Status:  %s", s.Status)
	if s.Provisional {
		fmt.Fprint(w, " (not confirmed by the server)")
	}
	fmt.Fprintln(w)
	if msg := m.LastError(); msg != "" {
		fmt.Fprintf(w, "Last error: %s\n", msg)
	}
	if s.Identity == nil {
		return
	}
	id := s.Identity
	fmt.Fprintf(w, "User:    %s <%s>\n", id.Name, id.Email)
	fmt.Fprintf(w, "ID:      %s\n", id.ID)
	fmt.Fprintf(w, "Role:    %s\n", id.Role)
	if id.Mobile != "" {
		fmt.Fprintf(w, "Mobile:  %s\n", id.Mobile)
	}
	if tok := m.Token(); tok != "" {
		if info, err := session.InspectToken(tok); err == nil && !info.ExpiresAt.IsZero() {
			fmt.Fprintf(w, "Expires: %s\n", info.ExpiresAt.Local().Format(time.RFC1123))
		}
	}
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
