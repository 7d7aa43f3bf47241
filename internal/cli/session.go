package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	v1 "finchat/api/v1"
)

// NewSessionCmd creates the session command.
func NewSessionCmd() *cobra.Command {
	var (
		serverURL string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage sessions on a running server",
		Long:  `Create sessions, append turns and build compacted contexts through the HTTP API.`,
	}

	cmd.PersistentFlags().StringVar(&serverURL, "url", "", "server URL (default from server.host and server.port)")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")

	client := func(cmd *cobra.Command) (*apiClient, error) {
		base := serverURL
		if base == "" {
			cliCtx, err := mustCLIContext(cmd)
			if err != nil {
				return nil, err
			}
			base = "http://" + cliCtx.Config.Server.Addr()
		}
		return newAPIClient(base, timeout), nil
	}

	cmd.AddCommand(newSessionCreateCmd(client))
	cmd.AddCommand(newSessionListCmd(client))
	cmd.AddCommand(newSessionAppendCmd(client))
	cmd.AddCommand(newSessionMessagesCmd(client))
	cmd.AddCommand(newSessionContextCmd(client))
	cmd.AddCommand(newSessionDeleteCmd(client))

	return cmd
}

type clientFactory func(cmd *cobra.Command) (*apiClient, error)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSessionCreateCmd(client clientFactory) *cobra.Command {
	var (
		id, title, metadata string
		jsonOutput          bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client(cmd)
			if err != nil {
				return err
			}
			req := v1.CreateSessionRequest{ID: id, Title: title}
			if metadata != "" {
				req.Metadata = json.RawMessage(metadata)
			}

			var resp v1.SessionResponse
			if err := c.do(cmd.Context(), http.MethodPost, "/api/v1/sessions", req, &resp); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "session ID (generated when empty)")
	cmd.Flags().StringVarP(&title, "title", "t", "", "session title")
	cmd.Flags().StringVar(&metadata, "metadata", "", "metadata as a JSON object")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func newSessionListCmd(client clientFactory) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client(cmd)
			if err != nil {
				return err
			}
			var resp v1.SessionsListResponse
			if err := c.do(cmd.Context(), http.MethodGet, fmt.Sprintf("/api/v1/sessions?limit=%d", limit), nil, &resp); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp.Sessions)
			}

			if len(resp.Sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tUPDATED")
			for _, s := range resp.Sessions {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Title, s.MessageCount, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum number of sessions to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func newSessionAppendCmd(client clientFactory) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "append <session-id> [content]",
		Short: "Append a turn to a session",
		Long:  `Append a user or assistant turn. Without a content argument the turn is read from stdin.`,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client(cmd)
			if err != nil {
				return err
			}

			var content string
			if len(args) == 2 {
				content = args[1]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				content = strings.TrimRight(string(data), "\n")
			}

			var resp v1.MessageResponse
			path := "/api/v1/sessions/" + url.PathEscape(args[0]) + "/messages"
			if err := c.do(cmd.Context(), http.MethodPost, path, v1.AppendMessageRequest{Role: role, Content: content}, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s #%d (%s)\n", resp.ID, resp.Seq, resp.Role)
			return nil
		},
	}

	cmd.Flags().StringVarP(&role, "role", "r", "user", "turn role: user or assistant")
	return cmd
}

func newSessionMessagesCmd(client clientFactory) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "messages <session-id>",
		Short: "Show the messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client(cmd)
			if err != nil {
				return err
			}
			path := fmt.Sprintf("/api/v1/sessions/%s/messages?limit=%d", url.PathEscape(args[0]), limit)
			var resp v1.MessagesResponse
			if err := c.do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp.Messages)
			}
			for _, m := range resp.Messages {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), m.Role, m.Content)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "show only the newest N messages")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func newSessionContextCmd(client clientFactory) *cobra.Command {
	var (
		cached     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "context <session-id>",
		Short: "Build and print the compacted context of a session",
		Long: `Build the compacted context of a session and print it. With --cached the
latest stored snapshot is printed instead of building a new one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client(cmd)
			if err != nil {
				return err
			}

			method := http.MethodPost
			if cached {
				method = http.MethodGet
			}
			var resp v1.ContextResponse
			if err := c.do(cmd.Context(), method, "/api/v1/sessions/"+url.PathEscape(args[0])+"/context", nil, &resp); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			fmt.Fprintln(cmd.OutOrStdout(), resp.Context)
			s := resp.Stats
			fmt.Fprintf(cmd.ErrOrStderr(), "%d cycles: %d verbatim, %d layers, ~%d tokens, %d fallbacks\n",
				s.TotalCycles, s.VerbatimCount, s.LayerCount, s.EstimatedTokens, s.FallbackCount)
			return nil
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "print the latest snapshot without rebuilding")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func newSessionDeleteCmd(client clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client(cmd)
			if err != nil {
				return err
			}
			if err := c.do(cmd.Context(), http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s deleted\n", args[0])
			return nil
		},
	}
}
