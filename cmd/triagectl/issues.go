package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	// issues [--status open]
	var status string
	issuesCmd := &cobra.Command{
		Use:   "issues",
		Short: "List issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := newClient().R()
			if status != "" {
				req.SetQueryParam("status", status)
			}
			resp, err := req.Get("/v0/issues")
			if err != nil {
				return err
			}
			if err := checkAPIError(resp); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, resp.String())
			return nil
		},
	}
	issuesCmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (open, all)")
	rootCmd.AddCommand(issuesCmd)

	// messages --issue ISSUE_ID
	var issueID string
	messagesCmd := &cobra.Command{
		Use:   "messages",
		Short: "List the messages attached to an issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if issueID == "" {
				return fmt.Errorf("--issue required")
			}
			resp, err := newClient().R().Get("/v0/issues/" + issueID + "/messages")
			if err != nil {
				return err
			}
			if err := checkAPIError(resp); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, resp.String())
			return nil
		},
	}
	messagesCmd.Flags().StringVarP(&issueID, "issue", "i", "", "Issue ID (required)")
	_ = messagesCmd.MarkFlagRequired("issue")
	rootCmd.AddCommand(messagesCmd)

	// resolve --issue ISSUE_ID
	var resolveID string
	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Mark an issue resolved",
		RunE: func(cmd *cobra.Command, args []string) error {
			if resolveID == "" {
				return fmt.Errorf("--issue required")
			}
			resp, err := newClient().R().Post("/v0/issues/" + resolveID + "/resolve")
			if err != nil {
				return err
			}
			if err := checkAPIError(resp); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, resp.String())
			return nil
		},
	}
	resolveCmd.Flags().StringVarP(&resolveID, "issue", "i", "", "Issue ID (required)")
	_ = resolveCmd.MarkFlagRequired("issue")
	rootCmd.AddCommand(resolveCmd)

	// stats
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().R().Get("/v0/stats")
			if err != nil {
				return err
			}
			if err := checkAPIError(resp); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, resp.String())
			return nil
		},
	}
	rootCmd.AddCommand(statsCmd)
}
