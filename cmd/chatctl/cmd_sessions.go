package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"livechat-backend/internal/model"
	sessionservice "livechat-backend/internal/service/session"

	"github.com/spf13/cobra"
)

var (
	listIndex    string
	listEmployee string
	employeeID   string
	employeeName string
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsCloseCmd, sessionsTakeoverCmd, sessionsAssignCmd)

	sessionsListCmd.Flags().StringVar(&listIndex, "index", "pending", "listing to read: pending, ai or active")
	sessionsListCmd.Flags().StringVar(&listEmployee, "employee", "", "list the active sessions of one employee instead")

	for _, cmd := range []*cobra.Command{sessionsTakeoverCmd, sessionsAssignCmd} {
		cmd.Flags().StringVar(&employeeID, "employee-id", "", "employee taking the session")
		cmd.Flags().StringVar(&employeeName, "employee-name", "", "employee display name")
		cmd.MarkFlagRequired("employee-id")
		cmd.MarkFlagRequired("employee-name")
	}
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and change chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions from one of the store listings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var sessions []model.Session
		switch {
		case listEmployee != "":
			sessions, err = a.Sessions.GetEmployeeActiveSessions(ctx, listEmployee)
		default:
			index, ok := sessionservice.ParseIndex(listIndex)
			if !ok {
				return fmt.Errorf("unknown index %q, want pending, ai or active", listIndex)
			}
			switch index {
			case sessionservice.IndexPending:
				sessions, err = a.Sessions.GetAllPendingSessions(ctx)
			case sessionservice.IndexAI:
				sessions, err = a.Sessions.GetAllAISessions(ctx)
			default:
				sessions, err = a.Sessions.GetAllActiveSessions(ctx)
			}
		}
		if err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
			return nil
		}
		return printSessions(cmd.OutOrStdout(), sessions)
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <chatId>",
	Short: "Print a session with its full history as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.Sessions.GetSession(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), sess)
	},
}

var sessionsCloseCmd = &cobra.Command{
	Use:   "close <chatId>",
	Short: "Close a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.Sessions.CloseSession(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s closed.\n", sess.ID)
		return nil
	},
}

var sessionsTakeoverCmd = &cobra.Command{
	Use:   "takeover <chatId>",
	Short: "Hand an AI session to an employee",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Sessions.ConvertAIToLive(ctx, args[0], employeeID, employeeName)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s taken over by %s after %d messages.\n",
			res.Session.ID, employeeName, res.Stats.MessageCount)
		return nil
	},
}

var sessionsAssignCmd = &cobra.Command{
	Use:   "assign <chatId>",
	Short: "Assign a pending live session to an employee",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.Sessions.AssignEmployee(ctx, args[0], employeeID, employeeName)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s assigned to %s.\n", sess.ID, employeeName)
		return nil
	},
}

func printSessions(out io.Writer, sessions []model.Session) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tSTATUS\tUSER\tEMPLOYEE\tMESSAGES\tCREATED")
	for _, s := range sessions {
		employee := "-"
		if s.Employee != nil {
			employee = s.Employee.Name
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID,
			s.ChatMode,
			s.Status,
			s.UserID,
			employee,
			len(s.Messages),
			s.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
