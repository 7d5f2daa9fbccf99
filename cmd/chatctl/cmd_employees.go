package main

import (
	"bufio"
	"fmt"
	"strings"

	internaljwt "livechat-backend/internal/jwt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(employeesCmd)
	employeesCmd.AddCommand(employeesHashPasswordCmd)
}

var employeesCmd = &cobra.Command{
	Use:   "employees",
	Short: "Helpers for the employee roster file",
}

var employeesHashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for a roster entry; reads stdin without an argument",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := ""
		if len(args) == 1 {
			password = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
		if password == "" {
			return fmt.Errorf("password must not be empty")
		}

		hash, err := internaljwt.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}
