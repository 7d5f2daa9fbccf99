package main

import (
	"fmt"

	"livechat-backend/internal/database"
	"livechat-backend/internal/env"
	sessionservice "livechat-backend/internal/service/session"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spf13/cobra"
)

var (
	dynamoTable string
	dumpPage    int
	dumpLimit   int
)

func init() {
	rootCmd.AddCommand(dynamoCmd)
	dynamoCmd.AddCommand(dynamoCreateTableCmd, dynamoDumpCmd)

	dynamoCmd.PersistentFlags().StringVar(&dynamoTable, "table", "", "sessions table (defaults to DYNAMODB_SESSIONS_TABLE)")
	dynamoDumpCmd.Flags().IntVar(&dumpPage, "page-size", 50, "items per scan page")
	dynamoDumpCmd.Flags().IntVar(&dumpLimit, "limit", 0, "stop after this many sessions (0 reads the whole table)")
}

var dynamoCmd = &cobra.Command{
	Use:   "dynamo",
	Short: "Manage the DynamoDB sessions table",
}

func openDynamo(cmd *cobra.Command) (*sessionservice.DynamoRepository, error) {
	if err := env.Validate(env.AWSRegion); err != nil {
		return nil, err
	}
	db, err := database.NewDatabase(cmd.Context())
	if err != nil {
		return nil, err
	}
	table := dynamoTable
	if table == "" {
		table = env.Get(env.DynamoDBSessionsTable)
	}
	ttl := env.GetDuration(env.SessionTTL, sessionservice.DefaultTTL)
	return sessionservice.NewDynamoRepository(db, table, ttl, nil), nil
}

var dynamoCreateTableCmd = &cobra.Command{
	Use:   "create-table",
	Short: "Create the sessions table with its indexes and enable TTL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openDynamo(cmd)
		if err != nil {
			return err
		}

		created, err := repo.EnsureTable(cmd.Context())
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintln(cmd.OutOrStdout(), "Sessions table created, TTL enabled.")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Sessions table already exists, TTL enabled.")
		}
		return nil
	},
}

var dynamoDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Scan the sessions table, expired items included",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openDynamo(cmd)
		if err != nil {
			return err
		}

		var (
			start map[string]types.AttributeValue
			total int
		)
		for {
			page, err := repo.Dump(cmd.Context(), dumpPage, start)
			if err != nil {
				return err
			}
			for _, s := range page.Sessions {
				if err := printJSON(cmd.OutOrStdout(), s); err != nil {
					return err
				}
				total++
				if dumpLimit > 0 && total >= dumpLimit {
					return nil
				}
			}
			if page.Next == nil {
				return nil
			}
			start = page.Next
		}
	},
}
