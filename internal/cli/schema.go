package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"GoEventLogger/internal/database"
)

// NewSchemaCommand 创建 schema 命令，输出内置的建表脚本
func NewSchemaCommand() *cobra.Command {
	var dialect string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the statistics store DDL",
		Long: `Print the embedded DDL for the given dialect.

PostgreSQL schemas are applied by operators; SQLite stores apply it on connect.

Examples:
  eventlogger schema --dialect postgres | psql stats
  eventlogger schema --dialect sqlite`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ddl, err := database.Schema(database.Dialect(dialect))
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), ddl)
			return err
		},
	}

	cmd.Flags().StringVar(&dialect, "dialect", string(database.DialectPostgres), "store dialect (postgres|sqlite)")
	return cmd
}
