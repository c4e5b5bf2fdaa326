package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/ZanzyTHEbar/callbridge/callbridge/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [up|down|status]",
	Short: "Manage the session database schema",
	Long:  `Applies, rolls back or lists migrations of the libsql session database at session.database.dsn.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		action := "up"
		if len(args) == 1 {
			action = args[0]
		}

		conn, err := db.ConnectWithConfig(cmd.Context(), db.Config{
			Path:         cfg.Session.Database.DSN,
			MaxOpenConns: cfg.Session.Database.MaxOpenConns,
		}, logger)
		if err != nil {
			return err
		}
		defer conn.Close()

		switch action {
		case "up":
			return db.Migrate(cmd.Context(), conn, logger)
		case "down":
			return db.Rollback(cmd.Context(), conn)
		case "status":
			statuses, err := db.Status(cmd.Context(), conn)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tSOURCE\tAPPLIED")
			for _, s := range statuses {
				fmt.Fprintf(tw, "%d\t%s\t%t\n", s.Version, s.Source, s.Applied)
			}
			return tw.Flush()
		}
		return fmt.Errorf("unknown migrate action %q (want up, down or status)", action)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
