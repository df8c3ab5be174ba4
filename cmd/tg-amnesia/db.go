package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"tg-amnesia/internal/config"
	"tg-amnesia/internal/storage"
)

// withDB loads the config, opens the database and runs fn.
func withDB(fn func(cfg *config.Config, db *gorm.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := storage.Open(cfg.Database)
	if err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}
	defer storage.Close(db)
	return fn(cfg, db)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(_ *config.Config, db *gorm.DB) error {
				fmt.Fprintln(cmd.OutOrStdout(), "Migrating database...")
				if err := storage.Migrate(db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Migration completed successfully")
				return nil
			})
		},
	}
}

func newResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(_ *config.Config, db *gorm.DB) error {
				if !yes && !confirmReset(cmd.InOrStdin(), cmd.OutOrStdout()) {
					return errors.New("operation cancelled by user")
				}
				if err := resetDatabase(db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Database reset completed successfully")
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which tables exist and how many rows they hold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(_ *config.Config, db *gorm.DB) error {
				return checkStatus(db, cmd.OutOrStdout())
			})
		},
	}
}

func confirmReset(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "WARNING: This will delete all data! Are you sure? (y/N): ")
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.TrimSpace(answer)
	return answer == "y" || answer == "Y"
}

// resetDatabase drops tables and recreates them
func resetDatabase(db *gorm.DB) error {
	all := storage.Collections()
	// Drop tables in reverse order
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(all[i].Model); err != nil {
			return errors.Wrapf(err, "failed to drop %s", all[i].Name)
		}
	}
	return storage.Migrate(db)
}

// checkStatus prints one line per table
func checkStatus(db *gorm.DB, out io.Writer) error {
	fmt.Fprintln(out, "Checking database status...")
	for _, c := range storage.Collections() {
		if !db.Migrator().HasTable(c.Model) {
			fmt.Fprintf(out, "❌ %s table does not exist\n", c.Name)
			continue
		}
		var count int64
		if err := db.Model(c.Model).Count(&count).Error; err != nil {
			return errors.Wrapf(err, "count %s", c.Name)
		}
		fmt.Fprintf(out, "✅ %s table exists\n   - Contains %d records\n", c.Name, count)
	}
	return nil
}
