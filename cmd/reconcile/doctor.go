package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/counselops/reconcile/internal/chat"
	"github.com/counselops/reconcile/internal/identity"
	"github.com/counselops/reconcile/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check connectivity to all backing services",
	Long: `Probe the four backing services the checks depend on:
- Identity provider admin login
- Service database (postgres) connection
- Chat document database (mongo) connection
- Chat service API login as the technical account

Exit codes:
  0 - All probes passed
  1 - One or more probes failed`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runDoctor())
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor() int {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failures := 0
	probe := func(name string, fn func() error) {
		fmt.Printf("%s %s\n", cyan("→"), name)
		if err := fn(); err != nil {
			failures++
			fmt.Printf("  %s %v\n", red("✗"), err)
			return
		}
		fmt.Printf("  %s ok\n", green("✓"))
	}

	probe("Identity provider", func() error {
		c := identity.NewClient(identity.ClientConfig{
			BaseURL:  cfg.Identity.BaseURL,
			Realm:    cfg.Identity.Realm,
			ClientID: cfg.Identity.ClientID,
			Username: cfg.Identity.Username,
			Password: cfg.Identity.Password,
		})
		if err := c.Login(ctx); err != nil {
			return err
		}
		_, err := c.Count(ctx)
		return err
	})

	probe("Service database", func() error {
		pg, err := store.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		pg.Close()
		return nil
	})

	probe("Chat database", func() error {
		m, err := store.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return err
		}
		return m.Close(ctx)
	})

	probe("Chat service", func() error {
		c := chat.NewClient(chat.ClientConfig{
			BaseURL:           cfg.Chat.BaseURL,
			Username:          cfg.Chat.Username,
			Password:          cfg.Chat.Password,
			RequestsPerSecond: cfg.Chat.RequestsPerSecond,
		})
		if err := c.Login(ctx); err != nil {
			return err
		}
		return c.Logout(ctx)
	})

	if failures > 0 {
		fmt.Printf("\n%s %d probes failed\n", red("✗"), failures)
		return 1
	}
	fmt.Printf("\n%s All services reachable\n", green("✓"))
	return 0
}
