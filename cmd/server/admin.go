package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage the admin account",
}

var adminInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the admin from ADMIN_USERNAME and ADMIN_PASSWORD if missing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.authService.EnsureAdmin(cmd.Context(), a.cfg.AdminUsername, a.cfg.AdminPassword)
		if err != nil {
			return fmt.Errorf("failed to create admin: %w", err)
		}
		if created {
			cmd.Printf("Admin user %q created.\n", a.cfg.AdminUsername)
		} else {
			cmd.Printf("Admin user %q already exists.\n", a.cfg.AdminUsername)
		}
		return nil
	},
}

var adminCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether the configured admin exists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		exists, err := a.authService.AdminExists(cmd.Context(), a.cfg.AdminUsername)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("admin user %q not found; run \"admin init\"", a.cfg.AdminUsername)
		}
		cmd.Printf("Admin user %q exists.\n", a.cfg.AdminUsername)
		return nil
	},
}

func init() {
	adminCmd.AddCommand(adminInitCmd, adminCheckCmd)
	rootCmd.AddCommand(adminCmd)
}
