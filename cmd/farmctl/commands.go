package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/diwise/farm-operations/pkg/client"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type connectFunc func(ctx context.Context, cmd *cobra.Command) (client.FarmOperationsClient, error)

func connect(ctx context.Context, cmd *cobra.Command) (client.FarmOperationsClient, error) {
	url, _ := cmd.Flags().GetString("url")
	tokenURL, _ := cmd.Flags().GetString("token-url")
	clientID, _ := cmd.Flags().GetString("client-id")
	clientSecret, _ := cmd.Flags().GetString("client-secret")

	return client.New(ctx, url, tokenURL, clientID, clientSecret)
}

func envOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func newRootCmd(conn connectFunc) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "farmctl",
		Short:         "farmctl - operate zones, recipes and equipment in farm-operations",
		Version:       buildinfo.SourceVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("url", envOrDefault("FARMOPS_URL", "http://localhost:8080"), "farm-operations base url")
	flags.String("token-url", envOrDefault("OAUTH2_TOKEN_URL", ""), "oauth2 token endpoint")
	flags.String("client-id", envOrDefault("OAUTH2_CLIENT_ID", ""), "oauth2 client id")
	flags.String("client-secret", envOrDefault("OAUTH2_CLIENT_SECRET", ""), "oauth2 client secret")

	rootCmd.AddCommand(zonesCmd(conn))
	rootCmd.AddCommand(recipesCmd(conn))
	rootCmd.AddCommand(executionsCmd(conn))
	rootCmd.AddCommand(equipmentCmd(conn))
	rootCmd.AddCommand(alertsCmd(conn))

	return rootCmd
}

// run connects, invokes fn and closes the client.
func run(conn connectFunc, fn func(ctx context.Context, c client.FarmOperationsClient, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		c, err := conn(ctx, cmd)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		defer c.Close(ctx)

		return fn(ctx, c, cmd, args)
	}
}

func zonesCmd(conn connectFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Manage growing zones",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List zones",
		RunE: run(conn, func(ctx context.Context, c client.FarmOperationsClient, cmd *cobra.Command, args []string) error {
			zones, err := c.GetZones(ctx)
			if err != nil {
				return fmt.Errorf("failed to list zones: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(zones) == 0 {
				fmt.Fprintln(out, "No zones found")
				return nil
			}

			fmt.Fprintf(out, "%-38s %-8s %-20s %-10s %s\n", "ID", "NUMBER", "NAME", "STATUS", "STAGE")
			for _, z := range zones {
				fmt.Fprintf(out, "%-38s %-8s %-20s %-10s %d\n", z.ID, z.ZoneNumber, z.Name, zoneStatus(z.Status), z.CurrentStage)
			}

			return nil
		}),
	})

	return cmd
}

func recipesCmd(conn connectFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipes",
		Short: "Browse crop recipes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recipes",
		RunE: run(conn, func(ctx context.Context, c client.FarmOperationsClient, cmd *cobra.Command, args []string) error {
			recipes, err := c.GetRecipes(ctx)
			if err != nil {
				return fmt.Errorf("failed to list recipes: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-38s %-20s %-24s %-8s %s\n", "ID", "CROP", "NAME", "STAGES", "DAYS")
			for _, r := range recipes {
				fmt.Fprintf(out, "%-38s %-20s %-24s %-8d %d\n", r.ID, r.CropID, r.CropName, len(r.Stages), r.TotalDuration)
			}

			return nil
		}),
	})

	return cmd
}

func executionsCmd(conn connectFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "executions",
		Short: "Run recipes in zones",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start [zone-id] [recipe-id]",
		Short: "Start a recipe in a zone",
		Args:  cobra.ExactArgs(2),
		RunE: run(conn, func(ctx context.Context, c client.FarmOperationsClient, cmd *cobra.Command, args []string) error {
			execution, err := c.StartExecution(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to start execution: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Started execution %s in zone %s\n", ok(), execution.ID, execution.ZoneID)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [execution-id]",
		Short: "Show an execution",
		Args:  cobra.ExactArgs(1),
		RunE: run(conn, func(ctx context.Context, c client.FarmOperationsClient, cmd *cobra.Command, args []string) error {
			execution, err := c.GetExecution(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get execution: %w", err)
			}

			printExecution(cmd.OutOrStdout(), execution)
			return nil
		}),
	})

	advanceCmd := &cobra.Command{
		Use:   "advance [execution-id]",
		Short: "Move an execution to its next stage",
		Args:  cobra.ExactArgs(1),
		RunE: run(conn, func(ctx context.Context, c client.FarmOperationsClient, cmd *cobra.Command, args []string) error {
			notes, _ := cmd.Flags().GetString("notes")

			execution, err := c.AdvanceExecution(ctx, args[0], notes)
			if err != nil {
				return fmt.Errorf("failed to advance execution: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Execution %s is at stage %d (%s)\n", ok(), execution.ID, execution.CurrentStage, execution.Status)
			return nil
		}),
	}
	advanceCmd.Flags().String("notes", "", "Notes for the stage history")
	cmd.AddCommand(advanceCmd)

	abortCmd := &cobra.Command{
		Use:   "abort [execution-id]",
		Short: "Abort an execution",
		Args:  cobra.ExactArgs(1),
		RunE: run(conn, func(ctx context.Context, c client.FarmOperationsClient, cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")

			execution, err := c.AbortExecution(ctx, args[0], reason)
			if err != nil {
				return fmt.Errorf("failed to abort execution: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Execution %s %s\n", warn(), execution.ID, execution.Status)
			return nil
		}),
	}
	abortCmd.Flags().String("reason", "", "Why the execution was aborted")
	cmd.AddCommand(abortCmd)

	return cmd
}

func equipmentCmd(conn connectFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "equipment",
		Short: "Control equipment",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List equipment",
		RunE: run(conn, func(ctx context.Context, c client.FarmOperationsClient, cmd *cobra.Command, args []string) error {
			zoneID, _ := cmd.Flags().GetString("zone")

			equipment, err := c.GetEquipment(ctx, zoneID)
			if err != nil {
				return fmt.Errorf("failed to list equipment: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-38s %-20s %-12s %-8s %-8s %s\n", "ID", "NAME", "TYPE", "STATUS", "MODE", "VALUE")
			for _, e := range equipment {
				fmt.Fprintf(out, "%-38s %-20s %-12s %-8s %-8s %.1f\n", e.ID, e.Name, e.Type, equipmentStatus(e.Status), e.Mode, e.CurrentValue)
			}

			return nil
		}),
	}
	listCmd.Flags().String("zone", "", "Only list equipment in this zone")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "on [equipment-id]",
		Short: "Turn equipment on",
		Args:  cobra.ExactArgs(1),
		RunE: run(conn, func(ctx context.Context, c client.FarmOperationsClient, cmd *cobra.Command, args []string) error {
			command, err := c.TurnOn(ctx, args[0])
			return printCommand(cmd.OutOrStdout(), command, err)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "off [equipment-id]",
		Short: "Turn equipment off",
		Args:  cobra.ExactArgs(1),
		RunE: run(conn, func(ctx context.Context, c client.FarmOperationsClient, cmd *cobra.Command, args []string) error {
			command, err := c.TurnOff(ctx, args[0])
			return printCommand(cmd.OutOrStdout(), command, err)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [equipment-id] [value]",
		Short: "Set the output value, 0-100",
		Args:  cobra.ExactArgs(2),
		RunE: run(conn, func(ctx context.Context, c client.FarmOperationsClient, cmd *cobra.Command, args []string) error {
			value, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("value must be an integer: %w", err)
			}

			command, err := c.SetValue(ctx, args[0], value)
			return printCommand(cmd.OutOrStdout(), command, err)
		}),
	})

	return cmd
}

func alertsCmd(conn connectFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect and acknowledge alerts",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		RunE: run(conn, func(ctx context.Context, c client.FarmOperationsClient, cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")

			alerts, err := c.GetAlerts(ctx, types.AlertStatus(status))
			if err != nil {
				return fmt.Errorf("failed to list alerts: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(alerts) == 0 {
				fmt.Fprintln(out, "No alerts found")
				return nil
			}

			for _, a := range alerts {
				fmt.Fprintf(out, "%-38s %-10s %-14s %s\n", a.ID, severity(a.Severity), a.Status, a.Title)
			}

			return nil
		}),
	}
	listCmd.Flags().String("status", "", "unread, read, acknowledged or dismissed")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "ack [alert-id]",
		Short: "Acknowledge an alert",
		Args:  cobra.ExactArgs(1),
		RunE: run(conn, func(ctx context.Context, c client.FarmOperationsClient, cmd *cobra.Command, args []string) error {
			alert, err := c.AcknowledgeAlert(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to acknowledge alert: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Acknowledged %s\n", ok(), alert.Title)
			return nil
		}),
	})

	return cmd
}

func printExecution(out io.Writer, e client.Execution) {
	fmt.Fprintf(out, "\nExecution: %s\n", e.ID)
	fmt.Fprintf(out, "Zone:      %s\n", e.ZoneID)
	fmt.Fprintf(out, "Recipe:    %s\n", e.RecipeID)
	fmt.Fprintf(out, "Status:    %s\n", e.Status)
	fmt.Fprintf(out, "Stage:     %d\n", e.CurrentStage)
	if e.BatchID != nil {
		fmt.Fprintf(out, "Batch:     %s\n", *e.BatchID)
	}
	if e.StartedAt != nil {
		fmt.Fprintf(out, "Started:   %s\n", e.StartedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(out)
}

func printCommand(out io.Writer, c client.Command, err error) error {
	if err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}

	fmt.Fprintf(out, "%s Command %s (%s) is %s\n", ok(), c.ID, c.CommandType, c.Status)
	return nil
}

func ok() string {
	return color.New(color.FgGreen).Sprint("✓")
}

func warn() string {
	return color.New(color.FgYellow).Sprint("!")
}

func zoneStatus(s types.ZoneStatus) string {
	switch s {
	case types.ZoneRunning:
		return color.New(color.FgGreen).Sprint(s)
	case types.ZoneError:
		return color.New(color.FgRed).Sprint(s)
	case types.ZonePaused:
		return color.New(color.FgYellow).Sprint(s)
	}
	return string(s)
}

func equipmentStatus(s types.EquipmentStatus) string {
	if s == types.EquipmentError {
		return color.New(color.FgRed).Sprint(s)
	}
	return string(s)
}

func severity(s types.Severity) string {
	switch s {
	case types.SeverityCritical, types.SeverityHigh:
		return color.New(color.FgRed).Sprint(s)
	case types.SeverityMedium:
		return color.New(color.FgYellow).Sprint(s)
	}
	return string(s)
}
