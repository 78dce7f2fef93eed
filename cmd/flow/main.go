// Command flow is the stage-gated workflow controller CLI. Every
// invocation loads the persisted state, performs one operation, and
// exits; the Ralph retry loop and all audit history live in files so
// progress survives across invocations.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hanyki111/workflow-tool/audit"
	"github.com/hanyki111/workflow-tool/auth"
	"github.com/hanyki111/workflow-tool/config"
	"github.com/hanyki111/workflow-tool/workflow"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var verbose bool

	root := &cobra.Command{
		Use:           "flow",
		Short:         "Stage-gated workflow controller",
		Long:          "flow drives a declared workflow: checklists gate transitions,\ntransitions are audited, and failed actions retry across invocations.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "workflow configuration file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newStatusCmd(&configPath),
		newCheckCmd(&configPath),
		newNextCmd(&configPath),
		newSetCmd(&configPath),
		newModuleCmd(&configPath),
		newReviewCmd(&configPath),
		newSecretCmd(&configPath),
	)
	return root
}

func loadController(configPath string) (*workflow.Controller, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return workflow.New(cfg)
}

func newStatusCmd(configPath *string) *cobra.Command {
	var oneline bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current stage and checklist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := loadController(*configPath)
			if err != nil {
				return err
			}
			st, err := ctrl.Status(context.Background())
			if err != nil {
				return err
			}
			if oneline {
				fmt.Fprintln(cmd.OutOrStdout(), workflow.RenderOneline(st))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), workflow.RenderStatus(st))
			return nil
		},
	}
	cmd.Flags().BoolVar(&oneline, "oneline", false, "compact single-line output")
	return cmd
}

func newCheckCmd(configPath *string) *cobra.Command {
	var req workflow.CheckRequest
	var tag string
	cmd := &cobra.Command{
		Use:   "check [item]...",
		Short: "Mark checklist items done, running any bound action first",
		RunE: func(cmd *cobra.Command, args []string) error {
			indices, err := parseIndices(args)
			if err != nil {
				return err
			}
			req.Indices = indices
			req.Tag = tag
			ctrl, err := loadController(*configPath)
			if err != nil {
				return err
			}
			report, err := ctrl.Check(context.Background(), req)
			if err != nil {
				return err
			}
			for _, res := range report.Results {
				mark := "ok"
				if !res.Checked {
					mark = "FAILED"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d. %s — %s\n", mark, res.Index, res.Text, res.Detail)
			}
			if report.Failed() {
				return errors.New("some items could not be checked")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "", "select items by [CMD:...] tag instead of index")
	cmd.Flags().StringVar(&req.Evidence, "evidence", "", "evidence recorded with the check")
	cmd.Flags().StringVar(&req.Token, "token", "", "approval token for [USER-APPROVE] items")
	cmd.Flags().StringVar(&req.Agent, "agent", "", "agent performing the check")
	cmd.Flags().StringVar(&req.Args, "args", "", "value of ${args} inside the item's action")
	cmd.Flags().BoolVar(&req.SkipAction, "skip-action", false, "check without running the bound action")
	return cmd
}

func newNextCmd(configPath *string) *cobra.Command {
	var req workflow.NextRequest
	cmd := &cobra.Command{
		Use:   "next [target]",
		Short: "Advance to the next stage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				req.Target = args[0]
			}
			ctrl, err := loadController(*configPath)
			if err != nil {
				return err
			}
			report, err := ctrl.Next(context.Background(), req)
			if err != nil {
				var blocked *workflow.BlockedError
				if errors.As(err, &blocked) {
					fmt.Fprintln(cmd.ErrOrStderr(), blocked.Error())
					return errors.New("transition blocked")
				}
				return err
			}
			if report.Forced {
				fmt.Fprintf(cmd.OutOrStdout(), "forced: %s -> %s\n", report.From, report.To)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", report.From, report.To)
			}
			for _, res := range report.Results {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", res.Rule, res.Outcome)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&req.Force, "force", false, "bypass checklist and conditions (requires token and reason)")
	cmd.Flags().BoolVar(&req.SkipConditions, "skip-conditions", false, "skip condition evaluation but keep the checklist gate")
	cmd.Flags().StringVar(&req.Token, "token", "", "approval token for --force")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "reason recorded for --force")
	return cmd
}

func newSetCmd(configPath *string) *cobra.Command {
	var module string
	cmd := &cobra.Command{
		Use:   "set <stage>",
		Short: "Jump directly to a stage (recovery path, bypasses transitions)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := loadController(*configPath)
			if err != nil {
				return err
			}
			st, err := ctrl.Set(context.Background(), args[0], module)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), workflow.RenderStatus(st))
			return nil
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "also set the active module")
	return cmd
}

func newModuleCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "module",
		Short: "Manage the active module marker",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <name>",
		Short: "Set the active module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := loadController(*configPath)
			if err != nil {
				return err
			}
			if err := ctrl.SetModule(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "active module: %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func newReviewCmd(configPath *string) *cobra.Command {
	var agent, summary string
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Record an agent review for the current stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := loadController(*configPath)
			if err != nil {
				return err
			}
			if err := ctrl.Review(context.Background(), agent, summary); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "review recorded for agent %q\n", agent)
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "reviewing agent name")
	cmd.Flags().StringVar(&summary, "summary", "", "review summary")
	cmd.MarkFlagRequired("agent")
	cmd.MarkFlagRequired("summary")
	return cmd
}

func newSecretCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the approval token",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Set the approval token (prompted, never echoed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := auth.Generate(cfg.SecretFile, promptHidden); err != nil {
				return err
			}
			auditLog, err := audit.NewLogger(cfg.AuditDir)
			if err != nil {
				return err
			}
			if err := auditLog.Log(audit.EventSecretRotated, audit.Entry{Actor: "user"}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token saved to %s\n", cfg.SecretFile)
			return nil
		},
	})
	return cmd
}

// promptHidden reads a secret from the terminal without echo.
func promptHidden(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	defer fmt.Fprintln(os.Stderr)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func parseIndices(args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("item %q is not a number", arg)
		}
		out = append(out, n)
	}
	return out, nil
}
