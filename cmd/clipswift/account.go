package main

import (
	"bufio"
	"context"
	"fmt"

	"github.com/example/clipswift/internal/contentgen"
	"github.com/example/clipswift/internal/domain/checkout"
	"github.com/spf13/cobra"
)

var (
	email     string
	noWait    bool
	confirm   bool
	genPrompt string
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Buy Premium and unlock every snippet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lc := env.lifecycle(cfg.Checkout, nil)
		sess, err := lc.Initiate(cmd.Context(), email)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Complete your payment at:\n\n  %s\n\n", sess.URL)
		if noWait {
			fmt.Fprintln(out, "Run `clipswift launch` once the payment window is closed.")
			return nil
		}

		fmt.Fprint(out, "Press Enter once the payment window is closed...")
		closed := make(chan struct{})
		go func() {
			_, _ = bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			close(closed)
		}()
		select {
		case <-closed:
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}

		return report(cmd, waitClosed(cmd.Context(), lc, sess.ID))
	},
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Resolve a checkout left pending by an earlier run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := env.lifecycle(cfg.Checkout, nil).Launch(cmd.Context())
		if out.IsNoop() {
			fmt.Fprintln(cmd.OutOrStdout(), "No checkout pending.")
			return nil
		}
		return report(cmd, out)
	},
}

var downgradeCmd = &cobra.Command{
	Use:   "downgrade",
	Short: "Return to the free plan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lc := env.lifecycle(cfg.Checkout, nil)
		prompt, err := lc.RequestDowngrade()
		if err != nil {
			return err
		}
		if !confirm {
			lc.CancelDowngrade()
			fmt.Fprintln(cmd.OutOrStdout(), prompt)
			fmt.Fprintln(cmd.OutOrStdout(), "Run again with --confirm to downgrade.")
			return nil
		}
		if err := lc.ConfirmDowngrade(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "You are now on the free plan.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the plan and check the stored entitlement with the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Plan: %s\n", env.lib.Tier())

		token, ok, err := env.lifecycle(cfg.Checkout, nil).EntitlementToken(cmd.Context())
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "No entitlement on file.")
			return nil
		}
		g, err := env.gateway.Entitlement(cmd.Context(), token)
		if err != nil {
			return fmt.Errorf("check entitlement: %w", err)
		}
		fmt.Fprintf(out, "Entitlement: %s for %s (session %s)", g.Tier, g.Email, g.SessionID)
		if !g.ExpiresAt.IsZero() {
			fmt.Fprintf(out, ", expires %s", g.ExpiresAt.Format("2006-01-02"))
		}
		fmt.Fprintln(out)
		return nil
	},
}

var themeCmd = &cobra.Command{
	Use:       "theme [light|dark]",
	Short:     "Show or set the color theme",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"light", "dark"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), env.lib.Theme())
			return nil
		}
		return env.lib.SetTheme(cmd.Context(), args[0])
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <trigger>",
	Short: "Draft a snippet from a prompt (Premium)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkout.RequirePaid(env.lib.Tier()); err != nil {
			return fmt.Errorf("%w (run `clipswift upgrade`)", err)
		}

		gen, err := contentgen.NewGenAIGenerator(cmd.Context(), cfg.GenAI.APIKey, cfg.GenAI.Model)
		if err != nil {
			return err
		}
		content, err := gen.Generate(cmd.Context(), genPrompt)
		if err != nil {
			return err
		}

		s, err := env.lib.AddGenerated(cmd.Context(), args[0], content)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s:\n\n%s\n", s.Trigger, s.Content)
		return nil
	},
}

// waitClosed runs the delayed confirmation and blocks until it reports.
func waitClosed(ctx context.Context, lc *checkout.Lifecycle, sessionID string) checkout.Outcome {
	done := make(chan checkout.Outcome, 1)
	stop := lc.WatchClosed(sessionID, func(o checkout.Outcome) { done <- o })
	select {
	case o := <-done:
		return o
	case <-ctx.Done():
		stop()
		return checkout.Outcome{}
	}
}

func report(cmd *cobra.Command, out checkout.Outcome) error {
	if out.IsNoop() {
		return cmd.Context().Err()
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.Message())
	if out.State == checkout.StateFailed && out.Err != nil {
		return out.Err
	}
	return nil
}

func init() {
	upgradeCmd.Flags().StringVarP(&email, "email", "e", "", "Billing email")
	upgradeCmd.Flags().BoolVar(&noWait, "no-wait", false, "Print the payment link and exit")
	_ = upgradeCmd.MarkFlagRequired("email")

	downgradeCmd.Flags().BoolVar(&confirm, "confirm", false, "Apply the downgrade")

	generateCmd.Flags().StringVarP(&genPrompt, "prompt", "p", "", "What the snippet should say")
	_ = generateCmd.MarkFlagRequired("prompt")
}
