package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/example/clipswift/internal/domain/snippet"
	"github.com/example/clipswift/internal/expander"
	"github.com/example/clipswift/internal/library"
	"github.com/spf13/cobra"
)

var (
	category   string
	newTrigger string
	newContent string
	search     string
)

var addCmd = &cobra.Command{
	Use:   "add <trigger> <content>",
	Short: "Create a snippet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := env.lib.Create(cmd.Context(), args[0], args[1], category)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", s.Trigger, s.ID)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <trigger>",
	Short: "Change a snippet's trigger, content or category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := env.lib.FindByTrigger(args[0])
		if err != nil {
			return err
		}

		var f library.Fields
		if cmd.Flags().Changed("trigger") {
			f.Trigger = &newTrigger
		}
		if cmd.Flags().Changed("content") {
			f.Content = &newContent
		}
		if cmd.Flags().Changed("category") {
			f.Category = &category
		}

		updated, err := env.lib.Update(cmd.Context(), s.ID, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", updated.Trigger)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <trigger>",
	Aliases: []string{"delete"},
	Short:   "Delete a snippet",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := env.lib.FindByTrigger(args[0])
		if err != nil {
			return err
		}
		if err := env.lib.Delete(cmd.Context(), s.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", s.Trigger)
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List snippets in creation order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list := env.lib.List(snippet.Filter{Category: category, SearchText: search})
		printSnippets(cmd.OutOrStdout(), list)
		fmt.Fprintf(cmd.OutOrStdout(), "\nPlan: %s\n", env.lib.Tier())
		return nil
	},
}

var expandCmd = &cobra.Command{
	Use:   "expand [text]",
	Short: "Expand the trailing trigger of text, or of every stdin line",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := expander.NewEngine()
		snippets := env.lib.Snapshot().Snippets

		if len(args) > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), expandLine(engine, strings.Join(args, " "), snippets))
			return nil
		}

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			fmt.Fprintln(cmd.OutOrStdout(), expandLine(engine, scanner.Text(), snippets))
		}
		return scanner.Err()
	},
}

func expandLine(engine *expander.Engine, text string, snippets []snippet.Snippet) string {
	if res, ok := engine.Expand(text, snippets); ok {
		return res.Text
	}
	return text
}

func printSnippets(w io.Writer, list []snippet.Snippet) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRIGGER\tCATEGORY\tSTATUS\tCONTENT")
	for _, s := range list {
		status := "active"
		switch {
		case s.IsBuiltIn:
			status = "built-in"
		case s.Locked:
			status = "locked"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Trigger, s.Category, status, preview(s.Content))
	}
	_ = tw.Flush()
}

func preview(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if r := []rune(content); len(r) > 40 {
		return string(r[:37]) + "..."
	}
	return content
}

// completeCategory offers the editor's categories for --category.
func completeCategory(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var out []string
	for _, c := range snippet.Categories {
		if strings.HasPrefix(strings.ToLower(c), strings.ToLower(toComplete)) {
			out = append(out, c)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func init() {
	addCmd.Flags().StringVarP(&category, "category", "c", "", "Category (default Messages)")

	editCmd.Flags().StringVar(&newTrigger, "trigger", "", "New trigger")
	editCmd.Flags().StringVar(&newContent, "content", "", "New content")
	editCmd.Flags().StringVarP(&category, "category", "c", "", "New category")

	lsCmd.Flags().StringVarP(&category, "category", "c", "", "Only this category (all for every category)")
	lsCmd.Flags().StringVarP(&search, "search", "s", "", "Only snippets whose trigger or content contains this text")

	for _, c := range []*cobra.Command{addCmd, editCmd, lsCmd} {
		_ = c.RegisterFlagCompletionFunc("category", completeCategory)
	}
}
