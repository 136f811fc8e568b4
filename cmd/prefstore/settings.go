package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/prefstore/prefstore/internal/schema"
	"github.com/prefstore/prefstore/internal/settings"
)

func newListCmd(a *app) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List settings and their current values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := a.manager.Registry()
			snap := a.manager.Snapshot()

			categories := registry.Categories()
			if category != "" {
				if len(registry.Category(category)) == 0 {
					return fmt.Errorf("unknown category %q", category)
				}
				categories = []string{category}
			}

			out := cmd.OutOrStdout()
			for i, cat := range categories {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "%s:\n", cat)
				for _, s := range registry.Category(cat) {
					fmt.Fprintf(out, "  %s = %s\n", s.Key, renderValue(s, snap[s.Key]))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Limit output to one category")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print one setting's value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			s := a.manager.Registry().Get(key)
			if s == nil {
				return fmt.Errorf("unknown setting %q", key)
			}
			value, _ := a.manager.Get(key)
			fmt.Fprintln(cmd.OutOrStdout(), renderValue(s, value))
			return nil
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	var secret bool

	cmd := &cobra.Command{
		Use:   "set KEY [VALUE]",
		Short: "Change one setting",
		Long: `Validates VALUE against the schema and persists it. Strings are
coerced to the setting's type, numbers are clamped into range, and the
change lands in the undo history.

When VALUE is omitted for a sensitive key (or --secret is given), the
value is read from the terminal without echo.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			s := a.manager.Registry().Get(key)
			if s == nil {
				return fmt.Errorf("unknown setting %q", key)
			}

			var value any
			switch {
			case len(args) == 2:
				value = args[1]
			case secret || s.Sensitive:
				v, err := promptSecret(cmd, key)
				if err != nil {
					return err
				}
				value = v
			default:
				return fmt.Errorf("missing value for %q", key)
			}

			result, err := a.manager.Set(cmd.Context(), key, value)
			if err != nil {
				return err
			}
			return reportResult(cmd, a, result)
		},
	}
	cmd.Flags().BoolVar(&secret, "secret", false, "Prompt for the value without echo")
	return cmd
}

func newUnsetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unset KEY",
		Short: "Reset one setting to its default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.manager.Unset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return reportResult(cmd, a, result)
		},
	}
}

// reportResult prints the per-field outcome and turns a fully rejected
// update into a command error.
func reportResult(cmd *cobra.Command, a *app, result settings.Result) error {
	out := cmd.OutOrStdout()
	snap := a.manager.Snapshot()

	for _, key := range result.Applied {
		fmt.Fprintf(out, "%s = %s\n", key, renderValue(a.manager.Registry().Get(key), snap[key]))
	}
	for _, key := range result.Defaulted {
		fmt.Fprintf(out, "%s reverted to default: %s\n", key, renderValue(a.manager.Registry().Get(key), snap[key]))
	}
	for _, key := range result.Skipped {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s rejected: %v\n", key, result.Errors[key])
	}
	if !result.Persisted {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: change held in memory only, every storage tier failed")
	}
	if len(result.Applied) == 0 && len(result.Errors) > 0 {
		return fmt.Errorf("no field applied")
	}
	if len(result.Applied) == 0 && len(result.Defaulted) == 0 {
		fmt.Fprintln(out, "no change")
	}
	return nil
}

// renderValue formats a public value for terminal output. Sensitive
// values arrive as presence flags and render as set/unset.
func renderValue(s *schema.Setting, value any) string {
	if s != nil && s.Sensitive {
		if on, _ := value.(bool); on {
			return "(set)"
		}
		return "(unset)"
	}
	return fmt.Sprintf("%v", value)
}

// promptSecret reads a value without echoing it. A non-terminal stdin
// (a pipe in scripts) falls back to reading one line.
func promptSecret(cmd *cobra.Command, key string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Value for %s: ", key)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
