package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/0xADE/ade-progd/client/prog"
	"github.com/0xADE/ade-progd/parser"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	socket string
	lang   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "ade-prog-cli",
		Short:         "Query and control the ade-progd program catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.socket, "socket", "", "Socket path (default $ADE_PROGD_SOCK or /tmp/ade-<uid>/progd)")
	cmd.PersistentFlags().StringVar(&opts.lang, "lang", "", "Locale used for application titles")

	cmd.AddCommand(
		newQueryCmd(opts),
		newRunCmd(opts),
		newMenuCmd(opts),
		newActionCmd(opts),
		newDisableCmd(opts),
		newEnableCmd(opts),
		newDisabledCmd(opts),
		newReindexCmd(opts),
		newSaveCmd(opts),
		newStatusCmd(opts),
		newSourceCmd(opts),
		newInteractiveCmd(opts),
	)
	return cmd
}

// connect dials the daemon and applies the session flags
func connect(opts *options) (*prog.Client, error) {
	socket := opts.socket
	if socket == "" {
		var err error
		if socket, err = prog.SocketPath(); err != nil {
			return nil, err
		}
	}
	client, err := prog.Dial(socket)
	if err != nil {
		return nil, err
	}
	if opts.lang != "" {
		if err := client.Lang(opts.lang); err != nil {
			client.Close()
			return nil, err
		}
	}
	return client, nil
}

// withClient runs fn on a fresh connection
func withClient(opts *options, fn func(*prog.Client) error) error {
	client, err := connect(opts)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func newQueryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "query <text>...",
		Short: "List the programs matching text, best first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(c *prog.Client) error {
				results, err := c.Query(strings.Join(args, " "))
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, r := range results {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", r.ID, r.Score, r.Kind, r.Title, r.SubTitle)
				}
				return w.Flush()
			})
		},
	}
}

func newRunCmd(opts *options) *cobra.Command {
	var terminal bool
	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Start a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(c *prog.Client) error {
				pid, err := c.Run(args[0], terminal)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pid: %d\n", pid)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&terminal, "terminal", "t", false, "Run inside the default terminal")
	return cmd
}

func newMenuCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "menu <id>",
		Short: "List the context menu actions of a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(c *prog.Client) error {
				actions, err := c.Menu(args[0])
				if err != nil {
					return err
				}
				for _, a := range actions {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", a.Index, a.Title)
				}
				return nil
			})
		},
	}
}

func newActionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "action <id> <index>",
		Short: "Run a context menu action of a program",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("bad action index %q: %w", args[1], err)
			}
			return withClient(opts, func(c *prog.Client) error {
				hide, err := c.Action(args[0], index)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "hide: %t\n", hide)
				return nil
			})
		},
	}
}

func newDisableCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <id>",
		Short: "Hide a program from query results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(c *prog.Client) error {
				changed, err := c.Disable(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "changed: %t\n", changed)
				return nil
			})
		},
	}
}

func newEnableCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <id>",
		Short: "Show a disabled program again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(c *prog.Client) error {
				changed, err := c.Enable(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "changed: %t\n", changed)
				return nil
			})
		},
	}
}

func newDisabledCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "disabled",
		Short: "List the disabled programs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(opts, func(c *prog.Client) error {
				disabled, err := c.Disabled()
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, d := range disabled {
					fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, d.Name, d.Location)
				}
				return w.Flush()
			})
		},
	}
}

func newReindexCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rescan executables and desktop applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(opts, func(c *prog.Client) error {
				r, err := c.Reindex()
				if err != nil {
					return err
				}
				printAttrs(cmd.OutOrStdout(), r)
				return nil
			})
		},
	}
}

func newSaveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Persist the catalog and the settings",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withClient(opts, func(c *prog.Client) error {
				return c.Save()
			})
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the catalog state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(opts, func(c *prog.Client) error {
				r, err := c.Status()
				if err != nil {
					return err
				}
				printAttrs(cmd.OutOrStdout(), r)
				return nil
			})
		},
	}
}

func newSourceCmd(opts *options) *cobra.Command {
	var disabled bool
	cmd := &cobra.Command{
		Use:   "source <name> <dir>",
		Short: "Add or replace a directory scanned for executables",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(opts, func(c *prog.Client) error {
				return c.AddSource(args[0], args[1], !disabled)
			})
		},
	}
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Keep the source but do not scan it")
	return cmd
}

func newInteractiveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Send raw commands, one per line: the command followed by its arguments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(opts, func(c *prog.Client) error {
				return runInteractive(c, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			})
		},
	}
}

func runInteractive(client *prog.Client, in io.Reader, out, errOut io.Writer) error {
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out, "Interactive mode. Type commands or 'exit' to quit.")
	fmt.Fprint(out, "> ")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "exit" || line == "quit" {
			break
		}

		// Parse command
		parts := strings.Fields(line)
		if len(parts) == 0 {
			fmt.Fprint(out, "> ")
			continue
		}

		name := parts[0]
		values := make([]string, 0, len(parts)-1)
		for _, arg := range parts[1:] {
			values = append(values, prog.FormatArgument(arg))
		}

		r, err := client.Do(name, values...)
		var remote *parser.RemoteError
		switch {
		case errors.As(err, &remote):
			printAttrs(out, r)
		case err != nil:
			// The stream is out of sync after a transport error
			return err
		default:
			printAttrs(out, r)
			for _, fields := range r.Body {
				fmt.Fprintln(out, strings.Join(fields, "\t"))
			}
		}
		fmt.Fprint(out, "> ")
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(errOut, "Error reading input: %v\n", err)
		return err
	}
	return nil
}

func printAttrs(w io.Writer, r *parser.Response) {
	for _, a := range r.Attrs {
		fmt.Fprintf(w, "%s: %s\n", a.Key, a.Value)
	}
}
