// Command ffidemo drives the library operations across the boundary.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/ffi-boundary/engine"
)

type options struct {
	describe    string
	memoryPages uint32
	verbose     bool
	plain       bool
}

func main() {
	var opts options

	root := &cobra.Command{
		Use:           "ffidemo",
		Short:         "Call library operations through a typed wasm boundary",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				opts.plain = true
			}
			if !opts.verbose {
				return nil
			}
			l, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			engine.SetLogger(l)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.describe, "describe", "", "interface description to verify against (default: bundled)")
	root.PersistentFlags().Uint32Var(&opts.memoryPages, "memory-pages", 0, "memory limit per instance in 64KB pages")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log boundary calls")
	root.PersistentFlags().BoolVar(&opts.plain, "plain", false, "disable styled output")

	root.AddCommand(
		runCommand(&opts),
		listCommand(&opts),
		callCommand(&opts),
		interactiveCommand(&opts),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every operation with sample inputs and check the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, *opts)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			failed := runDemo(ctx, s, newPrinter(cmd.OutOrStdout(), opts.plain))
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func listCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the declared functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, *opts)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			p := newPrinter(cmd.OutOrStdout(), opts.plain)
			for _, iface := range s.doc.Interfaces {
				p.title(iface.Name)
				if iface.Doc != "" {
					p.help(iface.Doc)
				}
				for _, f := range iface.Functions {
					p.function(f)
				}
			}
			return nil
		},
	}
}

func callCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "call <function> [args...]",
		Short: "Call one function",
		Long: strings.TrimSpace(`
Call one function. Arguments are parsed against the parameter types:
handles as numbers, absent options as "none", lists, maps and records in
YAML flow syntax, for example '[a, b]', '{one: 1}' or '{x: 1, y: 2}'.`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, *opts)
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			f, err := s.function(args[0])
			if err != nil {
				return err
			}
			out, err := s.call(ctx, f, args[1:])
			if err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout(), opts.plain).result(out)
			return nil
		},
	}
}

func interactiveCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"i"},
		Short:   "Browse and call functions in a terminal UI",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("interactive mode needs a terminal")
			}
			return runInteractive(*opts)
		},
	}
}
