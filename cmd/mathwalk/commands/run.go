package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/livetemplate/mathwalk"
	"github.com/livetemplate/mathwalk/internal/interp"
	"github.com/livetemplate/mathwalk/internal/source"
)

func newRunCommand(flags *globalFlags) *cobra.Command {
	var (
		step int
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "run [lessons]",
		Short: "Run step code in the terminal",
		Long: `Run executes a step's example code with the tutorial's runtime and
packages, the way the Run button does. With --all every step runs in order
in one interpreter, so later steps see earlier steps' variables.`,
		Example: `  mathwalk run --step 2 ./nn-math
  mathwalk run --all lessons.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd, flags, args)
			if err != nil {
				return err
			}
			defer p.Close()

			tut, err := mathwalk.Load(p.lessons)
			if err != nil {
				return err
			}
			reg, err := tut.Registry()
			if err != nil {
				return err
			}

			var indexes []int
			if all {
				for i := range reg.Count() {
					indexes = append(indexes, i)
				}
			} else {
				if step < 1 || step > reg.Count() {
					return fmt.Errorf("step %d out of range (1-%d)", step, reg.Count())
				}
				indexes = []int{step - 1}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runSteps(ctx, cmd.OutOrStdout(), p, tut, reg, indexes, all)
		},
	}

	cmd.Flags().IntVarP(&step, "step", "s", 1, "step number to run (1-based)")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "run every step in order")
	cmd.MarkFlagsMutuallyExclusive("step", "all")
	return cmd
}

func runSteps(ctx context.Context, out io.Writer, p *project, tut *mathwalk.Tutorial, reg *mathwalk.Registry, indexes []int, headers bool) error {
	backend, packages := p.cfg.Runtime.Resolve(tut.Runtime, tut.Packages)
	factory, err := interp.NewFactory(backend, interp.OptionsFromConfig(p.cfg.Runtime, tut.Root, p.logger.Logger))
	if err != nil {
		return err
	}

	rt, err := factory(ctx)
	if err != nil {
		return fmt.Errorf("failed to start runtime: %w", err)
	}
	defer rt.Close()

	for _, pkg := range packages {
		if err := rt.LoadDependency(ctx, pkg); err != nil {
			return fmt.Errorf("failed to load %s: %w", pkg, err)
		}
	}

	resolver := p.resolver(tut.Root)
	defer resolver.Close()

	timeout := p.cfg.Runtime.GetRunTimeout()
	for _, i := range indexes {
		step := reg.Get(i)
		code := step.Code
		if !step.HasInlineCode() {
			code, err = resolver.Fetch(ctx, step.Script)
			if err != nil {
				return fmt.Errorf("step %d: %s", i+1, source.UserFriendlyMessage(err))
			}
		}

		if headers {
			fmt.Fprintf(out, "=== Step %d: %s\n", i+1, step.Title)
		}

		if err := runOne(ctx, rt, code, timeout); err != nil {
			io.WriteString(out, rt.Output())
			return fmt.Errorf("step %d (%s):\n%w", i+1, step.Title, err)
		}
		io.WriteString(out, rt.Output())
	}
	return nil
}

func runOne(ctx context.Context, rt interp.Runtime, code string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	rt.ResetOutput()
	return rt.Run(ctx, code)
}
