package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/livetemplate/mathwalk"
	"github.com/livetemplate/mathwalk/internal/interp"
)

func newValidateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [lessons]",
		Short: "Check that lessons parse and every script loads",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd, flags, args)
			if err != nil {
				return err
			}
			defer p.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "🔍 Validating lessons in: %s\n\n", p.lessons)

			tut, err := mathwalk.Load(p.lessons)
			if err != nil {
				return err
			}

			resolver := p.resolver(tut.Root)
			defer resolver.Close()

			problems := tut.Validate(cmd.Context(), resolver)

			backend, _ := p.cfg.Runtime.Resolve(tut.Runtime, tut.Packages)
			opts := interp.OptionsFromConfig(p.cfg.Runtime, tut.Root, p.logger.Logger)
			// The exec backend is only unlocked at serve time.
			if _, err := interp.NewFactory(backend, opts); err != nil && !errors.Is(err, interp.ErrExecDisabled) {
				problems = append(problems, mathwalk.NewParseError(tut.SourceFile, 1, err.Error()))
			}

			if len(problems) == 0 {
				fmt.Fprintf(out, "✓ %s: %d steps\n", tut.SourceFile, len(tut.Steps))
				return nil
			}

			for _, problem := range problems {
				fmt.Fprintf(out, "✗ %v\n\n", problem)
			}
			return fmt.Errorf("validation failed: %d problem(s)", len(problems))
		},
	}
}
