package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/livetemplate/mathwalk"
)

func newStepsCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "steps [lessons]",
		Short: "List the steps of a tutorial",
		Args:  cobra.MaximumNArgs(1),
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

			out := cmd.OutOrStdout()
			if tut.Title != "" {
				fmt.Fprintf(out, "%s\n\n", tut.Title)
			}

			width := 0
			for _, s := range tut.Steps {
				width = max(width, len(s.Title))
			}
			for i, s := range tut.Steps {
				src := "inline"
				if !s.HasInlineCode() {
					src = s.Script
				}
				fmt.Fprintf(out, "%2d. %-*s  %s\n", i+1, width, s.Title, src)
			}
			return nil
		},
	}
}
