package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/synthesis-framework/treecolor/pkg/coloring"
	"github.com/synthesis-framework/treecolor/pkg/synth"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "treecolor",
		Short: "decision-tree controller synthesis over stochastic systems",

		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newSolveCmd())
	rootCmd.AddCommand(newInfoCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newSolveCmd() *cobra.Command {
	var file string
	var schedulerCheck bool
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "search the controller family for an accepting assignment",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProblem(file)
			if err != nil {
				return err
			}
			opts := []coloring.Option{coloring.WithFamilyConsistencyCheck()}
			if schedulerCheck {
				opts = append(opts, coloring.WithSchedulerConsistencyCheck())
			}
			col, err := coloring.New(p.ts, p.tr, opts...)
			if err != nil {
				return err
			}
			log.WithField("family size", col.Family().Size()).Info("starting synthesis")
			s := synth.New(col, p.ts, p.spec)
			assignment, err := s.Run()
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{
				"explored": s.Explored,
				"pruned":   s.Pruned,
			}).Info("synthesis finished")
			if assignment == nil {
				fmt.Println("no assignment meets the specification")
				return nil
			}
			fmt.Println(assignment)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "problem file (YAML or JSON)")
	cmd.Flags().BoolVar(&schedulerCheck, "scheduler-check", false, "re-verify every selection under the solver")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		log.Panic(err.Error())
	}
	return cmd
}

func newInfoCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "print the holes of the controller family",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProblem(file)
			if err != nil {
				return err
			}
			col, err := coloring.New(p.ts, p.tr, coloring.SingleCheckOnly())
			if err != nil {
				return err
			}
			for _, h := range col.FamilyInfo() {
				fmt.Printf("%3d %-8s %s\n", h.Index, h.Name, h.Domain)
			}
			fmt.Printf("family size: %v\n", col.Family().Size())
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "problem file (YAML or JSON)")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		log.Panic(err.Error())
	}
	return cmd
}
