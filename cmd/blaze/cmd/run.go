package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chazu/blaze/manifest"
	"github.com/chazu/blaze/vm"
)

var (
	// Run command flags
	runClasspath string
	maxFrames    int
	profileTop   int
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [class]",
	Short: "Execute a class's static main method",
	Long: `Load a class, run its static initializer, and invoke its entry point.

The entry point is a static method named main taking no arguments; failing
that, main(String[]) is called with an empty array. The class defaults to
run.main from blaze.toml. A non-void result is printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runClasspath, "classpath", "c", "", "Class search path (directories and jars)")
	runCmd.Flags().IntVar(&maxFrames, "max-frames", manifest.DefaultMaxFrames, "Maximum call depth")
	runCmd.Flags().IntVar(&profileTop, "profile", 0, "Print the N busiest methods after the run")
}

func runRun(cmd *cobra.Command, args []string) error {
	className := ""
	if len(args) == 1 {
		className = args[0]
	} else if project != nil {
		className = project.Run.Main
	}
	if className == "" {
		return errors.New("no class given and no run.main in blaze.toml")
	}

	frames := maxFrames
	if project != nil && !cmd.Flags().Changed("max-frames") {
		frames = project.Run.MaxFrames
	}

	cp, err := openClasspath(runClasspath)
	if err != nil {
		return err
	}
	defer cp.Close()

	opts := []vm.Option{vm.WithMaxFrames(frames)}
	var profiler *vm.Profiler
	if profileTop > 0 {
		profiler = vm.NewProfiler()
		profiler.OnHot = func(m *vm.Method, _ *vm.MethodProfile) {
			log.Debugf("hot method %s", m)
		}
		opts = append(opts, vm.WithProfiler(profiler))
	}

	engine := vm.New(cp, opts...)
	log.Infof("running %s (max frames %d)", className, frames)
	result, err := engine.Run(className)
	if profiler != nil {
		printProfile(cmd.ErrOrStderr(), profiler)
	}
	if err != nil {
		var uncaught *vm.UncaughtException
		if errors.As(err, &uncaught) {
			fmt.Fprintln(cmd.ErrOrStderr(), uncaught.StackTrace())
		}
		return err
	}

	if result.Kind() != vm.KindTop {
		if s, ok := engine.GoString(result); ok {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), result)
		}
	}
	return nil
}

func printProfile(w io.Writer, p *vm.Profiler) {
	fmt.Fprintf(w, "%12s %12s  %s\n", "instructions", "invocations", "method")
	for _, mp := range p.Top(profileTop) {
		fmt.Fprintf(w, "%12d %12d  %s\n", mp.Instructions, mp.Invocations, mp.Method)
	}
}
