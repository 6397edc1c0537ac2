// Package cmd implements the blaze command line.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/blaze/classpath"
	"github.com/chazu/blaze/manifest"
)

var log = commonlog.GetLogger("blaze.cli")

var (
	// Global flags
	verbose int
	logFile string

	// Project configuration, nil outside a project
	project *manifest.Manifest
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "blaze",
	Short: "Run and inspect compiled class files",
	Long: `blaze loads compiled class files from a classpath and executes them
with a stack-based bytecode interpreter.

Settings are read from the nearest blaze.toml; command line flags override them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		if project, err = manifest.FindAndLoad(wd); err != nil {
			return err
		}

		level, path := verbose, logFile
		if project != nil {
			if !cmd.Flags().Changed("verbose") {
				level = project.Log.Verbosity
			}
			if path == "" {
				path = project.LogFilePath()
			}
		}
		if path == "" {
			commonlog.Configure(level, nil)
		} else {
			commonlog.Configure(level, &path)
		}

		if project != nil {
			log.Debugf("using %s", filepath.Join(project.Dir, manifest.FileName))
			for _, key := range project.Unknown {
				log.Warningf("%s: unknown key %q", manifest.FileName, key)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "Increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")

	binName := BinName()
	rootCmd.Example = `  # Run demo/Fib from ./classes
  ` + binName + ` run demo/Fib -c classes

  # Show a class summary
  ` + binName + ` inspect build/classes/demo/Fib.class

  # Disassemble every method of a class
  ` + binName + ` disasm demo/Fib -c app.jar`
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}

// openClasspath resolves the classpath from the flag, then the manifest,
// then the current directory.
func openClasspath(flag string) (classpath.Path, error) {
	if flag != "" {
		return classpath.Parse(flag)
	}
	if project != nil {
		return classpath.Open(project.ClasspathEntries()...)
	}
	return classpath.Open(".")
}

// readClass returns class-file bytes for arg, which is either a path to a
// .class file or a class name looked up on the classpath.
func readClass(arg, cpFlag string) ([]byte, error) {
	if filepath.Ext(arg) == ".class" {
		return os.ReadFile(arg)
	}
	cp, err := openClasspath(cpFlag)
	if err != nil {
		return nil, err
	}
	defer cp.Close()
	data, err := cp.Find(arg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", arg, err)
	}
	return data, nil
}
