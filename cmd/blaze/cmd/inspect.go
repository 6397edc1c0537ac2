package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/blaze/classfile"
	"github.com/chazu/blaze/snapshot"
	"github.com/chazu/blaze/vm"
)

var (
	// Inspect command flags
	inspectClasspath string
	inspectOut       string
	inspectLink      bool
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <file.class|class>",
	Short: "Summarize a class file",
	Long: `Parse a class file and print its declared fields and methods.

With --link the class is also loaded into an engine, and the summary shows the
linked field slots and vtable. With --out the parsed class is written as canonical CBOR.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVarP(&inspectClasspath, "classpath", "c", "", "Class search path (directories and jars)")
	inspectCmd.Flags().StringVarP(&inspectOut, "out", "o", "", "Write a CBOR snapshot to this file")
	inspectCmd.Flags().BoolVar(&inspectLink, "link", false, "Load and link the class before printing")
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := readClass(args[0], inspectClasspath)
	if err != nil {
		return err
	}
	cd, err := classfile.Parse(data)
	if err != nil {
		return err
	}
	s, err := snapshot.FromDescriptor(cd)
	if err != nil {
		return err
	}

	if inspectOut != "" {
		encoded, err := snapshot.Marshal(s)
		if err != nil {
			return err
		}
		if err := os.WriteFile(inspectOut, encoded, 0644); err != nil {
			return err
		}
		log.Infof("wrote %d bytes to %s", len(encoded), inspectOut)
		return nil
	}

	out := cmd.OutOrStdout()
	if inspectLink {
		cp, err := openClasspath(inspectClasspath)
		if err != nil {
			return err
		}
		defer cp.Close()
		engine := vm.New(cp)
		c, err := engine.LoadClass(cd.Name)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, engine.Describe(c))
		return nil
	}

	digest, err := snapshot.Digest(s)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (version %d.%d, flags 0x%04x)\n", s.Name, s.Major, s.Minor, s.Flags)
	if s.Super != "" {
		fmt.Fprintf(out, "  extends %s\n", s.Super)
	}
	for _, i := range s.Interfaces {
		fmt.Fprintf(out, "  implements %s\n", i)
	}
	if s.SourceFile != "" {
		fmt.Fprintf(out, "  source %s\n", s.SourceFile)
	}
	fmt.Fprintf(out, "  constants %d\n", len(s.Constants))
	for _, f := range s.Fields {
		fmt.Fprintf(out, "  field %s %s", f.Name, f.Descriptor)
		if f.Constant != "" {
			fmt.Fprintf(out, " = %s", f.Constant)
		}
		fmt.Fprintln(out)
	}
	for _, m := range s.Methods {
		fmt.Fprintf(out, "  method %s%s", m.Name, m.Descriptor)
		if m.Code != nil {
			fmt.Fprintf(out, " (%d bytes, stack %d, locals %d)", len(m.Code.Bytes), m.Code.MaxStack, m.Code.MaxLocals)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "  sha256 %x\n", digest)
	return nil
}
