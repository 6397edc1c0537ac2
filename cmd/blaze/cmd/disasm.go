package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/blaze/bytecode"
	"github.com/chazu/blaze/classfile"
)

var (
	// Disasm command flags
	disasmClasspath string
	disasmMethod    string
)

// disasmCmd represents the disasm command
var disasmCmd = &cobra.Command{
	Use:   "disasm <file.class|class>",
	Short: "Print method bytecode",
	Args:  cobra.ExactArgs(1),
	RunE:  runDisasm,
}

func init() {
	rootCmd.AddCommand(disasmCmd)

	disasmCmd.Flags().StringVarP(&disasmClasspath, "classpath", "c", "", "Class search path (directories and jars)")
	disasmCmd.Flags().StringVarP(&disasmMethod, "method", "m", "", "Only disassemble methods with this name")
}

func runDisasm(cmd *cobra.Command, args []string) error {
	data, err := readClass(args[0], disasmClasspath)
	if err != nil {
		return err
	}
	cd, err := classfile.Parse(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	found := false
	for _, m := range cd.Methods {
		if disasmMethod != "" && m.Name != disasmMethod {
			continue
		}
		found = true
		fmt.Fprintf(out, "%s.%s%s\n", cd.Name, m.Name, m.Descriptor)
		if m.Code == nil {
			fmt.Fprintln(out, "  (no code)")
			continue
		}
		listing, err := bytecode.Disassemble(m.Code.Code, cd.Pool)
		fmt.Fprint(out, listing)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", cd.Name, m.Name, err)
		}
		for _, h := range m.Code.ExceptionTable {
			catch := "any"
			if h.CatchType != 0 {
				catch = cd.Pool.Describe(h.CatchType)
			}
			fmt.Fprintf(out, "  catch [%d, %d) -> %d %s\n", h.StartPC, h.EndPC, h.HandlerPC, catch)
		}
		fmt.Fprintln(out)
	}
	if disasmMethod != "" && !found {
		return fmt.Errorf("%s has no method %q", cd.Name, disasmMethod)
	}
	return nil
}
