package bytecode

import (
	"fmt"
	"strings"
)

// ConstantDescriber renders a constant pool entry for listings.
type ConstantDescriber interface {
	Describe(index uint16) string
}

// usesPool reports whether the first operand of op is a constant pool index.
func usesPool(op Opcode) bool {
	switch op {
	case OpLdc, OpLdcW, OpLdc2W,
		OpGetstatic, OpPutstatic, OpGetfield, OpPutfield,
		OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokeinterface, OpInvokedynamic,
		OpNew, OpAnewarray, OpCheckcast, OpInstanceof, OpMultianewarray:
		return true
	}
	return false
}

// Disassemble returns a human-readable listing of code. pool may be nil.
func Disassemble(code []byte, pool ConstantDescriber) (string, error) {
	var sb strings.Builder
	instrs, err := Decode(code)
	for _, in := range instrs {
		sb.WriteString(FormatInstruction(in, pool))
		sb.WriteByte('\n')
	}
	return sb.String(), err
}

// FormatInstruction renders a single decoded instruction.
func FormatInstruction(in Instruction, pool ConstantDescriber) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%5d: ", in.PC)
	if in.Wide {
		sb.WriteString("wide ")
	}
	sb.WriteString(in.Op.Name())

	switch {
	case in.Switch != nil:
		sb.WriteString(" {")
		for i, k := range in.Switch.Keys {
			fmt.Fprintf(&sb, " %d: %d;", k, in.PC+int(in.Switch.Offsets[i]))
		}
		fmt.Fprintf(&sb, " default: %d }", in.PC+int(in.Switch.Default))
	case in.Op.IsBranch():
		fmt.Fprintf(&sb, " %d", in.PC+in.Operands[0])
	case usesPool(in.Op) && len(in.Operands) > 0:
		fmt.Fprintf(&sb, " #%d", in.Operands[0])
		if pool != nil {
			fmt.Fprintf(&sb, " // %s", pool.Describe(uint16(in.Operands[0])))
		}
		for _, extra := range in.Operands[1:] {
			fmt.Fprintf(&sb, ", %d", extra)
		}
	default:
		for i, v := range in.Operands {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(&sb, " %d", v)
		}
	}
	return sb.String()
}
