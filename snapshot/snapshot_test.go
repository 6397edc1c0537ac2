package snapshot

import (
	"bytes"
	"testing"

	"github.com/chazu/blaze/bytecode"
	"github.com/chazu/blaze/classfile"
)

func sampleClass(t *testing.T) []byte {
	t.Helper()
	b := classfile.NewBuilder("demo/Counter", "java/lang/Object")
	b.SetSourceFile("Counter.java")
	b.AddField(classfile.AccPrivate, "count", "I")
	b.AddConstantField(classfile.AccPublic|classfile.AccStatic|classfile.AccFinal, "LIMIT", "I", int32(10))

	m := b.AddMethod(classfile.AccPublic, "bump", "()V")
	a := m.Asm(3, 1)
	start := a.Here("start")
	a.Emit(bytecode.OpAload0, bytecode.OpDup)
	a.EmitUint16(bytecode.OpGetfield, b.FieldRef("demo/Counter", "count", "I"))
	a.Emit(bytecode.OpIconst1, bytecode.OpIadd)
	a.EmitUint16(bytecode.OpPutfield, b.FieldRef("demo/Counter", "count", "I"))
	end := a.Here("end")
	a.Emit(bytecode.OpReturn)
	handler := a.Here("handler")
	a.Emit(bytecode.OpAthrow)
	m.Catch(start, end, handler, "java/lang/NullPointerException")
	m.Line(0, 7)

	b.AddMethod(classfile.AccPublic|classfile.AccAbstract, "reset", "()V")

	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	return data
}

func TestFromDescriptor(t *testing.T) {
	cd, err := classfile.Parse(sampleClass(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s, err := FromDescriptor(cd)
	if err != nil {
		t.Fatalf("FromDescriptor: %v", err)
	}

	if s.Name != "demo/Counter" || s.Super != "java/lang/Object" {
		t.Errorf("names: got %q extends %q", s.Name, s.Super)
	}
	if s.SourceFile != "Counter.java" {
		t.Errorf("SourceFile: got %q", s.SourceFile)
	}
	if len(s.Fields) != 2 || s.Fields[1].Constant != "int 10" {
		t.Errorf("Fields: got %+v", s.Fields)
	}

	bump := s.Method("bump", "()V")
	if bump == nil || bump.Code == nil {
		t.Fatal("bump: missing code")
	}
	if len(bump.Code.Handlers) != 1 || bump.Code.Handlers[0].CatchType != "java/lang/NullPointerException" {
		t.Errorf("Handlers: got %+v", bump.Code.Handlers)
	}
	if len(bump.Code.Lines) != 1 || bump.Code.Lines[0].Line != 7 {
		t.Errorf("Lines: got %+v", bump.Code.Lines)
	}
	if reset := s.Method("reset", "()V"); reset == nil || reset.Code != nil {
		t.Errorf("reset: got %+v, want abstract method without code", reset)
	}

	found := false
	for _, c := range s.Constants {
		if c.Tag == "Fieldref" && c.Text == "Field demo/Counter.count:I" {
			found = true
		}
	}
	if !found {
		t.Errorf("Constants: no rendered field reference in %+v", s.Constants)
	}
}

func TestClass_CBORRoundTrip(t *testing.T) {
	data, err := Encode(sampleClass(t))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Name != "demo/Counter" {
		t.Errorf("Name: got %q", got.Name)
	}
	if len(got.Methods) != 2 {
		t.Fatalf("Methods: got %d, want 2", len(got.Methods))
	}

	again, err := Marshal(got)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Error("canonical encoding changed after round trip")
	}
}

func TestDigestIsStable(t *testing.T) {
	cd, err := classfile.Parse(sampleClass(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a, _ := FromDescriptor(cd)
	b, _ := FromDescriptor(cd)

	da, err := Digest(a)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	db, _ := Digest(b)
	if da != db {
		t.Error("equal snapshots have different digests")
	}

	b.Methods[0].Code.Bytes = append([]byte(nil), b.Methods[0].Code.Bytes...)
	b.Methods[0].Code.Bytes[0] = byte(bytecode.OpNop)
	dc, _ := Digest(b)
	if da == dc {
		t.Error("changed code kept the same digest")
	}
}

func TestUnmarshalGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte{0xff, 0x00}); err == nil {
		t.Error("Unmarshal of garbage succeeded")
	}
}

func TestEncodeRejectsMalformed(t *testing.T) {
	if _, err := Encode([]byte{0xca, 0xfe, 0xba}); err == nil {
		t.Error("Encode of truncated class succeeded")
	}
}
