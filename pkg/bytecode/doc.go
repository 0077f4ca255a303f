// Package bytecode defines the closed instruction set understood by the
// Ristretto interpreter: a small subset of JVM integer bytecode.
//
// Instructions are held in decoded form. A method body is a slice of
// Instruction values, and every control transfer names an absolute index
// into that slice rather than a byte offset. Decode performs the
// translation from raw class-file Code bytes.
//
// # Instruction classes
//
//   - Constants: iconst_m1..iconst_5, bipush, sipush
//   - Locals: iload, iload_<n>, aload_0, istore, istore_<n>, iinc
//   - Arithmetic: iadd
//   - Control flow: goto, if_icmplt
//   - Returns: return, ireturn
//   - Invocation: invokestatic, invokespecial
//
// Invoke instructions carry a constant pool index. The interpreter resolves
// it to a method signature of the form "Class.name:descriptor".
package bytecode
