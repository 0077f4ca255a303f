// Package vm implements the integer bytecode interpreter.
//
// This package contains:
//   - Method and class definitions and the Load entry point
//   - The method registry, keyed by "Class.name:descriptor"
//   - Frame, which runs one method until it returns or invokes
//   - CallStack, which moves arguments and return values between frames
//   - Execute, which runs an entry method and reports an ExitStatus
//
// Values are 32-bit integers. Branch operands are absolute instruction
// indices; pkg/bytecode.Decode produces them from class-file offsets.
package vm
