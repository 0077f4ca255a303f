// Package asm assembles class definitions from a line-oriented text
// format, so programs can be written without a Java compiler.
//
//	// Sum 0..n-1.
//	class Counter extends java/lang/Object
//	  method static sum (I)I
//	    iconst_0
//	    istore_1
//	    iconst_0
//	    istore_2
//	    goto test
//	  body:
//	    iload_1
//	    iload_2
//	    iadd
//	    istore_1
//	    iinc 2 1
//	  test:
//	    iload_2
//	    iload_0
//	    if_icmplt body
//	    iload_1
//	    ireturn
//	  end
//	end
//
// Method references are written "Class.name:descriptor", or
// "name:descriptor" for the enclosing class; the constant pool is built
// from them. A method header may give "stack N" and "locals N"; omitted
// values are inferred from the code.
package asm
