package vm

import (
	"fmt"

	"github.com/chazu/ristretto/classfile"
	"github.com/chazu/ristretto/pkg/bytecode"
)

// MainDescriptor is the descriptor of a class's conventional entry point.
const MainDescriptor = "([Ljava/lang/String;)V"

// DefaultEntry returns "<class>.main:([Ljava/lang/String;)V".
func DefaultEntry(class string) string {
	return Signature(class, "main", MainDescriptor)
}

// Load builds a registry from class definitions. Every method is
// registered under "Class.name:descriptor"; a later class or method with
// the same key replaces the earlier one. A replaced class takes all of its
// methods with it, so the registry only holds methods of registered classes.
func Load(defs []ClassDef) (*Registry, error) {
	reg := NewRegistry()
	for _, def := range defs {
		if err := LoadInto(reg, def); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// LoadInto registers one class definition in reg.
func LoadInto(reg *Registry, def ClassDef) error {
	if def.Name == "" {
		return fmt.Errorf("load: class with empty name")
	}

	class := &Class{
		Name:      def.Name,
		SuperName: def.SuperName,
		Pool:      classfile.NewConstantPool(def.Pool),
		Methods:   make(map[string]*Method, len(def.Methods)),
	}

	for _, md := range def.Methods {
		slots, void, err := ParseDescriptor(md.Descriptor)
		if err != nil {
			return fmt.Errorf("load %s.%s: %w", def.Name, md.Name, err)
		}
		if md.MaxStack < 0 || md.MaxLocals < 0 {
			return fmt.Errorf("load %s.%s: negative max stack or locals", def.Name, md.Name)
		}

		m := &Method{
			Class:      def.Name,
			Name:       md.Name,
			Descriptor: md.Descriptor,
			MaxStack:   md.MaxStack,
			MaxLocals:  md.MaxLocals,
			ArgSlots:   slots,
			Void:       void,
			Code:       append([]bytecode.Instruction(nil), md.Code...),
		}
		sig := m.Signature()
		class.Methods[sig] = m
		if old := reg.RegisterMethod(sig, m); old != nil {
			log.Warningf("load: %s replaced", sig)
		}
	}

	if old := reg.RegisterClass(class); old != nil {
		log.Warningf("load: class %s replaced", def.Name)
		// Methods the new definition drops would run against its pool.
		for sig, m := range old.Methods {
			if _, kept := class.Methods[sig]; !kept {
				reg.removeMethod(sig, m)
			}
		}
	}
	log.Debugf("load: class %s, %d methods", def.Name, len(class.Methods))
	return nil
}

// DefFromClassFile converts a parsed class file into a ClassDef.
// Methods without a Code attribute (abstract or native) are skipped.
func DefFromClassFile(cf *classfile.ClassFile) (ClassDef, error) {
	def := ClassDef{
		Name:      cf.ThisClass,
		SuperName: cf.SuperClass,
		Pool:      cf.Pool.Entries(),
	}

	for _, mi := range cf.Methods {
		if mi.Code == nil {
			log.Debugf("load: %s has no code, skipped", cf.Signature(mi))
			continue
		}
		code, err := bytecode.Decode(mi.Code.Code)
		if err != nil {
			return ClassDef{}, fmt.Errorf("decode %s: %w", cf.Signature(mi), err)
		}
		def.Methods = append(def.Methods, MethodDef{
			Name:       mi.Name,
			Descriptor: mi.Descriptor,
			MaxStack:   int(mi.Code.MaxStack),
			MaxLocals:  int(mi.Code.MaxLocals),
			Code:       code,
		})
	}
	return def, nil
}
