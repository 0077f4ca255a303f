// Package classfile holds the per-class constant pool and a reader for the
// binary class-file format.
package classfile

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Constant pool entries
// ---------------------------------------------------------------------------

// Tag identifies the kind of a constant pool entry.
// Values match the class-file tag bytes; TagPlaceholder marks unused slots.
type Tag uint8

const (
	TagPlaceholder        Tag = 0
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldRef           Tag = 9
	TagMethodRef          Tag = 10
	TagInterfaceMethodRef Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

var tagNames = map[Tag]string{
	TagPlaceholder:        "Placeholder",
	TagUtf8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldRef:           "FieldRef",
	TagMethodRef:          "MethodRef",
	TagInterfaceMethodRef: "InterfaceMethodRef",
	TagNameAndType:        "NameAndType",
	TagMethodHandle:       "MethodHandle",
	TagMethodType:         "MethodType",
	TagDynamic:            "Dynamic",
	TagInvokeDynamic:      "InvokeDynamic",
	TagModule:             "Module",
	TagPackage:            "Package",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// Entry is one constant pool slot. Which fields are meaningful depends on Tag:
//
//	Class, Module, Package      Index1 = name index
//	String, MethodType          Index1 = utf8 index
//	FieldRef, MethodRef,
//	InterfaceMethodRef          Index1 = class index, Index2 = name-and-type index
//	NameAndType                 Index1 = name index, Index2 = descriptor index
//	MethodHandle                Index1 = reference index, Kind = reference kind
//	Dynamic, InvokeDynamic      Index1 = bootstrap attr index, Index2 = name-and-type index
//	Integer, Long               Int
//	Float, Double               Float
//	Utf8                        Text
type Entry struct {
	Tag    Tag     `cbor:"1,keyasint"`
	Index1 uint16  `cbor:"2,keyasint,omitempty"`
	Index2 uint16  `cbor:"3,keyasint,omitempty"`
	Kind   uint8   `cbor:"4,keyasint,omitempty"`
	Int    int64   `cbor:"5,keyasint,omitempty"`
	Float  float64 `cbor:"6,keyasint,omitempty"`
	Text   string  `cbor:"7,keyasint,omitempty"`
}

func Placeholder() Entry { return Entry{Tag: TagPlaceholder} }
func Utf8(text string) Entry { return Entry{Tag: TagUtf8, Text: text} }
func ClassRef(nameIndex uint16) Entry { return Entry{Tag: TagClass, Index1: nameIndex} }
func StringRef(utf8Index uint16) Entry { return Entry{Tag: TagString, Index1: utf8Index} }
func Integer(v int32) Entry { return Entry{Tag: TagInteger, Int: int64(v)} }
func Float(v float32) Entry { return Entry{Tag: TagFloat, Float: float64(v)} }
func Long(v int64) Entry { return Entry{Tag: TagLong, Int: v} }
func Double(v float64) Entry { return Entry{Tag: TagDouble, Float: v} }
func MethodType(descIndex uint16) Entry { return Entry{Tag: TagMethodType, Index1: descIndex} }

func MethodRef(classIndex, nameAndTypeIndex uint16) Entry {
	return Entry{Tag: TagMethodRef, Index1: classIndex, Index2: nameAndTypeIndex}
}

func InterfaceMethodRef(classIndex, nameAndTypeIndex uint16) Entry {
	return Entry{Tag: TagInterfaceMethodRef, Index1: classIndex, Index2: nameAndTypeIndex}
}

func FieldRef(classIndex, nameAndTypeIndex uint16) Entry {
	return Entry{Tag: TagFieldRef, Index1: classIndex, Index2: nameAndTypeIndex}
}

func NameAndType(nameIndex, descriptorIndex uint16) Entry {
	return Entry{Tag: TagNameAndType, Index1: nameIndex, Index2: descriptorIndex}
}

// wide reports whether the entry occupies two pool slots in a class file.
func (e Entry) wide() bool {
	return e.Tag == TagLong || e.Tag == TagDouble
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrUnresolvableConstant is returned for entries with no textual form.
	ErrUnresolvableConstant = errors.New("unresolvable constant")

	// ErrIndexOutOfRange is returned for index 0 or indices past the pool.
	ErrIndexOutOfRange = errors.New("constant pool index out of range")
)

// ResolveError reports which entry failed to resolve.
// It wraps ErrUnresolvableConstant or ErrIndexOutOfRange.
type ResolveError struct {
	Index uint16
	Tag   Tag
	Err   error
}

func (e *ResolveError) Error() string {
	if errors.Is(e.Err, ErrIndexOutOfRange) {
		return fmt.Sprintf("resolve #%d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("resolve #%d (%s): %v", e.Index, e.Tag, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// ConstantPool
// ---------------------------------------------------------------------------

// ConstantPool is the immutable, 1-based constant table of one class.
// Entry 0 is always a placeholder.
type ConstantPool struct {
	entries []Entry
}

// NewConstantPool builds a pool from entries, which must include the
// placeholder at index 0. A leading placeholder is inserted if missing.
// The slice is copied, so later changes by the caller are not observed.
func NewConstantPool(entries []Entry) *ConstantPool {
	if len(entries) == 0 || entries[0].Tag != TagPlaceholder {
		entries = append([]Entry{Placeholder()}, entries...)
	} else {
		entries = append([]Entry(nil), entries...)
	}
	return &ConstantPool{entries: entries}
}

// Len returns the number of slots including the placeholder,
// which equals constant_pool_count in a class file.
func (cp *ConstantPool) Len() int {
	return len(cp.entries)
}

// Entries returns a copy of the pool's slots.
func (cp *ConstantPool) Entries() []Entry {
	return append([]Entry(nil), cp.entries...)
}

// Entry returns the entry at index.
func (cp *ConstantPool) Entry(index uint16) (Entry, error) {
	if index == 0 || int(index) >= len(cp.entries) {
		return Entry{}, &ResolveError{Index: index, Err: ErrIndexOutOfRange}
	}
	return cp.entries[index], nil
}

// Resolve returns the canonical text of the entry at index.
//
//	Utf8         its text
//	Class        Resolve(name)
//	String       Resolve(utf8)
//	NameAndType  "name:descriptor"
//	MethodRef    "Class.name:descriptor" (likewise FieldRef, InterfaceMethodRef)
//
// MethodRef text is the signature key used by the method registry.
// Numeric literals and handle-kind entries have no text and fail with
// ErrUnresolvableConstant, as do reference cycles.
func (cp *ConstantPool) Resolve(index uint16) (string, error) {
	return cp.resolve(index, 0)
}

// resolve follows references from index. An acyclic chain visits each
// entry at most once, so a chain longer than the pool is a cycle.
func (cp *ConstantPool) resolve(index uint16, depth int) (string, error) {
	e, err := cp.Entry(index)
	if err != nil {
		return "", err
	}
	if depth >= len(cp.entries) {
		return "", &ResolveError{Index: index, Tag: e.Tag, Err: ErrUnresolvableConstant}
	}
	depth++

	switch e.Tag {
	case TagUtf8:
		return e.Text, nil

	case TagClass, TagString:
		return cp.resolve(e.Index1, depth)

	case TagNameAndType:
		name, err := cp.resolve(e.Index1, depth)
		if err != nil {
			return "", err
		}
		desc, err := cp.resolve(e.Index2, depth)
		if err != nil {
			return "", err
		}
		return name + ":" + desc, nil

	case TagMethodRef, TagInterfaceMethodRef, TagFieldRef:
		class, err := cp.resolve(e.Index1, depth)
		if err != nil {
			return "", err
		}
		nat, err := cp.resolve(e.Index2, depth)
		if err != nil {
			return "", err
		}
		return class + "." + nat, nil
	}

	return "", &ResolveError{Index: index, Tag: e.Tag, Err: ErrUnresolvableConstant}
}

// Utf8 returns the text of a Utf8 entry without following references.
func (cp *ConstantPool) Utf8(index uint16) (string, error) {
	e, err := cp.Entry(index)
	if err != nil {
		return "", err
	}
	if e.Tag != TagUtf8 {
		return "", &ResolveError{Index: index, Tag: e.Tag, Err: ErrUnresolvableConstant}
	}
	return e.Text, nil
}
