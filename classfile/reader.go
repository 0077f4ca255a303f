package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Magic is the first four bytes of every class file.
const Magic uint32 = 0xCAFEBABE

var (
	ErrInvalidMagic  = errors.New("invalid magic number: expected 0xCAFEBABE")
	ErrUnexpectedEOF = errors.New("unexpected end of class data")
	ErrUnknownTag    = errors.New("unknown constant pool tag")
)

// ---------------------------------------------------------------------------
// ClassFile: decoded class-file structure
// ---------------------------------------------------------------------------

// ClassFile is the subset of a class file the interpreter consumes.
// Fields and non-Code attributes are skipped during parsing.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	Pool         *ConstantPool
	AccessFlags  uint16
	ThisClass    string
	SuperClass   string // empty for java/lang/Object
	Interfaces   []string
	Methods      []MethodInfo
}

// MethodInfo is one method_info record.
type MethodInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Code        *CodeAttribute // nil for abstract and native methods
}

// CodeAttribute carries the raw body of a method.
type CodeAttribute struct {
	MaxStack  uint16
	MaxLocals uint16
	Code      []byte
}

// Signature returns the registry key for a method of this class.
func (cf *ClassFile) Signature(m MethodInfo) string {
	return cf.ThisClass + "." + m.Name + ":" + m.Descriptor
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// reader walks class-file bytes; multi-byte values are big-endian.
type reader struct {
	data   []byte
	offset int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.offset+n > len(r.data) {
		return nil, fmt.Errorf("%w at byte %d", ErrUnexpectedEOF, r.offset)
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *reader) u1() (uint8, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u2() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) u4() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) u8() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// Parse decodes a class file.
func Parse(r io.Reader) (*ClassFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read class data: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes decodes a class file held in memory.
func ParseBytes(data []byte) (*ClassFile, error) {
	r := &reader{data: data}
	cf := &ClassFile{}

	magic, err := r.u4()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	if cf.MinorVersion, err = r.u2(); err != nil {
		return nil, err
	}
	if cf.MajorVersion, err = r.u2(); err != nil {
		return nil, err
	}

	if cf.Pool, err = readConstantPool(r); err != nil {
		return nil, fmt.Errorf("constant pool: %w", err)
	}

	if cf.AccessFlags, err = r.u2(); err != nil {
		return nil, err
	}

	thisIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	if cf.ThisClass, err = cf.Pool.Resolve(thisIdx); err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}

	superIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	if superIdx != 0 {
		if cf.SuperClass, err = cf.Pool.Resolve(superIdx); err != nil {
			return nil, fmt.Errorf("super_class: %w", err)
		}
	}

	ifaceCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(ifaceCount); i++ {
		idx, err := r.u2()
		if err != nil {
			return nil, err
		}
		name, err := cf.Pool.Resolve(idx)
		if err != nil {
			return nil, fmt.Errorf("interface %d: %w", i, err)
		}
		cf.Interfaces = append(cf.Interfaces, name)
	}

	fieldCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(fieldCount); i++ {
		// access_flags, name_index, descriptor_index
		if _, err := r.bytes(6); err != nil {
			return nil, err
		}
		if err := skipAttributes(r); err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
	}

	methodCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	cf.Methods = make([]MethodInfo, 0, methodCount)
	for i := 0; i < int(methodCount); i++ {
		m, err := readMethod(r, cf.Pool)
		if err != nil {
			return nil, fmt.Errorf("method %d: %w", i, err)
		}
		cf.Methods = append(cf.Methods, m)
	}

	// Trailing class attributes (SourceFile and friends) carry nothing we use.
	if err := skipAttributes(r); err != nil {
		return nil, fmt.Errorf("class attributes: %w", err)
	}

	return cf, nil
}

func readConstantPool(r *reader) (*ConstantPool, error) {
	count, err := r.u2()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 1, max(int(count), 1))
	entries[0] = Placeholder()

	for len(entries) < int(count) {
		index := len(entries)
		tag, err := r.u1()
		if err != nil {
			return nil, err
		}

		var e Entry
		switch Tag(tag) {
		case TagUtf8:
			n, err := r.u2()
			if err != nil {
				return nil, err
			}
			b, err := r.bytes(int(n))
			if err != nil {
				return nil, err
			}
			// Modified UTF-8 only differs for NUL and supplementary
			// characters, neither of which appear in names we resolve.
			e = Utf8(string(b))

		case TagInteger:
			v, err := r.u4()
			if err != nil {
				return nil, err
			}
			e = Integer(int32(v))

		case TagFloat:
			v, err := r.u4()
			if err != nil {
				return nil, err
			}
			e = Float(math.Float32frombits(v))

		case TagLong:
			v, err := r.u8()
			if err != nil {
				return nil, err
			}
			e = Long(int64(v))

		case TagDouble:
			v, err := r.u8()
			if err != nil {
				return nil, err
			}
			e = Double(math.Float64frombits(v))

		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			idx, err := r.u2()
			if err != nil {
				return nil, err
			}
			e = Entry{Tag: Tag(tag), Index1: idx}

		case TagFieldRef, TagMethodRef, TagInterfaceMethodRef, TagNameAndType,
			TagDynamic, TagInvokeDynamic:
			a, err := r.u2()
			if err != nil {
				return nil, err
			}
			b, err := r.u2()
			if err != nil {
				return nil, err
			}
			e = Entry{Tag: Tag(tag), Index1: a, Index2: b}

		case TagMethodHandle:
			kind, err := r.u1()
			if err != nil {
				return nil, err
			}
			idx, err := r.u2()
			if err != nil {
				return nil, err
			}
			e = Entry{Tag: TagMethodHandle, Kind: kind, Index1: idx}

		default:
			return nil, fmt.Errorf("%w %d at index %d", ErrUnknownTag, tag, index)
		}

		entries = append(entries, e)
		if e.wide() {
			entries = append(entries, Placeholder())
		}
	}

	return &ConstantPool{entries: entries}, nil
}

func readMethod(r *reader, pool *ConstantPool) (MethodInfo, error) {
	var m MethodInfo
	var err error

	if m.AccessFlags, err = r.u2(); err != nil {
		return m, err
	}
	nameIdx, err := r.u2()
	if err != nil {
		return m, err
	}
	if m.Name, err = pool.Utf8(nameIdx); err != nil {
		return m, fmt.Errorf("name: %w", err)
	}
	descIdx, err := r.u2()
	if err != nil {
		return m, err
	}
	if m.Descriptor, err = pool.Utf8(descIdx); err != nil {
		return m, fmt.Errorf("descriptor: %w", err)
	}

	attrCount, err := r.u2()
	if err != nil {
		return m, err
	}
	for i := 0; i < int(attrCount); i++ {
		attrName, body, err := readAttribute(r, pool)
		if err != nil {
			return m, err
		}
		if attrName != "Code" {
			continue
		}
		code, err := parseCode(body)
		if err != nil {
			return m, fmt.Errorf("%s Code: %w", m.Name, err)
		}
		m.Code = code
	}

	return m, nil
}

// readAttribute returns an attribute's name and raw body.
func readAttribute(r *reader, pool *ConstantPool) (string, []byte, error) {
	nameIdx, err := r.u2()
	if err != nil {
		return "", nil, err
	}
	name, err := pool.Utf8(nameIdx)
	if err != nil {
		return "", nil, fmt.Errorf("attribute name: %w", err)
	}
	length, err := r.u4()
	if err != nil {
		return "", nil, err
	}
	body, err := r.bytes(int(length))
	if err != nil {
		return "", nil, err
	}
	return name, body, nil
}

func skipAttributes(r *reader) error {
	count, err := r.u2()
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		if _, err := r.u2(); err != nil {
			return err
		}
		length, err := r.u4()
		if err != nil {
			return err
		}
		if _, err := r.bytes(int(length)); err != nil {
			return err
		}
	}
	return nil
}

// parseCode decodes a Code attribute body. The exception table and nested
// attributes (LineNumberTable, StackMapTable) are skipped.
func parseCode(body []byte) (*CodeAttribute, error) {
	r := &reader{data: body}
	c := &CodeAttribute{}
	var err error

	if c.MaxStack, err = r.u2(); err != nil {
		return nil, err
	}
	if c.MaxLocals, err = r.u2(); err != nil {
		return nil, err
	}
	codeLen, err := r.u4()
	if err != nil {
		return nil, err
	}
	code, err := r.bytes(int(codeLen))
	if err != nil {
		return nil, err
	}
	c.Code = append([]byte(nil), code...)

	excCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	if _, err := r.bytes(int(excCount) * 8); err != nil {
		return nil, err
	}
	if err := skipAttributes(r); err != nil {
		return nil, err
	}
	return c, nil
}
