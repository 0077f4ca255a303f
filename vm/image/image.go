// Package image stores loaded classes as content-addressed CBOR images.
// Encoding is canonical, so equal class sets produce equal bytes and
// equal digests.
package image

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"github.com/chazu/ristretto/vm"
	"github.com/fxamacker/cbor/v2"
)

// Version is the image format version written by Marshal.
const Version = 1

// FileExt is the conventional extension for image files.
const FileExt = ".rimg"

var ErrUnsupportedVersion = errors.New("image: unsupported version")

// Image is a set of class definitions plus an optional default entry.
type Image struct {
	Version uint8         `cbor:"1,keyasint"`
	Entry   string        `cbor:"2,keyasint,omitempty"`
	Classes []vm.ClassDef `cbor:"3,keyasint"`
}

// ClassHash pairs a class name with the digest of its definition.
type ClassHash struct {
	Name string   `cbor:"1,keyasint"`
	Hash [32]byte `cbor:"2,keyasint"`
}

// Summary advertises an image's contents without its code.
type Summary struct {
	Root    [32]byte    `cbor:"1,keyasint"`
	Entry   string      `cbor:"2,keyasint,omitempty"`
	Classes []ClassHash `cbor:"3,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// New builds a current-version image.
func New(entry string, classes []vm.ClassDef) *Image {
	return &Image{Version: Version, Entry: entry, Classes: classes}
}

// Marshal serializes an image to canonical CBOR.
func Marshal(img *Image) ([]byte, error) {
	return cborEncMode.Marshal(img)
}

// Unmarshal deserializes an image and checks its version.
func Unmarshal(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Version != Version {
		return nil, fmt.Errorf("%w %d", ErrUnsupportedVersion, img.Version)
	}
	return &img, nil
}

// Digest returns the SHA-256 of the image's canonical encoding.
func Digest(img *Image) ([32]byte, error) {
	data, err := Marshal(img)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// ClassDigest returns the SHA-256 of one class definition's canonical encoding.
func ClassDigest(def vm.ClassDef) ([32]byte, error) {
	data, err := MarshalClass(def)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// MarshalClass serializes one class definition to canonical CBOR.
func MarshalClass(def vm.ClassDef) ([]byte, error) {
	return cborEncMode.Marshal(def)
}

// UnmarshalClass deserializes one class definition.
func UnmarshalClass(data []byte) (vm.ClassDef, error) {
	var def vm.ClassDef
	if err := cbor.Unmarshal(data, &def); err != nil {
		return vm.ClassDef{}, fmt.Errorf("image: unmarshal class: %w", err)
	}
	return def, nil
}

// Summarize computes the root digest and per-class digests of img.
func Summarize(img *Image) (*Summary, error) {
	root, err := Digest(img)
	if err != nil {
		return nil, err
	}
	s := &Summary{Root: root, Entry: img.Entry, Classes: make([]ClassHash, 0, len(img.Classes))}
	for _, def := range img.Classes {
		h, err := ClassDigest(def)
		if err != nil {
			return nil, fmt.Errorf("image: digest %s: %w", def.Name, err)
		}
		s.Classes = append(s.Classes, ClassHash{Name: def.Name, Hash: h})
	}
	return s, nil
}

// Load registers the image's classes in a new registry.
func (img *Image) Load() (*vm.Registry, error) {
	return vm.Load(img.Classes)
}

// WriteFile marshals img to path.
func WriteFile(path string, img *Image) error {
	data, err := Marshal(img)
	if err != nil {
		return fmt.Errorf("image: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("image: write %s: %w", path, err)
	}
	return nil
}

// ReadFile loads and unmarshals the image at path.
func ReadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: read %s: %w", path, err)
	}
	return Unmarshal(data)
}
