// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"bytes"
	"encoding/binary"
)

// decodeStruct decodes a little-endian on-disk structure at offset into
// iface, which must be a pointer to a fixed-layout struct of exactly size
// bytes, and returns the raw bytes it was decoded from. It does not record
// the result for rebuilding: use it when the decoded value still has to
// move before it reaches its final, caller-visible address (e.g. into a
// slice that is still being appended to or sorted), and register the
// record with trackRecord once it has settled there.
func (pe *File) decodeStruct(iface interface{}, offset, size uint32) (raw []byte, err error) {
	// Boundary check.
	totalSize := offset + size

	// Integer overflow.
	if (totalSize > offset) != (size > 0) {
		return nil, ErrOutsideBoundary
	}

	if offset >= pe.size || totalSize > pe.size {
		return nil, ErrOutsideBoundary
	}

	raw = pe.data[offset : offset+size]
	buf := bytes.NewReader(raw)
	if err := binary.Read(buf, binary.LittleEndian, iface); err != nil {
		return nil, err
	}

	return raw, nil
}

// structUnpack decodes like decodeStruct and immediately registers the
// result as a rebuildable record. Use it when iface's address is already
// the value's permanent home for the lifetime of the File.
func (pe *File) structUnpack(iface interface{}, offset, size uint32) error {
	raw, err := pe.decodeStruct(iface, offset, size)
	if err != nil {
		return err
	}

	pe.trackRecord(offset, raw, iface)
	return nil
}

// unionAlias names one of several record fields that share a single on-disk
// storage cell, together with an accessor for its current, possibly
// caller-mutated value.
type unionAlias struct {
	name string
	get  func() uint32
}

// resolveUnion applies the alias tie-break rule for a union cell that was
// read off disk as decoded: the first alias, in declaration order, whose
// current value no longer agrees with decoded wins the re-encode. If every
// alias still agrees with what was decoded, decoded itself is kept, so a
// record nobody touched re-encodes byte-for-byte as it was read.
func resolveUnion(decoded uint32, aliases []unionAlias) uint32 {
	for _, alias := range aliases {
		if v := alias.get(); v != decoded {
			return v
		}
	}
	return decoded
}
