// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"bytes"
	"encoding/binary"
	"os"
)

// recordSpan captures a struct decoded by structUnpack together with its
// original on-disk bytes, so Write can later detect whether the caller
// mutated the decoded value and, if so, re-encode it back in place.
type recordSpan struct {
	offset   uint32
	original []byte
	value    interface{}
}

// trackRecord records a successfully decoded struct and the raw bytes it
// came from. Every structUnpack call feeds this, which means every header,
// directory entry, section header, and thunk decoded during Parse is
// eligible for rebuilding.
func (pe *File) trackRecord(offset uint32, raw []byte, value interface{}) {
	original := make([]byte, len(raw))
	copy(original, raw)
	pe.records = append(pe.records, recordSpan{
		offset:   offset,
		original: original,
		value:    value,
	})
}

// sectionMiscOffset is the byte offset of the Misc union cell within an
// encoded ImageSectionHeader: the 8-byte Name field precedes it.
const sectionMiscOffset = 8

// encodeRecord re-encodes rec.value and, for a record whose layout carries
// a union, resolves which alias wins before returning the final bytes. A
// nil return means the struct's on-wire size no longer matches what was
// decoded, and the record is left untouched rather than risk corrupting its
// neighbors.
func (pe *File) encodeRecord(rec recordSpan) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, rec.value); err != nil {
		return nil
	}
	encoded := buf.Bytes()

	if len(encoded) != len(rec.original) {
		return nil
	}

	if sh, ok := rec.value.(*ImageSectionHeader); ok {
		encoded = pe.resolveSectionMisc(sh, rec.original, encoded)
	}

	return encoded
}

// resolveSectionMisc overlays the Misc union cell of a re-encoded section
// header with whichever alias - VirtualSize or the owning Section's
// PhysicalAddress override - no longer agrees with the value that was on
// disk when the header was decoded.
func (pe *File) resolveSectionMisc(sh *ImageSectionHeader, original, encoded []byte) []byte {
	var sec *Section
	for i := range pe.Sections {
		if &pe.Sections[i].Header == sh {
			sec = &pe.Sections[i]
			break
		}
	}
	if sec == nil {
		return encoded
	}

	decoded := binary.LittleEndian.Uint32(original[sectionMiscOffset:])
	resolved := resolveUnion(decoded, []unionAlias{
		{name: "VirtualSize", get: func() uint32 { return sh.VirtualSize }},
		{name: "PhysicalAddress", get: sec.PhysicalAddress},
	})
	if resolved == decoded {
		return encoded
	}

	out := make([]byte, len(encoded))
	copy(out, encoded)
	binary.LittleEndian.PutUint32(out[sectionMiscOffset:], resolved)
	return out
}

// Write rebuilds the PE image, starting from the original bytes and
// overlaying the re-encoded form of any record whose decoded value - or,
// for union-bearing records, any of its aliases - has since been mutated by
// the caller. Bytes belonging to no tracked record, including the trailing
// overlay, are copied through unchanged. The result is both returned and
// persisted to path.
func (pe *File) Write(path string) ([]byte, error) {
	out := make([]byte, len(pe.data))
	copy(out, pe.data)

	for _, rec := range pe.records {
		encoded := pe.encodeRecord(rec)
		if encoded == nil || bytes.Equal(encoded, rec.original) {
			continue
		}

		start := rec.offset
		end := rec.offset + uint32(len(encoded))
		if end > uint32(len(out)) {
			continue
		}
		copy(out[start:end], encoded)
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return nil, err
	}

	return out, nil
}
