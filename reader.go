// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"bytes"
	"encoding/binary"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// byteView is a bounds-checked little-endian view over a fixed byte
// buffer. It knows nothing about sections, RVAs, or PE structure - it is
// the primitive layer every other decode in this package is built on.
type byteView struct {
	data []byte
}

func (v byteView) size() uint32 { return uint32(len(v.data)) }

// Uint64 reads a little-endian uint64 at offset.
func (v byteView) Uint64(offset uint32) (uint64, error) {
	if offset+8 > v.size() {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint64(v.data[offset:]), nil
}

// Uint32 reads a little-endian uint32 at offset.
func (v byteView) Uint32(offset uint32) (uint32, error) {
	if offset > v.size()-4 {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint32(v.data[offset:]), nil
}

// Uint16 reads a little-endian uint16 at offset.
func (v byteView) Uint16(offset uint32) (uint16, error) {
	if offset > v.size()-2 {
		return 0, ErrOutsideBoundary
	}
	return binary.LittleEndian.Uint16(v.data[offset:]), nil
}

// Uint8 reads a single byte at offset.
func (v byteView) Uint8(offset uint32) (uint8, error) {
	if offset+1 > v.size() {
		return 0, ErrOutsideBoundary
	}
	return v.data[offset : offset+1][0], nil
}

// Bytes returns the size bytes starting at offset.
func (v byteView) Bytes(offset, size uint32) ([]byte, error) {
	totalSize := offset + size

	// Integer overflow.
	if (totalSize > offset) != (size > 0) {
		return nil, ErrOutsideBoundary
	}

	if offset >= v.size() || totalSize > v.size() {
		return nil, ErrOutsideBoundary
	}

	return v.data[offset : offset+size], nil
}

// view returns the ByteView over the file's full contents.
func (pe *File) view() byteView {
	return byteView{data: pe.data}
}

// ReadUint64 read a uint64 from a buffer.
func (pe *File) ReadUint64(offset uint32) (uint64, error) {
	return pe.view().Uint64(offset)
}

// ReadUint32 read a uint32 from a buffer.
func (pe *File) ReadUint32(offset uint32) (uint32, error) {
	return pe.view().Uint32(offset)
}

// ReadUint16 read a uint16 from a buffer.
func (pe *File) ReadUint16(offset uint32) (uint16, error) {
	return pe.view().Uint16(offset)
}

// ReadUint8 read a uint8 from a buffer.
func (pe *File) ReadUint8(offset uint32) (uint8, error) {
	return pe.view().Uint8(offset)
}

// ReadBytesAtOffset returns a byte array from offset.
func (pe *File) ReadBytesAtOffset(offset, size uint32) ([]byte, error) {
	return pe.view().Bytes(offset, size)
}

// readASCIIStringAtOffset walks a NUL-terminated ASCII string starting at
// offset, stopping after at most maxLength bytes, and returns how many
// bytes were consumed alongside the string itself.
func (pe *File) readASCIIStringAtOffset(offset, maxLength uint32) (uint32, string) {
	view := pe.view()
	str := ""
	var i uint32
	for i = 0; i < maxLength; i++ {
		if offset+i >= view.size() || view.data[offset+i] == 0 {
			break
		}
		str += string(view.data[offset+i])
	}
	return i, str
}

// GetStringFromData returns ASCII string from within the data.
func (pe *File) GetStringFromData(offset uint32, data []byte) []byte {

	dataSize := uint32(len(data))
	if dataSize == 0 {
		return nil
	}

	if offset > dataSize {
		return nil
	}

	end := offset
	for end < dataSize {
		if data[end] == 0 {
			break
		}
		end++
	}
	return data[offset:end]
}

// getStringAtOffset returns a string given an offset.
func (pe *File) getStringAtOffset(offset, size uint32) (string, error) {
	if offset+size > pe.size {
		return "", ErrOutsideBoundary
	}

	str := string(pe.data[offset : offset+size])
	return strings.Replace(str, "\x00", "", -1), nil
}

// DecodeUTF16String decodes the UTF16 string from the byte slice.
func DecodeUTF16String(b []byte) (string, error) {
	n := bytes.Index(b, []byte{0, 0})
	if n == 0 {
		return "", nil
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	s, err := decoder.Bytes(b[0 : n+1])
	if err != nil {
		return "", err
	}
	return string(s), nil
}
