// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"bytes"
	"encoding/binary"
)

const (
	testFileAlignment    = 0x200
	testSectionAlignment = 0x1000
)

func alignUp(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	return ((v + align - 1) / align) * align
}

// testSection describes one section to embed in a synthetic PE image built
// by buildPE32.
type testSection struct {
	name            string
	virtualSize     uint32
	virtualAddress  uint32
	data            []byte
	characteristics uint32
}

// buildPE32 assembles a minimal, well-formed 32-bit PE image out of a DOS
// header, NT headers, a section table, and each section's raw data laid out
// at FileAlignment-aligned file offsets. It returns the full image and, in
// the same order as sections, each section's assigned PointerToRawData -
// callers needing the RVA of a particular piece of section data should add
// that section's virtualAddress to the data's offset within section.data.
func buildPE32(sections []testSection, dataDirs [16]DataDirectory) ([]byte, []uint32) {
	return buildPE32Full(sections, dataDirs, 0, ImageFileExecutableImage)
}

// buildPE32WithSubsystem is buildPE32 with control over the optional header's
// Subsystem field, needed by tests that branch on it (e.g. driver detection).
func buildPE32WithSubsystem(sections []testSection, dataDirs [16]DataDirectory,
	subsystem uint16) ([]byte, []uint32) {
	return buildPE32Full(sections, dataDirs, subsystem, ImageFileExecutableImage)
}

// buildPE32Full is buildPE32 with control over both the optional header's
// Subsystem field and the file header's Characteristics field.
func buildPE32Full(sections []testSection, dataDirs [16]DataDirectory,
	subsystem uint16, fileCharacteristics uint16) ([]byte, []uint32) {
	dos := ImageDOSHeader{Magic: ImageDOSSignature, AddressOfNewEXEHeader: 0x80}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, dos)
	for buf.Len() < int(dos.AddressOfNewEXEHeader) {
		buf.WriteByte(0)
	}

	binary.Write(&buf, binary.LittleEndian, uint32(ImageNTSignature))

	fh := ImageFileHeader{
		Machine:              ImageFileHeaderMachineType(ImageFileMachineI386),
		NumberOfSections:     uint16(len(sections)),
		SizeOfOptionalHeader: uint16(binary.Size(ImageOptionalHeader32{})),
		Characteristics:      ImageFileHeaderCharacteristicsType(fileCharacteristics),
	}
	binary.Write(&buf, binary.LittleEndian, fh)

	headersEnd := uint32(buf.Len()) + uint32(binary.Size(ImageOptionalHeader32{})) +
		uint32(len(sections))*uint32(binary.Size(ImageSectionHeader{}))
	sizeOfHeaders := alignUp(headersEnd, testFileAlignment)

	var maxVA uint32
	for _, s := range sections {
		end := alignUp(s.virtualAddress+s.virtualSize, testSectionAlignment)
		if end > maxVA {
			maxVA = end
		}
	}

	oh := ImageOptionalHeader32{
		Magic:               ImageNtOptionalHeader32Magic,
		ImageBase:           0x400000,
		SectionAlignment:    testSectionAlignment,
		FileAlignment:       testFileAlignment,
		SizeOfHeaders:       sizeOfHeaders,
		SizeOfImage:         maxVA,
		Subsystem:           ImageOptionalHeaderSubsystemType(subsystem),
		NumberOfRvaAndSizes: 16,
		DataDirectory:       dataDirs,
	}
	binary.Write(&buf, binary.LittleEndian, oh)

	rawOffset := sizeOfHeaders
	offsets := make([]uint32, len(sections))
	headers := make([]ImageSectionHeader, len(sections))
	for i, s := range sections {
		var name [8]uint8
		copy(name[:], s.name)
		rawSize := alignUp(uint32(len(s.data)), testFileAlignment)
		headers[i] = ImageSectionHeader{
			Name:             name,
			VirtualSize:      s.virtualSize,
			VirtualAddress:   s.virtualAddress,
			SizeOfRawData:    rawSize,
			PointerToRawData: rawOffset,
			Characteristics:  s.characteristics,
		}
		offsets[i] = rawOffset
		rawOffset += rawSize
	}

	for _, h := range headers {
		binary.Write(&buf, binary.LittleEndian, h)
	}

	for buf.Len() < int(sizeOfHeaders) {
		buf.WriteByte(0)
	}

	for i, s := range sections {
		for uint32(buf.Len()) < offsets[i] {
			buf.WriteByte(0)
		}
		buf.Write(s.data)
		for uint32(buf.Len()) < offsets[i]+headers[i].SizeOfRawData {
			buf.WriteByte(0)
		}
	}

	return buf.Bytes(), offsets
}

// testImportFunc describes one function pulled in from a testImport's DLL.
type testImportFunc struct {
	name      string
	ordinal   uint16
	byOrdinal bool
}

// testImport describes one DLL entry to embed in a synthetic import directory
// built by buildImportSection.
type testImport struct {
	dllName string
	funcs   []testImportFunc
}

// buildImportSection lays out a complete 32-bit import directory (descriptor
// array, ILT, IAT, hint/name table and DLL name strings) as a single
// contiguous blob meant to be used as a section's raw data at sectionRVA. It
// returns that blob along with the RVA and size of the descriptor array,
// ready to be plugged into the import data directory entry.
func buildImportSection(imports []testImport, sectionRVA uint32) ([]byte, uint32, uint32) {
	descSize := uint32(binary.Size(ImageImportDescriptor{}))
	numDesc := uint32(len(imports) + 1)
	cursor := numDesc * descSize

	iltOffsets := make([]uint32, len(imports))
	iatOffsets := make([]uint32, len(imports))
	nameOffsets := make([]uint32, len(imports))
	funcNameOffsets := make([][]uint32, len(imports))

	for i, imp := range imports {
		iltOffsets[i] = cursor
		cursor += uint32(len(imp.funcs)+1) * 4
	}
	for i, imp := range imports {
		iatOffsets[i] = cursor
		cursor += uint32(len(imp.funcs)+1) * 4
	}
	for i, imp := range imports {
		funcNameOffsets[i] = make([]uint32, len(imp.funcs))
		for j, fn := range imp.funcs {
			if fn.byOrdinal {
				continue
			}
			funcNameOffsets[i][j] = cursor
			entryLen := 2 + len(fn.name) + 1
			if entryLen%2 != 0 {
				entryLen++
			}
			cursor += uint32(entryLen)
		}
	}
	for i, imp := range imports {
		nameOffsets[i] = cursor
		cursor += uint32(len(imp.dllName) + 1)
	}

	data := make([]byte, cursor)

	for i, imp := range imports {
		desc := ImageImportDescriptor{
			OriginalFirstThunk: sectionRVA + iltOffsets[i],
			Name:               sectionRVA + nameOffsets[i],
			FirstThunk:         sectionRVA + iatOffsets[i],
		}
		var b bytes.Buffer
		binary.Write(&b, binary.LittleEndian, desc)
		copy(data[uint32(i)*descSize:], b.Bytes())

		for j, fn := range imp.funcs {
			var val uint32
			if fn.byOrdinal {
				val = imageOrdinalFlag32 | uint32(fn.ordinal)
			} else {
				val = sectionRVA + funcNameOffsets[i][j]
			}
			binary.LittleEndian.PutUint32(data[iltOffsets[i]+uint32(j)*4:], val)
			binary.LittleEndian.PutUint32(data[iatOffsets[i]+uint32(j)*4:], val)

			if !fn.byOrdinal {
				off := funcNameOffsets[i][j]
				binary.LittleEndian.PutUint16(data[off:], 0)
				copy(data[off+2:], fn.name)
			}
		}

		copy(data[nameOffsets[i]:], imp.dllName)
	}

	return data, sectionRVA, numDesc * descSize
}

// buildDelayImportSection is buildImportSection's counterpart for the
// delay-load import directory: same ILT/IAT/hint-name/DLL-name layout, but
// descriptors carry the extra module-handle/bound/unload RVA fields and are
// marked with Attributes=1 (RVA-based, not the legacy VA-based form).
func buildDelayImportSection(imports []testImport, sectionRVA uint32) ([]byte, uint32, uint32) {
	descSize := uint32(binary.Size(ImageDelayImportDescriptor{}))
	numDesc := uint32(len(imports) + 1)
	cursor := numDesc * descSize

	iltOffsets := make([]uint32, len(imports))
	iatOffsets := make([]uint32, len(imports))
	nameOffsets := make([]uint32, len(imports))
	funcNameOffsets := make([][]uint32, len(imports))

	for i, imp := range imports {
		iltOffsets[i] = cursor
		cursor += uint32(len(imp.funcs)+1) * 4
	}
	for i, imp := range imports {
		iatOffsets[i] = cursor
		cursor += uint32(len(imp.funcs)+1) * 4
	}
	for i, imp := range imports {
		funcNameOffsets[i] = make([]uint32, len(imp.funcs))
		for j, fn := range imp.funcs {
			if fn.byOrdinal {
				continue
			}
			funcNameOffsets[i][j] = cursor
			entryLen := 2 + len(fn.name) + 1
			if entryLen%2 != 0 {
				entryLen++
			}
			cursor += uint32(entryLen)
		}
	}
	for i, imp := range imports {
		nameOffsets[i] = cursor
		cursor += uint32(len(imp.dllName) + 1)
	}

	data := make([]byte, cursor)

	for i, imp := range imports {
		desc := ImageDelayImportDescriptor{
			Attributes:            1,
			Name:                  sectionRVA + nameOffsets[i],
			ImportAddressTableRVA: sectionRVA + iatOffsets[i],
			ImportNameTableRVA:    sectionRVA + iltOffsets[i],
		}
		var b bytes.Buffer
		binary.Write(&b, binary.LittleEndian, desc)
		copy(data[uint32(i)*descSize:], b.Bytes())

		for j, fn := range imp.funcs {
			var val uint32
			if fn.byOrdinal {
				val = imageOrdinalFlag32 | uint32(fn.ordinal)
			} else {
				val = sectionRVA + funcNameOffsets[i][j]
			}
			binary.LittleEndian.PutUint32(data[iltOffsets[i]+uint32(j)*4:], val)
			binary.LittleEndian.PutUint32(data[iatOffsets[i]+uint32(j)*4:], val)

			if !fn.byOrdinal {
				off := funcNameOffsets[i][j]
				binary.LittleEndian.PutUint16(data[off:], 0)
				copy(data[off+2:], fn.name)
			}
		}

		copy(data[nameOffsets[i]:], imp.dllName)
	}

	return data, sectionRVA, numDesc * descSize
}

// testBoundImport describes one module entry in a synthetic bound import
// table built by buildBoundImportTable.
type testBoundImport struct {
	dllName  string
	forwards []string
}

// buildBoundImportTable lays out a bound import descriptor array followed by
// its forwarder-ref entries and DLL name strings, all offsets relative to the
// start of the table itself (matching parseBoundImportDirectory, which treats
// the data directory's VirtualAddress as a plain file offset rather than an
// RVA). It returns the table bytes.
func buildBoundImportTable(imports []testBoundImport) []byte {
	descSize := uint32(binary.Size(ImageBoundImportDescriptor{}))
	frwdSize := uint32(binary.Size(ImageBoundForwardedRef{}))

	numDesc := uint32(len(imports) + 1)
	cursor := numDesc * descSize
	for _, imp := range imports {
		cursor += uint32(len(imp.forwards)) * frwdSize
	}

	nameOffsets := make(map[string]uint16)
	for _, imp := range imports {
		if _, ok := nameOffsets[imp.dllName]; !ok {
			nameOffsets[imp.dllName] = uint16(cursor)
			cursor += uint32(len(imp.dllName) + 1)
		}
		for _, fwd := range imp.forwards {
			if _, ok := nameOffsets[fwd]; !ok {
				nameOffsets[fwd] = uint16(cursor)
				cursor += uint32(len(fwd) + 1)
			}
		}
	}

	data := make([]byte, cursor)
	descCursor := uint32(0)
	frwdCursor := numDesc * descSize

	for _, imp := range imports {
		desc := ImageBoundImportDescriptor{
			OffsetModuleName:            nameOffsets[imp.dllName],
			NumberOfModuleForwarderRefs: uint16(len(imp.forwards)),
		}
		var b bytes.Buffer
		binary.Write(&b, binary.LittleEndian, desc)
		copy(data[descCursor:], b.Bytes())
		descCursor += descSize

		for _, fwd := range imp.forwards {
			ref := ImageBoundForwardedRef{OffsetModuleName: nameOffsets[fwd]}
			var fb bytes.Buffer
			binary.Write(&fb, binary.LittleEndian, ref)
			copy(data[frwdCursor:], fb.Bytes())
			frwdCursor += frwdSize
		}

		copy(data[nameOffsets[imp.dllName]:], imp.dllName)
		for _, fwd := range imp.forwards {
			copy(data[nameOffsets[fwd]:], fwd)
		}
	}

	return data
}

// testExportFunc describes one named export in a synthetic export table
// built by buildExportSection. functionRVA is an opaque, non-dereferenced
// value stored verbatim in the functions array.
type testExportFunc struct {
	name        string
	functionRVA uint32
}

// buildExportSection lays out a complete export directory (header, parallel
// functions/names/ordinals arrays, name strings and the DLL name) at
// sectionRVA. Ordinals are assigned sequentially starting at base, matching
// funcs' order. It returns the section blob and the RVA/size to plug into
// the export data directory entry.
func buildExportSection(dllName string, base uint32, funcs []testExportFunc,
	sectionRVA uint32) ([]byte, uint32, uint32) {

	dirSize := uint32(binary.Size(ImageExportDirectory{}))
	funcCount := uint32(len(funcs))

	functionsOffset := dirSize
	namesOffset := functionsOffset + funcCount*4
	ordinalsOffset := namesOffset + funcCount*4
	cursor := ordinalsOffset + funcCount*2

	nameOffsets := make([]uint32, funcCount)
	for i, fn := range funcs {
		nameOffsets[i] = cursor
		cursor += uint32(len(fn.name) + 1)
	}
	dllNameOffset := cursor
	cursor += uint32(len(dllName) + 1)

	data := make([]byte, cursor)

	dir := ImageExportDirectory{
		Name:                  sectionRVA + dllNameOffset,
		Base:                  base,
		NumberOfFunctions:     funcCount,
		NumberOfNames:         funcCount,
		AddressOfFunctions:    sectionRVA + functionsOffset,
		AddressOfNames:        sectionRVA + namesOffset,
		AddressOfNameOrdinals: sectionRVA + ordinalsOffset,
	}
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, dir)
	copy(data[0:], b.Bytes())

	for i, fn := range funcs {
		binary.LittleEndian.PutUint32(data[functionsOffset+uint32(i)*4:], fn.functionRVA)
		binary.LittleEndian.PutUint32(data[namesOffset+uint32(i)*4:], sectionRVA+nameOffsets[i])
		binary.LittleEndian.PutUint16(data[ordinalsOffset+uint32(i)*2:], uint16(i))
		copy(data[nameOffsets[i]:], fn.name)
	}
	copy(data[dllNameOffset:], dllName)

	return data, sectionRVA, dirSize
}
