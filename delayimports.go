// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "encoding/binary"

// ImageDelayImportDescriptor describes a delay-load import directory entry,
// the PE32/PE32+ equivalent of ImageImportDescriptor for DLLs that are only
// loaded on first use of one of their exports.
type ImageDelayImportDescriptor struct {
	// 1 when the descriptor's addresses are RVAs; 0 marks the older
	// VA-based form.
	Attributes uint32 `json:"attributes"`

	// RVA of the delay-load DLL name, an ASCIIZ string.
	Name uint32 `json:"name"`

	// RVA of the module handle (in the data section), used to store the
	// handle of the DLL once it is loaded.
	ModuleHandleRVA uint32 `json:"module_handle_rva"`

	// RVA of the delay-load import address table.
	ImportAddressTableRVA uint32 `json:"import_address_table_rva"`

	// RVA of the delay-load name table, in the same layout as the ILT.
	ImportNameTableRVA uint32 `json:"import_name_table_rva"`

	// RVA of the bound delay-load address table, or zero if unbound.
	BoundImportAddressTableRVA uint32 `json:"bound_import_address_table_rva"`

	// RVA of the unload delay-load address table, or zero if no unload
	// record is available.
	UnloadInformationTableRVA uint32 `json:"unload_information_table_rva"`

	// Timestamp the image was bound, if bound.
	TimeDateStamp uint32 `json:"time_date_stamp"`
}

// DelayImport represents a single delay-load import directory entry and the
// functions resolved through it.
type DelayImport struct {
	Offset     uint32                      `json:"offset"`
	Name       string                      `json:"name"`
	Functions  []ImportFunction            `json:"functions"`
	Descriptor ImageDelayImportDescriptor  `json:"descriptor"`
}

// parseDelayImportDirectory parses the delay-load import directory, an array
// of ImageDelayImportDescriptor terminated by a zeroed entry, mirroring
// parseImportDirectory but resolving thunks through the name/address table
// RVAs instead of the original-first-thunk/first-thunk pair.
func (pe *File) parseDelayImportDirectory(rva, size uint32) error {

	for {
		delayDesc := ImageDelayImportDescriptor{}
		fileOffset := pe.GetOffsetFromRva(rva)
		delayDescSize := uint32(binary.Size(delayDesc))
		err := pe.structUnpack(&delayDesc, fileOffset, delayDescSize)
		if err != nil {
			return err
		}

		if delayDesc == (ImageDelayImportDescriptor{}) {
			break
		}

		rva += delayDescSize

		maxLen := uint32(len(pe.data)) - fileOffset
		if rva > delayDesc.ImportNameTableRVA || rva > delayDesc.ImportAddressTableRVA {
			if rva < delayDesc.ImportNameTableRVA {
				maxLen = rva - delayDesc.ImportAddressTableRVA
			} else if rva < delayDesc.ImportAddressTableRVA {
				maxLen = rva - delayDesc.ImportNameTableRVA
			} else {
				maxLen = Max(rva-delayDesc.ImportNameTableRVA,
					rva-delayDesc.ImportAddressTableRVA)
			}
		}

		var importedFunctions []ImportFunction
		if pe.Is64 {
			importedFunctions, err = pe.parseImports64(&delayDesc, maxLen)
		} else {
			importedFunctions, err = pe.parseImports32(&delayDesc, maxLen)
		}
		if err != nil {
			return err
		}

		dllName := pe.getStringAtRVA(delayDesc.Name, maxDllLength)
		if !IsValidDosFilename(dllName) {
			dllName = "*invalid*"
			continue
		}

		pe.DelayImports = append(pe.DelayImports, DelayImport{
			Offset:     fileOffset,
			Name:       string(dllName),
			Functions:  importedFunctions,
			Descriptor: delayDesc,
		})
	}

	return nil
}
