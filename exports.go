// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "encoding/binary"

const maxExportNameLength = 0x200

// ImageExportDirectory represents the IMAGE_EXPORT_DIRECTORY, the header of
// the export data directory. It is followed by three parallel arrays:
// addresses of functions, addresses of names and name ordinals.
type ImageExportDirectory struct {
	Characteristics       uint32 `json:"characteristics"`
	TimeDateStamp         uint32 `json:"time_date_stamp"`
	MajorVersion          uint16 `json:"major_version"`
	MinorVersion          uint16 `json:"minor_version"`
	Name                  uint32 `json:"name"`
	Base                  uint32 `json:"base"`
	NumberOfFunctions     uint32 `json:"number_of_functions"`
	NumberOfNames         uint32 `json:"number_of_names"`
	AddressOfFunctions    uint32 `json:"address_of_functions"`
	AddressOfNames        uint32 `json:"address_of_names"`
	AddressOfNameOrdinals uint32 `json:"address_of_name_ordinals"`
}

// ExportFunction represents a single exported symbol, resolved by ordinal
// and, when present, by name. Forwarder is set when the function's RVA
// points back into the export directory itself, meaning the export is
// actually implemented by another module.
type ExportFunction struct {
	// Export ordinal, biased by the directory's Base field.
	Ordinal uint32 `json:"ordinal"`

	// RVA of the exported symbol, or, when Forwarder is non-empty, the RVA
	// of the forwarder string itself.
	FunctionRVA uint32 `json:"function_rva"`

	// RVA of the export name, zero if the function is exported by ordinal
	// only.
	NameRVA uint32 `json:"name_rva"`

	// Export name, empty if exported by ordinal only.
	Name string `json:"name"`

	// Forwarder target, formatted as "DLLNAME.FunctionName", non-empty only
	// when this export is forwarded to another module.
	Forwarder string `json:"forwarder"`

	// RVA the forwarder string was read from.
	ForwarderRVA uint32 `json:"forwarder_rva"`
}

// Export groups the export directory header with the resolved function
// list.
type Export struct {
	Struct    ImageExportDirectory `json:"struct"`
	Functions []ExportFunction     `json:"functions"`
}

// parseExportDirectory parses the export data directory. The directory
// header is followed by an array of function RVAs indexed by ordinal minus
// Base, an array of name RVAs and a parallel array of name-to-ordinal
// mappings used to resolve a name to its function slot.
func (pe *File) parseExportDirectory(rva, size uint32) error {

	exportDir := ImageExportDirectory{}
	fileOffset := pe.GetOffsetFromRva(rva)
	exportDirSize := uint32(binary.Size(exportDir))
	err := pe.structUnpack(&exportDir, fileOffset, exportDirSize)
	if err != nil {
		return err
	}

	// slots is indexed by position in AddressOfFunctions (0..NumberOfFunctions-1),
	// not by the final Functions slice position, since AddressOfNameOrdinals
	// refers to that same position and a slot may have no function (RVA 0).
	slots := make([]ExportFunction, exportDir.NumberOfFunctions)
	present := make([]bool, exportDir.NumberOfFunctions)

	for i := uint32(0); i < exportDir.NumberOfFunctions; i++ {
		entryOffset := pe.GetOffsetFromRva(exportDir.AddressOfFunctions + i*4)
		functionRVA, err := pe.ReadUint32(entryOffset)
		if err != nil {
			break
		}
		if functionRVA == 0 {
			continue
		}

		exp := ExportFunction{
			Ordinal:     exportDir.Base + i,
			FunctionRVA: functionRVA,
		}

		// A forwarder's RVA lies within the export directory's own span:
		// the entry does not point at code but at an ASCII string naming
		// the module and symbol the export is forwarded to.
		if functionRVA >= rva && functionRVA < rva+size {
			exp.ForwarderRVA = functionRVA
			exp.Forwarder = pe.getStringAtRVA(functionRVA, maxExportNameLength)
		}

		slots[i] = exp
		present[i] = true
	}

	// Resolve names: AddressOfNames/AddressOfNameOrdinals are parallel
	// arrays, the ordinal array giving the slot index for the name at the
	// same position.
	for i := uint32(0); i < exportDir.NumberOfNames; i++ {
		nameRVAOffset := pe.GetOffsetFromRva(exportDir.AddressOfNames + i*4)
		nameRVA, err := pe.ReadUint32(nameRVAOffset)
		if err != nil {
			break
		}

		ordinalOffset := pe.GetOffsetFromRva(exportDir.AddressOfNameOrdinals + i*2)
		slotIndex, err := pe.ReadUint16(ordinalOffset)
		if err != nil {
			break
		}

		if uint32(slotIndex) >= uint32(len(slots)) || !present[slotIndex] {
			continue
		}

		name := pe.getStringAtRVA(nameRVA, maxExportNameLength)
		if !IsValidFunctionName(name) {
			continue
		}

		slots[slotIndex].NameRVA = nameRVA
		slots[slotIndex].Name = name
	}

	functions := make([]ExportFunction, 0, exportDir.NumberOfFunctions)
	for i, ok := range present {
		if ok {
			functions = append(functions, slots[i])
		}
	}

	pe.Export = Export{
		Struct:    exportDir,
		Functions: functions,
	}

	return nil
}
