// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"
)

// buildResourceTree assembles a minimal 3-level resource directory
// (type -> name -> language, the same shape Windows PE resources use) with
// a single leaf data entry, laid out sequentially so every offset written
// into a parent entry can be computed from what has already been written.
func buildResourceTree() (data []byte, rawDataRVA, leafEntryOffset uint32, rawData []byte) {
	const sectionRVA = 0x4000
	dirSize := uint32(binary.Size(ImageResourceDirectory{}))
	entrySize := uint32(binary.Size(ImageResourceDirectoryEntry{}))
	dataEntrySize := uint32(binary.Size(ImageResourceDataEntry{}))

	l1Off := uint32(0)
	l1EntriesOff := l1Off + dirSize
	l2Off := l1EntriesOff + entrySize
	l2EntriesOff := l2Off + dirSize
	l3Off := l2EntriesOff + entrySize
	l3EntriesOff := l3Off + dirSize
	dataEntryOff := l3EntriesOff + entrySize
	rawDataOff := dataEntryOff + dataEntrySize

	rawData = bytes.Repeat([]byte{0xAB}, 0x20)
	rawDataRVA = sectionRVA + rawDataOff

	writeDir := func(buf *bytes.Buffer, numIDEntries uint16) {
		binary.Write(buf, binary.LittleEndian, ImageResourceDirectory{NumberOfIDEntries: numIDEntries})
	}
	writeEntry := func(buf *bytes.Buffer, name, offsetToData uint32) {
		binary.Write(buf, binary.LittleEndian, ImageResourceDirectoryEntry{Name: name, OffsetToData: offsetToData})
	}

	var buf bytes.Buffer
	writeDir(&buf, 1)                                  // L1 header (root)
	writeEntry(&buf, uint32(RTIcon), 0x80000000|l2Off)  // L1 entry -> L2 dir
	writeDir(&buf, 1)                                   // L2 header (name)
	writeEntry(&buf, 1, 0x80000000|l3Off)               // L2 entry -> L3 dir
	writeDir(&buf, 1)                                   // L3 header (language)
	writeEntry(&buf, 0x109, dataEntryOff)                // L3 entry -> leaf data (lang=9, sublang=1)
	binary.Write(&buf, binary.LittleEndian, ImageResourceDataEntry{
		OffsetToData: rawDataRVA,
		Size:         uint32(len(rawData)),
	})
	buf.Write(rawData)

	return buf.Bytes(), rawDataRVA, dataEntryOff, rawData
}

func TestParseResourceDirectory(t *testing.T) {
	const sectionRVA = 0x4000
	rsrcData, rawDataRVA, leafEntryOffset, rawData := buildResourceTree()

	var dataDirs [16]DataDirectory
	dataDirs[ImageDirectoryEntryResource] = DataDirectory{VirtualAddress: sectionRVA, Size: uint32(len(rsrcData))}

	data, _ := buildPE32([]testSection{
		{name: ".rsrc", virtualSize: uint32(len(rsrcData)), virtualAddress: sectionRVA,
			data: rsrcData, characteristics: 0x40000040},
	}, dataDirs)

	file, err := NewBytes(data, &Options{})
	if err != nil {
		t.Fatalf("NewBytes failed, reason: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed, reason: %v", err)
	}

	rsrc := file.Resources
	wantL1 := ImageResourceDirectory{NumberOfIDEntries: 1}
	if rsrc.Struct != wantL1 {
		t.Fatalf("level 1 resource directory assertion failed, got %v, want %v", rsrc.Struct, wantL1)
	}
	if len(rsrc.Entries) != 1 {
		t.Fatalf("level 1 entry count assertion failed, got %v, want %v", len(rsrc.Entries), 1)
	}
	if rsrc.Entries[0].ID != uint32(RTIcon) || !rsrc.Entries[0].IsResourceDir {
		t.Fatalf("level 1 entry assertion failed, got %+v", rsrc.Entries[0])
	}

	level2 := rsrc.Entries[0].Directory
	wantL2 := ImageResourceDirectory{NumberOfIDEntries: 1}
	if level2.Struct != wantL2 {
		t.Fatalf("level 2 resource directory assertion failed, got %v, want %v", level2.Struct, wantL2)
	}
	if level2.Entries[0].ID != 1 || !level2.Entries[0].IsResourceDir {
		t.Fatalf("level 2 entry assertion failed, got %+v", level2.Entries[0])
	}

	level3 := level2.Entries[0].Directory
	wantL3 := ImageResourceDirectory{NumberOfIDEntries: 1}
	if level3.Struct != wantL3 {
		t.Fatalf("level 3 resource directory assertion failed, got %v, want %v", level3.Struct, wantL3)
	}

	leaf := level3.Entries[0]
	wantLeaf := ResourceDirectoryEntry{
		Struct:        ImageResourceDirectoryEntry{Name: 0x109, OffsetToData: leafEntryOffset},
		ID:            0x109,
		IsResourceDir: false,
		Data: ResourceDataEntry{
			Lang:    0x9,
			SubLang: 0x1,
			Struct: ImageResourceDataEntry{
				OffsetToData: rawDataRVA,
				Size:         uint32(len(rawData)),
			},
		},
	}
	if !reflect.DeepEqual(leaf, wantLeaf) {
		t.Fatalf("leaf resource directory entry assertion failed, got %+v, want %+v", leaf, wantLeaf)
	}
}

func TestResourceTypeString(t *testing.T) {

	tests := []struct {
		in  ResourceType
		out string
	}{
		{
			RTCursor,
			"Cursor",
		},
		{
			ResourceType(0xff),
			"?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {

			rsrcTypeString := tt.in.String()
			if rsrcTypeString != tt.out {
				t.Fatalf("resource type string conversion failed, got %v, want %v",
					rsrcTypeString, tt.out)
			}
		})
	}
}

func TestResourceLangString(t *testing.T) {

	tests := []struct {
		in  ResourceLang
		out string
	}{
		{

			LangArabic,
			"Arabic (ar)",
		},
		{
			ResourceLang(0xffff),
			"?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {

			rsrcLangString := tt.in.String()
			if rsrcLangString != tt.out {
				t.Fatalf("resource language string conversion failed, got %v, want %v",
					rsrcLangString, tt.out)
			}
		})
	}
}

func TestResourceSubLangString(t *testing.T) {

	tests := []struct {
		in  ResourceSubLang
		out string
	}{
		{

			SubLangArabicMorocco,
			"Arabic Morocco (ar-MA)",
		},
		{
			ResourceSubLang(0xffff),
			"?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {

			rsrcSubLangString := tt.in.String()
			if rsrcSubLangString != tt.out {
				t.Fatalf("resource sub-language string conversion failed, got %v, want %v",
					rsrcSubLangString, tt.out)
			}
		})
	}
}

func TestPrettyResourceLang(t *testing.T) {

	type resourceLang struct {
		lang    ResourceLang
		subLang int
	}

	tests := []struct {
		in  resourceLang
		out string
	}{
		{
			resourceLang{
				lang:    LangEnglish,
				subLang: 0x1,
			},
			"English United States (en-US)",
		},
		{
			resourceLang{
				lang:    ResourceLang(0xff),
				subLang: 0x1,
			},
			"?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {

			prettyRsrcLang := PrettyResourceLang(tt.in.lang, tt.in.subLang)
			if prettyRsrcLang != tt.out {
				t.Fatalf("pretty resource language failed, got %v, want %v",
					prettyRsrcLang, tt.out)
			}
		})
	}
}
