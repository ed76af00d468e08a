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

var debugDirSize = uint32(binary.Size(ImageDebugDirectory{}))

// newDebugDirFile builds a minimal in-memory file holding a single debug
// directory entry, immediately followed by payload, at file offset 0.
func newDebugDirFile(t *testing.T, dir ImageDebugDirectory, payload []byte) *File {
	t.Helper()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, dir); err != nil {
		t.Fatalf("failed to encode debug directory: %v", err)
	}
	buf.Write(payload)
	// slack so fixed-width field reads near the tail never run out of bounds.
	buf.Write(make([]byte, 128))

	file, err := NewBytes(buf.Bytes(), &Options{})
	if err != nil {
		t.Fatalf("NewBytes failed, reason: %v", err)
	}
	return file
}

func TestDebugDirectoryCodeViewPDB70(t *testing.T) {
	const pdbName = "synthetic.pdb"
	guid := GUID{Data1: 0xdbe09e71, Data2: 0xb370, Data3: 0x9cb7,
		Data4: [8]byte{34, 197, 94, 85, 115, 250, 123, 225}}

	var payload bytes.Buffer
	binary.Write(&payload, binary.LittleEndian, uint32(CVSignatureRSDS))
	binary.Write(&payload, binary.LittleEndian, guid)
	binary.Write(&payload, binary.LittleEndian, uint32(1)) // age
	payload.WriteString(pdbName)
	payload.WriteByte(0)

	dir := ImageDebugDirectory{
		Type:             ImageDebugTypeCodeView,
		SizeOfData:       24 + uint32(len(pdbName)) + 1,
		PointerToRawData: debugDirSize,
	}

	file := newDebugDirFile(t, dir, payload.Bytes())
	if err := file.parseDebugDirectory(0, debugDirSize); err != nil {
		t.Fatalf("parseDebugDirectory failed, reason: %v", err)
	}

	if len(file.Debugs) != 1 {
		t.Fatalf("debug entry count assertion failed, got %v, want %v", len(file.Debugs), 1)
	}

	entry := file.Debugs[0]
	want := DebugEntry{
		Struct: dir,
		Info: CVInfoPDB70{
			CVSignature: CVSignatureRSDS,
			Signature:   guid,
			Age:         1,
			PDBFileName: pdbName,
		},
		Type: "CodeView",
	}
	if !reflect.DeepEqual(entry, want) {
		t.Fatalf("debug entry assertion failed, got %+v, want %+v", entry, want)
	}

	cvSignature := entry.Info.(CVInfoPDB70).CVSignature.String()
	if cvSignature != "RSDS" {
		t.Errorf("CV signature string assertion failed, got %v, want %v", cvSignature, "RSDS")
	}
}

func TestDebugDirectoryCodeViewPDB20(t *testing.T) {
	const pdbName = "legacy.pdb"

	var payload bytes.Buffer
	binary.Write(&payload, binary.LittleEndian, uint32(CVSignatureNB10))
	binary.Write(&payload, binary.LittleEndian, uint32(0)) // cv header offset
	binary.Write(&payload, binary.LittleEndian, uint32(0x3b7d84d4))
	binary.Write(&payload, binary.LittleEndian, uint32(1)) // age
	payload.WriteString(pdbName)
	payload.WriteByte(0)

	dir := ImageDebugDirectory{
		Type:             ImageDebugTypeCodeView,
		SizeOfData:       16 + uint32(len(pdbName)) + 1,
		PointerToRawData: debugDirSize,
	}

	file := newDebugDirFile(t, dir, payload.Bytes())
	if err := file.parseDebugDirectory(0, debugDirSize); err != nil {
		t.Fatalf("parseDebugDirectory failed, reason: %v", err)
	}

	entry := file.Debugs[0]
	want := DebugEntry{
		Struct: dir,
		Info: CVInfoPDB20{
			CVHeader:    CVHeader{Signature: CVSignatureNB10, Offset: 0},
			Signature:   0x3b7d84d4,
			Age:         1,
			PDBFileName: pdbName,
		},
		Type: "CodeView",
	}
	if !reflect.DeepEqual(entry, want) {
		t.Fatalf("debug entry assertion failed, got %+v, want %+v", entry, want)
	}

	cvSignature := entry.Info.(CVInfoPDB20).CVHeader.Signature.String()
	if cvSignature != "NB10" {
		t.Errorf("CV signature string assertion failed, got %v, want %v", cvSignature, "NB10")
	}
}

func TestDebugDirectoryPOGO(t *testing.T) {
	const name = "Alpha"
	const rva, size = 0x1000, 0x280

	var payload bytes.Buffer
	binary.Write(&payload, binary.LittleEndian, uint32(POGOTypePGU))
	binary.Write(&payload, binary.LittleEndian, uint32(rva))
	binary.Write(&payload, binary.LittleEndian, uint32(size))
	payload.WriteString(name)

	offsetAfterName := uint32(payload.Len())
	padding := 4 - (offsetAfterName % 4)
	payload.Write(make([]byte, padding))

	dir := ImageDebugDirectory{
		Type:             ImageDebugTypePOGO,
		SizeOfData:       uint32(payload.Len()),
		PointerToRawData: debugDirSize,
	}

	file := newDebugDirFile(t, dir, payload.Bytes())
	if err := file.parseDebugDirectory(0, debugDirSize); err != nil {
		t.Fatalf("parseDebugDirectory failed, reason: %v", err)
	}

	entry := file.Debugs[0]
	if entry.Type != "POGO" {
		t.Fatalf("debug type assertion failed, got %v, want %v", entry.Type, "POGO")
	}

	pogo := entry.Info.(POGO)
	if len(pogo.Entries) != 1 {
		t.Fatalf("pogo entries count assertion failed, got %v, want %v", len(pogo.Entries), 1)
	}

	want := ImagePGOItem{RVA: rva, Size: size, Name: name}
	if pogo.Entries[0] != want {
		t.Errorf("pogo entry assertion failed, got %+v, want %+v", pogo.Entries[0], want)
	}
	if got := pogo.Signature.String(); got != "PGU" {
		t.Errorf("pogo signature string assertion failed, got %v, want %v", got, "PGU")
	}
}

func TestDebugDirectoryREPRO(t *testing.T) {
	hash := []byte{
		113, 158, 224, 219, 112, 179, 183, 156, 34, 197, 94, 85, 115, 250, 123, 225,
		130, 247, 187, 89, 220, 154, 207, 99, 80, 113, 179, 171, 196, 105, 179, 56,
	}

	var payload bytes.Buffer
	binary.Write(&payload, binary.LittleEndian, uint32(len(hash)))
	payload.Write(hash)

	dir := ImageDebugDirectory{
		Type:             ImageDebugTypeRepro,
		SizeOfData:       4 + uint32(len(hash)),
		PointerToRawData: debugDirSize,
	}

	file := newDebugDirFile(t, dir, payload.Bytes())
	if err := file.parseDebugDirectory(0, debugDirSize); err != nil {
		t.Fatalf("parseDebugDirectory failed, reason: %v", err)
	}

	entry := file.Debugs[0]
	want := DebugEntry{
		Struct: dir,
		Info:   REPRO{Size: uint32(len(hash)), Hash: hash},
		Type:   "REPRO",
	}
	if !reflect.DeepEqual(entry, want) {
		t.Fatalf("debug entry assertion failed, got %+v, want %+v", entry, want)
	}
}

func TestDebugDirectoryExDLLCharacteristics(t *testing.T) {
	var payload bytes.Buffer
	binary.Write(&payload, binary.LittleEndian, uint32(ImageDllCharacteristicsExCETCompat))

	dir := ImageDebugDirectory{
		Type:             ImageDebugTypeExDllCharacteristics,
		SizeOfData:       4,
		PointerToRawData: debugDirSize,
	}

	file := newDebugDirFile(t, dir, payload.Bytes())
	if err := file.parseDebugDirectory(0, debugDirSize); err != nil {
		t.Fatalf("parseDebugDirectory failed, reason: %v", err)
	}

	entry := file.Debugs[0]
	want := DebugEntry{
		Struct: dir,
		Info:   DllCharacteristicsExType(ImageDllCharacteristicsExCETCompat),
		Type:   "Ex.DLL Characteristics",
	}
	if !reflect.DeepEqual(entry, want) {
		t.Fatalf("debug entry assertion failed, got %+v, want %+v", entry, want)
	}

	got := entry.Info.(DllCharacteristicsExType).String()
	if got != "CET Compatible" {
		t.Errorf("DllCharacteristicsEx string assertion failed, got %v, want %v", got, "CET Compatible")
	}
}

func TestDebugDirectoryVCFeature(t *testing.T) {
	vcf := VCFeature{PreVC11: 0xa, CCpp: 0x115, Gs: 0xe4, Sdl: 0x0, GuardN: 0x115}

	var payload bytes.Buffer
	binary.Write(&payload, binary.LittleEndian, vcf)

	dir := ImageDebugDirectory{
		Type:             ImageDebugTypeVCFeature,
		SizeOfData:       uint32(binary.Size(vcf)),
		PointerToRawData: debugDirSize,
	}

	file := newDebugDirFile(t, dir, payload.Bytes())
	if err := file.parseDebugDirectory(0, debugDirSize); err != nil {
		t.Fatalf("parseDebugDirectory failed, reason: %v", err)
	}

	entry := file.Debugs[0]
	want := DebugEntry{Struct: dir, Info: vcf, Type: "VC Feature"}
	if !reflect.DeepEqual(entry, want) {
		t.Fatalf("debug entry assertion failed, got %+v, want %+v", entry, want)
	}
}

func encodeFPOEntry(buf *bytes.Buffer, fpo FPOData) {
	binary.Write(buf, binary.LittleEndian, fpo.OffsetStart)
	binary.Write(buf, binary.LittleEndian, fpo.ProcSize)
	binary.Write(buf, binary.LittleEndian, fpo.NumLocals)
	binary.Write(buf, binary.LittleEndian, fpo.ParamsSize)
	buf.WriteByte(fpo.PrologLength)
	attributes := fpo.SavedRegsCount&0x7 |
		fpo.HasSEH<<3 |
		fpo.UseBP<<4 |
		fpo.Reserved<<5 |
		uint8(fpo.FrameType)<<6
	buf.WriteByte(attributes)
}

func TestDebugDirectoryFPO(t *testing.T) {
	entries := []FPOData{
		{OffsetStart: 0x1bc0, ProcSize: 0x22},
		{
			OffsetStart: 0x1c26, ProcSize: 0x267, NumLocals: 0x104, ParamsSize: 0x1,
			PrologLength: 0x16, SavedRegsCount: 0x3, UseBP: 0x1, FrameType: FPOFrameType(3),
		},
	}

	var payload bytes.Buffer
	for _, e := range entries {
		encodeFPOEntry(&payload, e)
	}

	dir := ImageDebugDirectory{
		Type:             ImageDebugTypeFPO,
		SizeOfData:       uint32(payload.Len()),
		PointerToRawData: debugDirSize,
	}

	file := newDebugDirFile(t, dir, payload.Bytes())
	if err := file.parseDebugDirectory(0, debugDirSize); err != nil {
		t.Fatalf("parseDebugDirectory failed, reason: %v", err)
	}

	entry := file.Debugs[0]
	if entry.Type != "FPO" {
		t.Fatalf("debug type assertion failed, got %v, want %v", entry.Type, "FPO")
	}

	fpo := entry.Info.([]FPOData)
	if len(fpo) != len(entries) {
		t.Fatalf("fpo entries count assertion failed, got %v, want %v", len(fpo), len(entries))
	}
	if fpo[0] != entries[0] {
		t.Errorf("first fpo entry assertion failed, got %+v, want %+v", fpo[0], entries[0])
	}
	if fpo[1] != entries[1] {
		t.Errorf("second fpo entry assertion failed, got %+v, want %+v", fpo[1], entries[1])
	}

	if got := fpo[0].FrameType.String(); got != "FPO" {
		t.Errorf("first fpo frame type string assertion failed, got %v, want %v", got, "FPO")
	}
	if got := fpo[1].FrameType.String(); got != "Non FPO" {
		t.Errorf("second fpo frame type string assertion failed, got %v, want %v", got, "Non FPO")
	}
}

func TestDebugSectionAttributes(t *testing.T) {
	tests := []struct {
		in  string
		out string
	}{
		{".00cfg", "CFG Check Functions Pointers"},
		{"__undefined__", ""},
	}

	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {
			secAttrString := SectionAttributeDescription(tt.in)
			if secAttrString != tt.out {
				t.Fatalf("debug section attributes description failed, got %v, want %v",
					secAttrString, tt.out)
			}
		})
	}
}
