// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"testing"
)

func TestGetAnomalies(t *testing.T) {

	data, _ := buildPE32([]testSection{
		{
			name:            ".text",
			virtualSize:     0x100,
			virtualAddress:  0x1000,
			data:            make([]byte, 0x100),
			characteristics: 0x60000020,
		},
	}, [16]DataDirectory{})

	file, err := NewBytes(data, &Options{})
	if err != nil {
		t.Fatalf("NewBytes failed, reason: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed, reason: %v", err)
	}

	want := []string{AnoAddressOfEntryPointNull, AnoMajorSubsystemVersion}
	for _, ano := range want {
		if !stringInSlice(ano, file.Anomalies) {
			t.Errorf("anomaly(%s) not found in anomalies, got: %v", ano, file.Anomalies)
		}
	}
}

func TestGetAnomaliesReservedDataDirectoryEntry(t *testing.T) {

	var dataDirs [16]DataDirectory
	dataDirs[ImageDirectoryEntryReserved] = DataDirectory{VirtualAddress: 0x1000, Size: 0x10}

	data, _ := buildPE32([]testSection{
		{
			name:            ".text",
			virtualSize:     0x100,
			virtualAddress:  0x1000,
			data:            make([]byte, 0x100),
			characteristics: 0x60000020,
		},
	}, dataDirs)

	file, err := NewBytes(data, &Options{})
	if err != nil {
		t.Fatalf("NewBytes failed, reason: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse failed, reason: %v", err)
	}

	if !stringInSlice(AnoReservedDataDirectoryEntry, file.Anomalies) {
		t.Errorf("expected %s in anomalies, got: %v", AnoReservedDataDirectoryEntry, file.Anomalies)
	}
}
