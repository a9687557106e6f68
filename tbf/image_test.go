/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package tbf_test

import (
	"encoding/binary"
	"testing"

	"tockos.org/tab/elf"
	"tockos.org/tab/internal/testelf"
	"tockos.org/tab/tbf"
)

func buildPicElf(t *testing.T) *elf.File {
	t.Helper()
	raw := testelf.Build(t, testelf.Spec{
		Entry: 0x80000000,
		Sections: []testelf.SectionSpec{
			{
				Name:  ".text",
				Type:  testelf.Progbits,
				Flags: testelf.FlagAlloc | testelf.FlagExec,
				Addr:  0x80000000,
				Data:  make([]byte, 16),
			},
		},
	})
	f, err := elf.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %s", err)
	}
	return f
}

// checksumZero reports whether the XOR of every 32-bit little-endian word
// of header is zero, the invariant spec.md §8 requires of every finished
// TBF header.
func checksumZero(t *testing.T, header []byte) bool {
	t.Helper()
	if len(header)%4 != 0 {
		t.Fatalf("header length %d is not a multiple of 4", len(header))
	}
	var sum uint32
	for i := 0; i+4 <= len(header); i += 4 {
		sum ^= binary.LittleEndian.Uint32(header[i : i+4])
	}
	return sum == 0
}

func TestMinimalPicApp(t *testing.T) {
	ef := buildPicElf(t)

	img, err := tbf.Build(ef, tbf.Options{})
	if err != nil {
		t.Fatalf("Build: %s", err)
	}

	if img.HeaderLength() != 32 {
		t.Errorf("header_length = %d, want 32", img.HeaderLength())
	}
	if img.ProtectedRegionSize != 32 {
		t.Errorf("protected_region_size = %d, want 32", img.ProtectedRegionSize)
	}

	prefix, err := img.PrefixForFooterSize(0)
	if err != nil {
		t.Fatalf("PrefixForFooterSize: %s", err)
	}

	wantTotal := 48
	if len(prefix) != wantTotal {
		t.Errorf("total_size = %d, want %d", len(prefix), wantTotal)
	}

	totalSize := binary.LittleEndian.Uint32(prefix[4:8])
	if int(totalSize) != wantTotal {
		t.Errorf("declared total_size = %d, want %d", totalSize, wantTotal)
	}

	if !checksumZero(t, prefix[:img.HeaderLength()]) {
		t.Errorf("header checksum is not zero")
	}

	// Binary bytes must sit immediately at protected_region_size.
	binaryAt := prefix[img.ProtectedRegionSize:]
	if len(binaryAt) != 16 {
		t.Errorf("binary length at offset %d = %d, want 16", img.ProtectedRegionSize, len(binaryAt))
	}
}

// buildFixedFlashElf returns a single-section ELF loaded at vaddr, which
// (being != 0x80000000) makes the app fixed-flash and therefore exercises
// the FixedAddresses TLV and the §4.3 alignment procedure.
func buildFixedFlashElf(t *testing.T, vaddr uint32) *elf.File {
	t.Helper()
	raw := testelf.Build(t, testelf.Spec{
		Entry: vaddr,
		Sections: []testelf.SectionSpec{
			{
				Name:  ".text",
				Type:  testelf.Progbits,
				Flags: testelf.FlagAlloc | testelf.FlagExec,
				Addr:  vaddr,
				Data:  make([]byte, 16),
			},
		},
	})
	ef, err := elf.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %s", err)
	}
	return ef
}

// TestFixedFlashAlignment exercises §4.3 step 3's "target >= header_length"
// branch: load address 0x30040040 has (vaddr mod 256) == 0x40, which here
// already exceeds the Main+FixedAddresses header length, so
// protected_region_size lands exactly on that target.
func TestFixedFlashAlignment(t *testing.T) {
	ef := buildFixedFlashElf(t, 0x30040040)

	img, err := tbf.Build(ef, tbf.Options{})
	if err != nil {
		t.Fatalf("Build: %s", err)
	}

	if img.ProtectedRegionSize != 0x40 {
		t.Errorf("protected_region_size = 0x%x, want 0x40", img.ProtectedRegionSize)
	}
	if img.ProtectedRegionSize < img.HeaderLength() {
		t.Fatalf("protected_region_size %d < header_length %d", img.ProtectedRegionSize, img.HeaderLength())
	}

	prefix, err := img.PrefixForFooterSize(0)
	if err != nil {
		t.Fatalf("PrefixForFooterSize: %s", err)
	}
	wantTotal := 0x40 + 16
	if len(prefix) != wantTotal {
		t.Errorf("total_size = 0x%x, want 0x%x", len(prefix), wantTotal)
	}
	if !checksumZero(t, prefix[:img.HeaderLength()]) {
		t.Errorf("header checksum is not zero")
	}
}

// TestFixedFlashAlignmentZeroTarget exercises §4.3 step 3's `target == 0`
// branch: a load address that's already 256-aligned needs no more than
// 4-byte rounding of the header length.
func TestFixedFlashAlignmentZeroTarget(t *testing.T) {
	ef := buildFixedFlashElf(t, 0x30040000)

	img, err := tbf.Build(ef, tbf.Options{})
	if err != nil {
		t.Fatalf("Build: %s", err)
	}

	if img.ProtectedRegionSize != img.HeaderLength() {
		t.Errorf("protected_region_size = %d, want header_length %d", img.ProtectedRegionSize, img.HeaderLength())
	}
}

// TestFixedFlashAlignmentWraps exercises §4.3 step 3's `target < header_length`
// branch, where the target must be pushed forward by whole 256-byte steps.
func TestFixedFlashAlignmentWraps(t *testing.T) {
	ef := buildFixedFlashElf(t, 0x30040004)

	img, err := tbf.Build(ef, tbf.Options{})
	if err != nil {
		t.Fatalf("Build: %s", err)
	}

	if img.ProtectedRegionSize%256 != 4 {
		t.Errorf("protected_region_size = %d, want ≡ 4 (mod 256)", img.ProtectedRegionSize)
	}
	if img.ProtectedRegionSize < img.HeaderLength() {
		t.Fatalf("protected_region_size %d < header_length %d", img.ProtectedRegionSize, img.HeaderLength())
	}
}

func TestWriteableFlashRegion(t *testing.T) {
	raw := testelf.Build(t, testelf.Spec{
		Entry: 0x80000000,
		Sections: []testelf.SectionSpec{
			{
				Name:  ".text",
				Type:  testelf.Progbits,
				Flags: testelf.FlagAlloc | testelf.FlagExec,
				Addr:  0x80000000,
				Data:  make([]byte, 128),
			},
			{
				Name:  ".wfr.storage",
				Type:  testelf.Progbits,
				Flags: testelf.FlagAlloc | testelf.FlagWrite,
				Addr:  0x80000080,
				Data:  make([]byte, 256),
			},
		},
	})
	ef, err := elf.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %s", err)
	}

	layout, err := tbf.Assemble(ef, tbf.Options{})
	if err != nil {
		t.Fatalf("Assemble: %s", err)
	}

	if len(layout.WriteableFlashRegions) != 1 {
		t.Fatalf("expected 1 writeable flash region, got %d", len(layout.WriteableFlashRegions))
	}
	wfr := layout.WriteableFlashRegions[0]
	if wfr.Offset != 128 || wfr.Length != 256 {
		t.Errorf("wfr = %+v, want {Offset:128 Length:256}", wfr)
	}
}

func TestPermissionsPacking(t *testing.T) {
	ef := buildPicElf(t)

	img, err := tbf.Build(ef, tbf.Options{
		Permissions: []tbf.Permission{
			{Driver: 1, Command: 0},
			{Driver: 1, Command: 3},
			{Driver: 2, Command: 5},
		},
	})
	if err != nil {
		t.Fatalf("Build: %s", err)
	}

	prefix, err := img.PrefixForFooterSize(0)
	if err != nil {
		t.Fatalf("PrefixForFooterSize: %s", err)
	}
	h, err := tbf.ParseHeader(prefix)
	if err != nil {
		t.Fatalf("ParseHeader: %s", err)
	}
	// Main first, then Permissions.
	if len(h.TLVs) != 2 || len(h.TLVs[1].Value) != 24 {
		t.Fatalf("TLVs = %+v, want Main then a 24-byte Permissions TLV", h.TLVs)
	}
	v := h.TLVs[1].Value
	if d, m := binary.LittleEndian.Uint32(v[0:4]), binary.LittleEndian.Uint64(v[4:12]); d != 1 || m != 0x9 {
		t.Errorf("first entry = (driver=%d, mask=0x%x), want (1, 0x9)", d, m)
	}
	if d, m := binary.LittleEndian.Uint32(v[12:16]), binary.LittleEndian.Uint64(v[16:24]); d != 2 || m != 0x20 {
		t.Errorf("second entry = (driver=%d, mask=0x%x), want (2, 0x20)", d, m)
	}
}

func TestPermissionsRejectsCommandOutOfRange(t *testing.T) {
	ef := buildPicElf(t)

	_, err := tbf.Build(ef, tbf.Options{
		Permissions: []tbf.Permission{{Driver: 1, Command: 64}},
	})
	if err == nil {
		t.Fatal("expected an error for command > 63")
	}
}

func TestProtectedRegionSizeOverrideTooSmall(t *testing.T) {
	ef := buildPicElf(t)
	tiny := uint32(4)

	_, err := tbf.Build(ef, tbf.Options{ProtectedRegionSize: &tiny})
	if err == nil {
		t.Fatal("expected an error for an undersized --protected-region-size")
	}
}

func TestNoEmittableSections(t *testing.T) {
	raw := testelf.Build(t, testelf.Spec{Entry: 0x80000000})
	ef, err := elf.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %s", err)
	}

	_, err = tbf.Build(ef, tbf.Options{})
	if err == nil {
		t.Fatal("expected an error for an ELF with no emittable sections")
	}
}
