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

package tbf

import (
	"math"
	"sort"
	"strings"

	"tockos.org/tab/elf"
	"tockos.org/tab/util"
)

// dummyPicFlashAddr and dummyPicRamAddr are the well-known placeholder
// addresses a PIC toolchain leaves in an ELF; their presence (or absence of
// a non-zero _sram_origin) is what distinguishes PIC from fixed-address
// apps (spec.md §4.2 step 5).
const (
	dummyPicFlashAddr uint32 = 0x80000000
	dummyPicRamAddr   uint32 = 0x00000000

	defaultAppHeap    uint32 = 1024
	defaultKernelHeap uint32 = 1024
)

// stackSizeSymbol is the absolute ELF symbol a linker script leaves behind
// carrying the requested stack size, the same convention as
// tbf_protected_region_size and _sram_origin (spec.md §4.2 step 4).
const stackSizeSymbol = "_stack_size"

// elfStackSize resolves spec.md §4.2 step 4's "stack from ELF or user flag":
// an explicit --minimum-stack always wins; otherwise fall back to the ELF's
// own _stack_size symbol, if present, then to 0.
func elfStackSize(ef *elf.File, opts Options) uint32 {
	if opts.MinimumStackSet {
		return opts.MinimumStack
	}
	if v, ok := ef.Symbols[stackSizeSymbol]; ok {
		return uint32(v)
	}
	return 0
}

// WriteableFlashRegion is one entry of the binary's writeable-flash-region
// list (spec.md §4.2 step 3).
type WriteableFlashRegion struct {
	Offset uint32
	Length uint32
}

// AppLayout is the Binary Assembler's output: the flattened application
// binary plus everything the Layout Planner and Header Builder need to know
// about it (spec.md §3, "App layout").
type AppLayout struct {
	Binary                []byte
	RamSize               uint32
	EntryVAddr            uint32
	FlashLoadVAddr        uint32
	RamOriginVAddr        *uint32
	WriteableFlashRegions []WriteableFlashRegion
	IsFixedFlash          bool
	IsFixedRam            bool
	ArchTag               string

	// ProtectedRegionSymbol carries the ELF's `tbf_protected_region_size`
	// symbol value, if the symbol exists (spec.md §9 open question).
	ProtectedRegionSymbol *uint32
}

// Assemble runs the Binary Assembler: selects and concatenates ELF section
// bytes per spec.md §4.2 and derives the rest of the App layout record.
func Assemble(ef *elf.File, opts Options) (*AppLayout, error) {
	emitted := make([]bool, len(ef.Sections))

	// Pass 1 — payload sections: Progbits, size > 0, at least one of
	// {Write, Alloc, Exec}, emitted in file-offset order.
	payload := make([]int, 0, len(ef.Sections))
	for i, s := range ef.Sections {
		if s.Type != elf.TypeProgbits || s.Size == 0 {
			continue
		}
		if !(s.Flags.Has(elf.FlagWrite) || s.Flags.Has(elf.FlagAlloc) || s.Flags.Has(elf.FlagExec)) {
			continue
		}
		payload = append(payload, i)
	}
	sort.SliceStable(payload, func(a, b int) bool {
		return ef.Sections[payload[a]].FileOff < ef.Sections[payload[b]].FileOff
	})

	var binary []byte
	firstEmitted := -1 // index of whichever section pass 1 or pass 2 appends first
	offsets := make([]uint64, len(ef.Sections)) // binary-relative offset of each section, once emitted
	for _, i := range payload {
		offsets[i] = uint64(len(binary))
		binary = append(binary, ef.Sections[i].Bytes...)
		emitted[i] = true
		if firstEmitted == -1 {
			firstEmitted = i
		}
	}

	// Pass 2 — relocation-like sections: any not-yet-emitted section whose
	// flags include {Write} or {Alloc} and whose name contains ".rel",
	// appended in original section-table order. Pass 1 can come up empty
	// while pass 2 alone still emits something (spec.md §4.2 step 2), so
	// firstEmitted may end up pointing at a pass-2 section.
	for i, s := range ef.Sections {
		if emitted[i] {
			continue
		}
		if !(s.Flags.Has(elf.FlagWrite) || s.Flags.Has(elf.FlagAlloc)) {
			continue
		}
		if !strings.Contains(s.Name, ".rel") {
			continue
		}
		offsets[i] = uint64(len(binary))
		binary = append(binary, s.Bytes...)
		emitted[i] = true
		if firstEmitted == -1 {
			firstEmitted = i
		}
	}

	if len(binary) == 0 {
		return nil, util.FmtTabError(util.ErrInputSemantics,
			"ELF has no emittable sections (no Progbits section with Write, Alloc or Exec flags and non-zero size)")
	}

	// Writeable flash regions: any section whose name contains ".wfr",
	// regardless of which pass emitted it.
	var wfrs []WriteableFlashRegion
	for i, s := range ef.Sections {
		if !strings.Contains(s.Name, ".wfr") {
			continue
		}
		if !emitted[i] {
			continue
		}
		wfrs = append(wfrs, WriteableFlashRegion{
			Offset: uint32(offsets[i]),
			Length: uint32(s.Size),
		})
	}

	// RAM footprint: sum of all Alloc sections (Progbits or Nobits).
	var ramSizeElf uint64
	for _, s := range ef.Sections {
		if s.Flags.Has(elf.FlagAlloc) {
			ramSizeElf += s.Size
		}
	}

	stack := uint64(elfStackSize(ef, opts))
	appHeap := uint64(opts.AppHeap)
	if !opts.AppHeapSet {
		appHeap = uint64(defaultAppHeap)
	}
	kernelHeap := uint64(opts.KernelHeap)
	if !opts.KernelHeapSet {
		kernelHeap = uint64(defaultKernelHeap)
	}
	ramSize := util.Max64(ramSizeElf, stack+appHeap+kernelHeap)
	ramSize = util.Max64(ramSize, uint64(opts.MinimumRamSize))
	if ramSize > math.MaxUint32 {
		return nil, util.FmtTabError(util.ErrInputSemantics,
			"computed RAM footprint %d exceeds a 32-bit size", ramSize)
	}

	// flash_load_vaddr is the load address of the first emitted section.
	// That's usually payload[0] (pass 1's file-offset ordering), but pass 1
	// can be empty while pass 2 alone emitted something, so fall back to
	// whichever section firstEmitted actually names.
	flashLoadVAddr := uint32(ef.Sections[firstEmitted].VAddr)

	layout := &AppLayout{
		Binary:                binary,
		RamSize:               uint32(ramSize),
		EntryVAddr:            uint32(ef.Entry),
		FlashLoadVAddr:        flashLoadVAddr,
		WriteableFlashRegions: wfrs,
		IsFixedFlash:          flashLoadVAddr != dummyPicFlashAddr,
	}

	if v, ok := ef.Symbols["_sram_origin"]; ok {
		origin := uint32(v)
		layout.RamOriginVAddr = &origin
		layout.IsFixedRam = origin != dummyPicRamAddr
	}

	if v, ok := ef.Symbols["tbf_protected_region_size"]; ok {
		sz := uint32(v)
		layout.ProtectedRegionSymbol = &sz
	}

	if tag, ok := ef.ArchTag(); ok {
		layout.ArchTag = tag
	} else {
		util.ErrorMessage(util.VERBOSITY_QUIET,
			"warning: unrecognized ELF machine type %v, using \"unknown\"\n", ef.Machine)
		layout.ArchTag = "unknown"
	}

	return layout, nil
}
