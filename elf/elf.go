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

// Package elf reduces a little-endian 32-bit ELF executable to the neutral
// view the rest of tab needs: an ordered section list plus a symbol lookup.
// It is a thin wrapper around debug/elf; tab never touches dynamic linking,
// relocation application, or debug info.
package elf

import (
	"bytes"
	dbgelf "debug/elf"

	"tockos.org/tab/util"
)

// SectionType is the neutral classification tab's section-selection rules
// (spec.md §4.2) switch on.
type SectionType int

const (
	TypeOther SectionType = iota
	TypeProgbits
	TypeNobits
	TypeRel
)

type SectionFlags uint32

const (
	FlagWrite SectionFlags = 1 << iota
	FlagAlloc
	FlagExec
)

func (f SectionFlags) Has(bit SectionFlags) bool {
	return f&bit != 0
}

// Section is one entry of the neutral section view (spec.md §3).
type Section struct {
	Name    string
	Type    SectionType
	Flags   SectionFlags
	VAddr   uint64
	FileOff uint64
	Size    uint64
	Bytes   []byte
}

// File is the parsed ELF image: an ordered section view plus a name->vaddr
// symbol table, and the fields the rest of tab needs straight off the ELF
// header (machine type, entry point).
type File struct {
	Sections []Section
	Symbols  map[string]uint64
	Entry    uint64
	Machine  dbgelf.Machine
}

// archNames maps ELF machine types to the TBF architecture tag a Tock kernel
// expects; anything absent from this table falls back to "unknown" with a
// warning (spec.md §7).
var archNames = map[dbgelf.Machine]string{
	dbgelf.EM_ARM:    "cortex-m4",
	dbgelf.EM_RISCV:  "riscv32imc",
	dbgelf.EM_386:    "x86",
	dbgelf.EM_X86_64: "x86_64",
}

// ArchTag returns the TBF architecture tag for f's machine type, and false
// if the machine type isn't one tab recognizes.
func (f *File) ArchTag() (string, bool) {
	name, ok := archNames[f.Machine]
	return name, ok
}

// Parse reads an ELF image from raw bytes. Only little-endian, 32-bit ELF
// is supported; anything else is an InputParse error (spec.md §4.1, §7).
func Parse(raw []byte) (*File, error) {
	ef, err := dbgelf.NewFile(bytes.NewReader(raw))
	if err != nil {
		return nil, util.FmtChildTabError(util.ErrInputParse, err,
			"invalid ELF image: %s", err.Error())
	}
	defer ef.Close()

	if ef.Class != dbgelf.ELFCLASS32 {
		return nil, util.FmtTabError(util.ErrInputParse,
			"unsupported ELF class: %s (only 32-bit ELF is supported)",
			ef.Class)
	}
	if ef.Data != dbgelf.ELFDATA2LSB {
		return nil, util.FmtTabError(util.ErrInputParse,
			"unsupported ELF endianness: %s (only little-endian is supported)",
			ef.Data)
	}

	f := &File{
		Symbols: map[string]uint64{},
		Entry:   ef.Entry,
		Machine: ef.Machine,
	}

	for _, s := range ef.Sections {
		if s.Type == dbgelf.SHT_NULL {
			// The reserved index-0 entry every section header table carries;
			// never a candidate for selection.
			continue
		}
		sec, err := convertSection(s)
		if err != nil {
			return nil, err
		}
		f.Sections = append(f.Sections, sec)
	}

	// Sections are kept in ELF section-header order here; callers that need
	// a file-offset ordering (the binary assembler's first pass) sort their
	// own working copy rather than have the reader impose one order on every
	// consumer (spec.md §3, "stable sort by file offset imposed where
	// needed").

	syms, err := ef.Symbols()
	if err != nil && err != dbgelf.ErrNoSymbols {
		return nil, util.FmtChildTabError(util.ErrInputParse, err,
			"failed to read ELF symbol table: %s", err.Error())
	}
	for _, sym := range syms {
		if sym.Name != "" {
			f.Symbols[sym.Name] = sym.Value
		}
	}

	return f, nil
}

func convertSection(s *dbgelf.Section) (Section, error) {
	sec := Section{
		Name:    s.Name,
		VAddr:   s.Addr,
		FileOff: s.Offset,
		Size:    s.Size,
	}

	switch s.Type {
	case dbgelf.SHT_PROGBITS:
		sec.Type = TypeProgbits
	case dbgelf.SHT_NOBITS:
		sec.Type = TypeNobits
	case dbgelf.SHT_REL, dbgelf.SHT_RELA:
		sec.Type = TypeRel
	default:
		sec.Type = TypeOther
	}

	if s.Flags&dbgelf.SHF_WRITE != 0 {
		sec.Flags |= FlagWrite
	}
	if s.Flags&dbgelf.SHF_ALLOC != 0 {
		sec.Flags |= FlagAlloc
	}
	if s.Flags&dbgelf.SHF_EXECINSTR != 0 {
		sec.Flags |= FlagExec
	}

	if sec.Type != TypeNobits && s.Size > 0 {
		data, err := s.Data()
		if err != nil {
			return sec, util.FmtChildTabError(util.ErrInputParse, err,
				"truncated section %q: %s", s.Name, err.Error())
		}
		sec.Bytes = data
	}

	return sec, nil
}
