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

// Package testelf hand-assembles minimal, valid ELF32 byte images for the
// elf, tbf and bundle packages' tests. debug/elf has no writer half, so the tests need a
// small encoder of their own rather than a checked-in binary fixture.
package testelf

import (
	"bytes"
	"encoding/binary"
	"testing"
)

type SectionType uint32

const (
	Progbits SectionType = 1
	Nobits   SectionType = 8
)

type SectionFlags uint32

const (
	FlagWrite SectionFlags = 1 << 0
	FlagAlloc SectionFlags = 1 << 1
	FlagExec  SectionFlags = 1 << 2
)

type SectionSpec struct {
	Name  string
	Type  SectionType
	Flags SectionFlags
	Addr  uint32
	Data  []byte
}

// Spec describes the ELF32 image Build should produce.
type Spec struct {
	Entry     uint32
	Machine   uint16 // defaults to EM_ARM (40)
	BigEndian bool
	Sections  []SectionSpec
	Symbols   map[string]uint64
}

const (
	etExec   = 2
	emARM    = 40
	shnUndef = 0
	shnAbs   = 0xfff1
	shtNull  = 0
	shtSymtab = 2
	shtStrtab = 3
)

// Build encodes spec into a complete ELF32 byte image: header, section
// contents, an optional symbol table, and a trailing section header table.
func Build(t *testing.T, spec Spec) []byte {
	t.Helper()

	order := binary.ByteOrder(binary.LittleEndian)
	if spec.BigEndian {
		order = binary.BigEndian
	}
	machine := spec.Machine
	if machine == 0 {
		machine = emARM
	}

	// Section name string table (.shstrtab), built alongside the section
	// list so sh_name offsets are known up front.
	shstrtab := []byte{0}
	shstrOff := func(name string) uint32 {
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, []byte(name)...)
		shstrtab = append(shstrtab, 0)
		return off
	}

	type rawSection struct {
		nameOff   uint32
		shtype    uint32
		flags     uint32
		addr      uint32
		offset    uint32
		size      uint32
		link      uint32
		info      uint32
		addralign uint32
	}

	var body bytes.Buffer // section file content, placed right after the ELF header
	const ehsize = 52

	var sections []rawSection
	sections = append(sections, rawSection{}) // SHN_UNDEF null section

	for _, s := range spec.Sections {
		rs := rawSection{
			nameOff:   shstrOff(s.Name),
			shtype:    uint32(s.Type),
			flags:     uint32(s.Flags),
			addr:      s.Addr,
			addralign: 1,
		}
		if s.Type == Nobits {
			rs.offset = ehsize + uint32(body.Len())
			rs.size = uint32(len(s.Data))
		} else {
			rs.offset = ehsize + uint32(body.Len())
			rs.size = uint32(len(s.Data))
			body.Write(s.Data)
		}
		sections = append(sections, rs)
	}

	// Symbol table: one null entry plus one STT_NOTYPE/SHN_ABS entry per
	// provided symbol, with its own string table.
	if len(spec.Symbols) > 0 {
		symstrtab := []byte{0}
		var symtab bytes.Buffer

		// Null symbol entry (Elf32_Sym is 16 bytes).
		symtab.Write(make([]byte, 16))

		names := make([]string, 0, len(spec.Symbols))
		for name := range spec.Symbols {
			names = append(names, name)
		}
		for _, name := range names {
			val := spec.Symbols[name]
			nameOff := uint32(len(symstrtab))
			symstrtab = append(symstrtab, []byte(name)...)
			symstrtab = append(symstrtab, 0)

			var sym [16]byte
			order.PutUint32(sym[0:4], nameOff)
			order.PutUint32(sym[4:8], uint32(val))
			order.PutUint32(sym[8:12], 0) // st_size
			sym[12] = 0                   // st_info: STB_LOCAL/STT_NOTYPE
			sym[13] = 0                   // st_other
			order.PutUint16(sym[14:16], shnAbs)
			symtab.Write(sym[:])
		}

		symtabOff := ehsize + uint32(body.Len())
		body.Write(symtab.Bytes())
		symtabSize := uint32(symtab.Len())

		strtabOff := ehsize + uint32(body.Len())
		body.Write(symstrtab)
		strtabSize := uint32(len(symstrtab))

		strtabIdx := uint32(len(sections) + 1) // index after .symtab itself

		sections = append(sections, rawSection{
			nameOff:   shstrOff(".symtab"),
			shtype:    shtSymtab,
			offset:    symtabOff,
			size:      symtabSize,
			link:      strtabIdx,
			info:      1,
			addralign: 4,
		})
		sections = append(sections, rawSection{
			nameOff:   shstrOff(".strtab"),
			shtype:    shtStrtab,
			offset:    strtabOff,
			size:      strtabSize,
			addralign: 1,
		})
	}

	// .shstrtab itself goes last among the named sections, referencing its
	// own bytes (finalized below, after its own name has been appended).
	shstrtabNameOff := shstrOff(".shstrtab")
	shstrtabFileOff := ehsize + uint32(body.Len())
	body.Write(shstrtab)
	shstrtabSize := uint32(len(shstrtab))

	shstrndx := uint32(len(sections))
	sections = append(sections, rawSection{
		nameOff:   shstrtabNameOff,
		shtype:    shtStrtab,
		offset:    shstrtabFileOff,
		size:      shstrtabSize,
		addralign: 1,
	})

	shoff := ehsize + uint32(body.Len())

	var out bytes.Buffer

	// e_ident
	out.Write([]byte{0x7f, 'E', 'L', 'F'})
	out.WriteByte(1) // ELFCLASS32
	if spec.BigEndian {
		out.WriteByte(2) // ELFDATA2MSB
	} else {
		out.WriteByte(1) // ELFDATA2LSB
	}
	out.WriteByte(1) // EI_VERSION
	out.Write(make([]byte, 9))

	writeU16 := func(v uint16) {
		var b [2]byte
		order.PutUint16(b[:], v)
		out.Write(b[:])
	}
	writeU32 := func(v uint32) {
		var b [4]byte
		order.PutUint32(b[:], v)
		out.Write(b[:])
	}

	writeU16(etExec)            // e_type
	writeU16(machine)           // e_machine
	writeU32(1)                 // e_version
	writeU32(spec.Entry)        // e_entry
	writeU32(0)                 // e_phoff
	writeU32(shoff)             // e_shoff
	writeU32(0)                 // e_flags
	writeU16(ehsize)            // e_ehsize
	writeU16(0)                 // e_phentsize
	writeU16(0)                 // e_phnum
	writeU16(40)                // e_shentsize
	writeU16(uint16(len(sections))) // e_shnum
	writeU16(uint16(shstrndx))  // e_shstrndx

	if out.Len() != ehsize {
		t.Fatalf("testelf: header size = %d, want %d", out.Len(), ehsize)
	}

	out.Write(body.Bytes())

	for _, s := range sections {
		writeU32(s.nameOff)
		writeU32(s.shtype)
		writeU32(s.flags)
		writeU32(s.addr)
		writeU32(s.offset)
		writeU32(s.size)
		writeU32(s.link)
		writeU32(s.info)
		writeU32(s.addralign)
		writeU32(0) // sh_entsize
	}

	return out.Bytes()
}
