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

// Package bundle is the Bundle Composer (spec.md §4.6): it drives one ELF
// through the elf, tbf and cred packages to produce a per-architecture TBF
// image, then assembles the finished images and metadata.toml into a TAB
// (a POSIX ustar tar archive).
package bundle

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"tockos.org/tab/cred"
	"tockos.org/tab/elf"
	"tockos.org/tab/tbf"
	"tockos.org/tab/util"
)

// BuiltImage is one finished, footer-and-all TBF byte image together with
// the architecture tag it will be archived under.
type BuiltImage struct {
	ArchTag string
	Bytes   []byte
}

// BuildImage runs one ELF through Assemble, the Layout Planner, the Header
// Builder and the Credential Builder, in that order, per spec.md §4.6's
// per-ELF pipeline. archOverride, if non-empty, takes the place of the
// architecture tag spec.md §6 lets a caller supply as "<path>,<arch-tag>".
func BuildImage(raw []byte, archOverride string, opts tbf.Options, req cred.Request) (*BuiltImage, error) {
	ef, err := elf.Parse(raw)
	if err != nil {
		return nil, err
	}

	footerLen, err := req.FooterLength()
	if err != nil {
		return nil, err
	}
	opts.HasFooter = footerLen > 0

	img, err := tbf.Build(ef, opts)
	if err != nil {
		return nil, err
	}

	prefix, err := img.PrefixForFooterSize(footerLen)
	if err != nil {
		return nil, err
	}

	footer, err := cred.Build(prefix, req)
	if err != nil {
		return nil, err
	}

	full := make([]byte, 0, len(prefix)+len(footer))
	full = append(full, prefix...)
	full = append(full, footer...)

	archTag := archOverride
	if archTag == "" {
		archTag = img.ArchTag
	}

	return &BuiltImage{ArchTag: archTag, Bytes: full}, nil
}

// SiblingPath returns the path of the `<arch>.tbf` file spec.md §6 says is
// written alongside inputPath, for inspection, independent of the bundle.
func SiblingPath(inputPath string, archTag string) string {
	return filepath.Join(filepath.Dir(inputPath), archTag+".tbf")
}

// WriteSibling writes img's bytes to its sibling `.tbf` path next to
// inputPath.
func WriteSibling(inputPath string, img *BuiltImage) error {
	path := SiblingPath(inputPath, img.ArchTag)
	if err := os.WriteFile(path, img.Bytes, 0o644); err != nil {
		return util.FmtChildTabError(util.ErrIoFailure, err,
			"cannot write %q: %s", path, err.Error())
	}
	return nil
}

// Composer assembles a finished set of per-architecture images into a TAB.
type Composer struct {
	Metadata      Metadata
	Deterministic bool
}

// WriteTab writes the TAB archive for images to w: metadata.toml first, then
// one `<arch>.tbf` per image in lexicographic order by architecture tag
// (spec.md §4.6, §8 scenario 3). In deterministic mode every tar header
// carries a zero mtime, zero uid/gid and mode 0644, so that two runs over
// identical inputs produce byte-identical output.
func (c *Composer) WriteTab(w io.Writer, images []*BuiltImage) error {
	sorted := make([]*BuiltImage, len(images))
	copy(sorted, images)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ArchTag < sorted[j].ArchTag })

	metaBytes, err := c.Metadata.Encode()
	if err != nil {
		return err
	}

	tw := tar.NewWriter(w)

	if err := c.writeMember(tw, "metadata.toml", metaBytes); err != nil {
		return err
	}
	for _, img := range sorted {
		if err := c.writeMember(tw, img.ArchTag+".tbf", img.Bytes); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return util.FmtChildTabError(util.ErrIoFailure, err,
			"cannot finalize TAB archive: %s", err.Error())
	}
	return nil
}

func (c *Composer) writeMember(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:   name,
		Mode:   0o644,
		Size:   int64(len(content)),
		Format: tar.FormatUSTAR,
	}
	if !c.Deterministic {
		hdr.ModTime = time.Now()
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return util.FmtChildTabError(util.ErrIoFailure, err,
			"cannot write TAB member %q: %s", name, err.Error())
	}
	if _, err := tw.Write(content); err != nil {
		return util.FmtChildTabError(util.ErrIoFailure, err,
			"cannot write TAB member %q: %s", name, err.Error())
	}
	return nil
}
