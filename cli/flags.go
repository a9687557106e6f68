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

package cli

import (
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"tockos.org/tab/cred"
	"tockos.org/tab/tbf"
	"tockos.org/tab/util"
)

// The create command's package-level flag variables, in the style of
// newt.go's, bound in addCreateFlags below with Flags().
var (
	flagOutputFile string

	flagPackageName     string
	flagSupportedBoards string

	flagAppHeap    string
	flagKernelHeap string
	flagAppVersion string

	flagKernelMajor string
	flagKernelMinor string

	flagShortId string

	flagPermissions []string
	flagWriteId     string
	flagReadIds     []string
	flagAccessIds   []string

	flagMinimumFooterSize string
	flagMinimumRamSize    string
	flagMinimumStack      string

	flagProtectedRegionSize string

	flagSha256 bool
	flagSha384 bool
	flagSha512 bool

	flagRsa4096Private   string
	flagEcdsaP256Private string

	flagDisable       bool
	flagDeterministic bool
)

func addCreateFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	f.StringVar(&flagOutputFile, "output-file", "TockApp.tab",
		"Path of the TAB file to write.")

	f.StringVar(&flagPackageName, "package-name", "", "Application package name.")
	f.StringVar(&flagSupportedBoards, "supported-boards", "",
		"Comma-separated list of supported board names.")

	f.StringVar(&flagAppHeap, "app-heap", "1024", "Requested application heap size.")
	f.StringVar(&flagKernelHeap, "kernel-heap", "1024", "Requested kernel heap size.")
	f.StringVar(&flagAppVersion, "app-version", "0", "Application version number.")

	f.StringVar(&flagKernelMajor, "kernel-major", "", "Minimum required kernel major version.")
	f.StringVar(&flagKernelMinor, "kernel-minor", "", "Minimum required kernel minor version.")

	f.StringVar(&flagShortId, "short-id", "", "32-bit short application identifier.")

	f.StringArrayVar(&flagPermissions, "permissions", nil,
		"A driver,command pair this app is granted; may be repeated.")
	f.StringVar(&flagWriteId, "write-id", "", "Persistent storage write identifier.")
	f.StringArrayVar(&flagReadIds, "read_ids", nil,
		"Space-separated list of persistent storage read identifiers.")
	f.StringArrayVar(&flagAccessIds, "access_ids", nil,
		"Space-separated list of persistent storage access identifiers.")

	f.StringVar(&flagMinimumFooterSize, "minimum-footer-size", "0",
		"Reserve at least this many bytes for the credential footer.")
	f.StringVar(&flagMinimumRamSize, "minimum-ram-size", "0",
		"Force at least this much RAM to be requested.")
	f.StringVar(&flagMinimumStack, "minimum-stack", "0",
		"Requested stack size, counted with the app and kernel heaps toward the requested RAM.")

	f.StringVar(&flagProtectedRegionSize, "protected-region-size", "",
		"Override the computed protected region size.")

	f.BoolVar(&flagSha256, "sha256", false, "Include a SHA-256 footer credential.")
	f.BoolVar(&flagSha384, "sha384", false, "Include a SHA-384 footer credential.")
	f.BoolVar(&flagSha512, "sha512", false, "Include a SHA-512 footer credential.")

	f.StringVar(&flagRsa4096Private, "rsa4096-private", "",
		"Path to a PEM RSA private key; signs an RSA-4096 footer credential.")
	f.StringVar(&flagEcdsaP256Private, "ecdsap256-private", "",
		"Path to a PEM P-256 ECDSA private key; signs an ECDSA footer credential.")

	f.BoolVar(&flagDisable, "disable", false,
		"Clear the TBF header's enabled bit, so the kernel won't start this app.")
	f.BoolVar(&flagDeterministic, "deterministic", false,
		"Zero every tar timestamp/owner and omit the build time from metadata.toml, for reproducible builds.")
}

// parseUint32Flag parses a decimal or 0x-prefixed hex flag value, per
// spec.md §6; an empty string yields dflt.
func parseUint32Flag(name, s string, dflt uint32) (uint32, error) {
	if s == "" {
		return dflt, nil
	}
	v, err := util.AtoiNoOct(s)
	if err != nil {
		return 0, util.FmtTabError(util.ErrInputSemantics, "invalid --%s value %q", name, s)
	}
	return uint32(v), nil
}

func parseUint32List(name string, ss []string) ([]uint32, error) {
	var out []uint32
	for _, field := range ss {
		for _, tok := range strings.Fields(field) {
			var v uint64
			if n, ok := util.AtoiNoOctTry(tok); ok {
				v = uint64(n)
			} else {
				var err error
				v, err = cast.ToUint64E(tok)
				if err != nil {
					return nil, util.FmtTabError(util.ErrInputSemantics,
						"invalid --%s entry %q", name, tok)
				}
			}
			out = append(out, uint32(v))
		}
	}
	return out, nil
}

func parsePermissions(ss []string) ([]tbf.Permission, error) {
	var out []tbf.Permission
	for _, s := range ss {
		parts := strings.SplitN(s, ",", 2)
		if len(parts) != 2 {
			return nil, util.FmtTabError(util.ErrInputSemantics,
				"invalid --permissions entry %q; want driver,command", s)
		}
		driver, err := util.AtoiNoOct(parts[0])
		if err != nil {
			return nil, util.FmtTabError(util.ErrInputSemantics,
				"invalid --permissions driver %q", parts[0])
		}
		command, err := util.AtoiNoOct(parts[1])
		if err != nil {
			return nil, util.FmtTabError(util.ErrInputSemantics,
				"invalid --permissions command %q", parts[1])
		}
		out = append(out, tbf.Permission{Driver: uint32(driver), Command: uint32(command)})
	}
	return out, nil
}

// optionsFromFlags builds the tbf.Options shared by every input ELF from the
// bound create-command flags.
func optionsFromFlags(cmd *cobra.Command) (tbf.Options, error) {
	opts := tbf.Options{
		PackageName: flagPackageName,
		Disable:     flagDisable,
	}

	if flagSupportedBoards != "" {
		opts.SupportedBoards = strings.Split(flagSupportedBoards, ",")
	}

	var err error
	if opts.AppVersion, err = parseUint32Flag("app-version", flagAppVersion, 0); err != nil {
		return opts, err
	}
	opts.AppVersionSet = cmd.Flags().Changed("app-version")

	if opts.AppHeap, err = parseUint32Flag("app-heap", flagAppHeap, 1024); err != nil {
		return opts, err
	}
	opts.AppHeapSet = cmd.Flags().Changed("app-heap")

	if opts.KernelHeap, err = parseUint32Flag("kernel-heap", flagKernelHeap, 1024); err != nil {
		return opts, err
	}
	opts.KernelHeapSet = cmd.Flags().Changed("kernel-heap")

	if opts.MinimumRamSize, err = parseUint32Flag("minimum-ram-size", flagMinimumRamSize, 0); err != nil {
		return opts, err
	}
	if opts.MinimumStack, err = parseUint32Flag("minimum-stack", flagMinimumStack, 0); err != nil {
		return opts, err
	}
	opts.MinimumStackSet = cmd.Flags().Changed("minimum-stack")

	if flagKernelMajor != "" || flagKernelMinor != "" {
		major, err := parseUint32Flag("kernel-major", flagKernelMajor, 0)
		if err != nil {
			return opts, err
		}
		minor, err := parseUint32Flag("kernel-minor", flagKernelMinor, 0)
		if err != nil {
			return opts, err
		}
		opts.KernelMajor = uint16(major)
		opts.KernelMinor = uint16(minor)
		opts.KernelVersionSet = true
	}

	if flagShortId != "" {
		v, err := parseUint32Flag("short-id", flagShortId, 0)
		if err != nil {
			return opts, err
		}
		opts.ShortId = v
		opts.ShortIdSet = true
	}

	if opts.Permissions, err = parsePermissions(flagPermissions); err != nil {
		return opts, err
	}

	if opts.WriteId, err = parseUint32Flag("write-id", flagWriteId, 0); err != nil {
		return opts, err
	}
	if opts.ReadIds, err = parseUint32List("read_ids", flagReadIds); err != nil {
		return opts, err
	}
	if opts.AccessIds, err = parseUint32List("access_ids", flagAccessIds); err != nil {
		return opts, err
	}

	footerSize, err := parseUint32Flag("minimum-footer-size", flagMinimumFooterSize, 0)
	if err != nil {
		return opts, err
	}
	opts.MinimumFooterSize = footerSize

	if flagProtectedRegionSize != "" {
		v, err := parseUint32Flag("protected-region-size", flagProtectedRegionSize, 0)
		if err != nil {
			return opts, err
		}
		opts.ProtectedRegionSize = &v
	}

	return opts, nil
}

// credRequestFromFlags builds the credential request shared by every input
// ELF, reading any signing keys from disk.
func credRequestFromFlags() (cred.Request, error) {
	req := cred.Request{
		Sha256: flagSha256,
		Sha384: flagSha384,
		Sha512: flagSha512,
	}

	if flagRsa4096Private != "" {
		key, err := cred.ReadKey(flagRsa4096Private)
		if err != nil {
			return req, err
		}
		req.Rsa4096Key = &key
	}

	if flagEcdsaP256Private != "" {
		key, err := cred.ReadKey(flagEcdsaP256Private)
		if err != nil {
			return req, err
		}
		req.EcdsaP256Key = &key
	}

	return req, nil
}
