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

// Package cli wires the tab binary's command tree: `tab create` runs the
// full ELF -> TBF -> TAB pipeline, `tab dump` decodes a finished TBF image
// for inspection. Grounded on newt.go/newt/newt.go's cobra wiring style.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tockos.org/tab/bundle"
	"tockos.org/tab/cred"
	"tockos.org/tab/tbf"
	"tockos.org/tab/util"
)

var (
	tabLogLevel string
	tabSilent   bool
	tabQuiet    bool
	tabVerbose  bool
)

// Usage prints err (if any) and the command's usage text, then exits
// non-zero. Grounded on newt.go's NewtUsage.
func Usage(cmd *cobra.Command, err error) {
	if err != nil {
		if tabErr, ok := err.(*util.TabError); ok {
			log.Debugf("%s", tabErr.StackTrace)
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
	}

	if cmd != nil {
		cmd.Usage()
	}
	os.Exit(1)
}

func verbosity() int {
	switch {
	case tabSilent:
		return util.VERBOSITY_SILENT
	case tabQuiet:
		return util.VERBOSITY_QUIET
	case tabVerbose:
		return util.VERBOSITY_VERBOSE
	default:
		return util.VERBOSITY_DEFAULT
	}
}

func initLogging(cmd *cobra.Command, args []string) {
	level, err := log.ParseLevel(strings.ToLower(tabLogLevel))
	if err != nil {
		level = log.WarnLevel
	}
	if err := util.Init(level, "", verbosity()); err != nil {
		Usage(nil, err)
	}
}

// splitInput parses one `create` positional argument of the form
// "<path>" or "<path>,<arch-tag>" (spec.md §6).
func splitInput(arg string) (path string, archOverride string) {
	parts := strings.SplitN(arg, ",", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

func runCreate(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		Usage(cmd, util.FmtTabError(util.ErrInputSemantics, "at least one input ELF is required"))
	}

	opts, err := optionsFromFlags(cmd)
	if err != nil {
		Usage(cmd, err)
	}
	req, err := credRequestFromFlags()
	if err != nil {
		Usage(cmd, err)
	}

	var images []*bundle.BuiltImage
	for _, arg := range args {
		path, archOverride := splitInput(arg)

		raw, err := os.ReadFile(path)
		if err != nil {
			Usage(cmd, util.FmtChildTabError(util.ErrIoFailure, err,
				"cannot read %q: %s", path, err.Error()))
		}

		img, err := bundle.BuildImage(raw, archOverride, opts, req)
		if err != nil {
			Usage(cmd, err)
		}

		if err := bundle.WriteSibling(path, img); err != nil {
			Usage(cmd, err)
		}

		util.StatusMessage(util.VERBOSITY_DEFAULT,
			"Built %s (%d bytes) from %s\n", img.ArchTag, len(img.Bytes), path)

		images = append(images, img)
	}

	composer := &bundle.Composer{
		Metadata: bundle.Metadata{
			Name: flagPackageName,
		},
		Deterministic: flagDeterministic,
	}
	if flagKernelMajor != "" || flagKernelMinor != "" {
		major := flagKernelMajor
		if major == "" {
			major = "0"
		}
		minor := flagKernelMinor
		if minor == "" {
			minor = "0"
		}
		composer.Metadata.MinimumTockKernelVersion = fmt.Sprintf("%s.%s", major, minor)
	}
	if !flagDeterministic {
		composer.Metadata.BuildTime = time.Now().UTC().Format(time.RFC3339)
	}

	out, err := os.Create(flagOutputFile)
	if err != nil {
		Usage(cmd, util.FmtChildTabError(util.ErrIoFailure, err,
			"cannot create %q: %s", flagOutputFile, err.Error()))
	}
	defer out.Close()

	if err := composer.WriteTab(out, images); err != nil {
		Usage(cmd, err)
	}

	util.StatusMessage(util.VERBOSITY_DEFAULT, "Wrote %s\n", flagOutputFile)
}

// dumpCredential is the JSON-friendly view of one footer credential.
type dumpCredential struct {
	Algorithm   string `json:"algorithm"`
	Length      int    `json:"length"`
	HashMatches *bool  `json:"hash_matches,omitempty"`
}

// dumpReport is what `tab dump` prints: header fields, the TLV list and the
// footer credential summary, per the supplemented `tab dump` feature.
type dumpReport struct {
	Version             uint16           `json:"version"`
	HeaderSize          uint16           `json:"header_size"`
	TotalSize           uint32           `json:"total_size"`
	Flags               uint32           `json:"flags"`
	ChecksumValid       bool             `json:"checksum_valid"`
	ProtectedRegionSize uint32           `json:"protected_region_size"`
	BinaryLength        int              `json:"binary_length"`
	TLVTypes            []uint16         `json:"tlv_types"`
	Credentials         []dumpCredential `json:"credentials"`
}

func runDump(cmd *cobra.Command, args []string) {
	if len(args) != 1 {
		Usage(cmd, util.FmtTabError(util.ErrInputSemantics, "dump takes exactly one .tbf file"))
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		Usage(cmd, util.FmtChildTabError(util.ErrIoFailure, err,
			"cannot read %q: %s", args[0], err.Error()))
	}

	img, err := tbf.Parse(raw)
	if err != nil {
		Usage(cmd, err)
	}

	report := dumpReport{
		Version:             img.Header.Version,
		HeaderSize:          img.Header.HeaderLength,
		TotalSize:           img.Header.TotalSize,
		Flags:               img.Header.Flags,
		ChecksumValid:       img.Header.ChecksumValid(raw),
		ProtectedRegionSize: uint32(img.Header.HeaderLength) + img.Header.ProtectedTrailerSize,
		BinaryLength:        len(img.Binary),
	}
	for _, tlv := range img.Header.TLVs {
		report.TLVTypes = append(report.TLVTypes, tlv.Type)
	}

	if len(img.Footer) > 0 {
		covered := raw[:int(report.ProtectedRegionSize)+len(img.Binary)]
		creds, err := cred.ParseFooter(img.Footer)
		if err != nil {
			Usage(cmd, err)
		}
		for _, c := range creds {
			dc := dumpCredential{Algorithm: c.Name(), Length: len(c.Value)}
			if matches, ok := c.VerifyHash(covered); ok {
				dc.HashMatches = &matches
			}
			report.Credentials = append(report.Credentials, dc)
		}
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		Usage(cmd, util.FmtChildTabError(util.ErrIoFailure, err,
			"cannot encode dump report: %s", err.Error()))
	}
	fmt.Println(string(out))
}

// Execute builds the `tab` command tree and runs it.
func Execute() {
	root := &cobra.Command{
		Use:   "tab",
		Short: "tab converts ELF executables into a Tock Application Bundle",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogging(cmd, args)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	root.PersistentFlags().BoolVarP(&tabVerbose, "verbose", "v", false,
		"Enable verbose output.")
	root.PersistentFlags().BoolVarP(&tabQuiet, "quiet", "q", false,
		"Only display error output.")
	root.PersistentFlags().BoolVarP(&tabSilent, "silent", "s", false,
		"Don't output anything.")
	root.PersistentFlags().StringVarP(&tabLogLevel, "loglevel", "l", "warn",
		"Log level, defaults to warn.")

	createCmd := &cobra.Command{
		Use:   "create <elf> [elf,arch-tag ...]",
		Short: "Build a Tock Application Bundle from one or more ELF executables",
		Run:   runCreate,
	}
	addCreateFlags(createCmd)
	root.AddCommand(createCmd)

	dumpCmd := &cobra.Command{
		Use:   "dump <file.tbf>",
		Short: "Print a built TBF image's header, TLVs and footer credentials as JSON",
		Run:   runDump,
	}
	root.AddCommand(dumpCmd)

	if err := root.Execute(); err != nil {
		Usage(nil, err)
	}
}
