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

// Package util holds the ambient pieces shared by every tab package: the
// error currency, status/log output, and small string<->number helpers used
// when decoding CLI flags.
package util

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

var Verbosity int
var logFile *os.File

const (
	VERBOSITY_SILENT  = 0
	VERBOSITY_QUIET   = 1
	VERBOSITY_DEFAULT = 2
	VERBOSITY_VERBOSE = 3
)

// ErrKind classifies a TabError the way spec.md's error taxonomy requires,
// so the CLI can choose an exit status without string-matching messages.
type ErrKind int

const (
	ErrUnknown ErrKind = iota
	ErrInputParse
	ErrInputSemantics
	ErrLayoutImpossible
	ErrCryptoFailure
	ErrIoFailure
)

type TabError struct {
	Kind       ErrKind
	Parent     error
	Text       string
	StackTrace []byte
}

func (se *TabError) Error() string {
	return se.Text
}

func NewTabError(kind ErrKind, msg string) *TabError {
	err := &TabError{
		Kind:       kind,
		Text:       msg,
		StackTrace: make([]byte, 65536),
	}

	stackLen := runtime.Stack(err.StackTrace, true)
	err.StackTrace = err.StackTrace[:stackLen]

	return err
}

func FmtTabError(kind ErrKind, format string, args ...interface{}) *TabError {
	return NewTabError(kind, fmt.Sprintf(format, args...))
}

// ChildTabError wraps a foreign error (e.g. an os.PathError) as a TabError of
// the given kind, unwrapping any TabError the parent already is so a chain
// of wraps collapses to the innermost cause.
func ChildTabError(kind ErrKind, parent error) *TabError {
	for {
		tabErr, ok := parent.(*TabError)
		if !ok || tabErr == nil || tabErr.Parent == nil {
			break
		}
		parent = tabErr.Parent
	}

	tabErr := NewTabError(kind, parent.Error())
	tabErr.Parent = parent
	return tabErr
}

func FmtChildTabError(kind ErrKind, parent error, format string,
	args ...interface{}) *TabError {

	ne := ChildTabError(kind, parent)
	ne.Text = fmt.Sprintf(format, args...)
	return ne
}

// WriteMessage prints a Silent/Quiet/Verbose-aware status message to f.
func WriteMessage(f *os.File, level int, message string, args ...interface{}) {
	if Verbosity >= level {
		str := fmt.Sprintf(message, args...)
		f.WriteString(str)
		f.Sync()

		if logFile != nil {
			logFile.WriteString(str)
		}
	}
}

func StatusMessage(level int, message string, args ...interface{}) {
	WriteMessage(os.Stdout, level, message, args...)
}

func ErrorMessage(level int, message string, args ...interface{}) {
	WriteMessage(os.Stderr, level, message, args...)
}

type logFormatter struct{}

func (f *logFormatter) Format(entry *log.Entry) ([]byte, error) {
	b := &bytes.Buffer{}

	b.WriteString(entry.Time.Format("2006/01/02 15:04:05.000 "))
	b.WriteString("[" + strings.ToUpper(entry.Level.String()) + "] ")
	b.WriteString(entry.Message)
	b.WriteByte('\n')

	return b.Bytes(), nil
}

func initLog(level log.Level, logFilename string) error {
	log.SetLevel(level)

	var writer io.Writer
	if logFilename == "" {
		writer = os.Stderr
	} else {
		var err error
		logFile, err = os.Create(logFilename)
		if err != nil {
			return NewTabError(ErrIoFailure, err.Error())
		}

		writer = io.MultiWriter(os.Stderr, logFile)
	}

	log.SetOutput(writer)
	log.SetFormatter(&logFormatter{})

	return nil
}

// Init configures logging and verbosity once at process start.
func Init(logLevel log.Level, logFilename string, verbosity int) error {
	if err := initLog(logLevel, ""); err != nil {
		return err
	}
	if logFilename != "" {
		if err := initLog(logLevel, logFilename); err != nil {
			return err
		}
	}

	Verbosity = verbosity

	return nil
}

// AtoiNoOctTry converts s to an integer, accepting base-10 or 0x-prefixed
// base-16, but never interpreting a leading zero as octal. The second return
// value is true on success.
func AtoiNoOctTry(s string) (int, bool) {
	var runLen int
	for runLen = 0; runLen < len(s)-1; runLen++ {
		if s[runLen] != '0' || s[runLen+1] == 'x' {
			break
		}
	}

	if runLen > 0 {
		s = s[runLen:]
	}

	i, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, false
	}

	return int(i), true
}

// AtoiNoOct is the error-returning form of AtoiNoOctTry; this is how
// spec.md's "decimal or 0x-prefixed hex" numeric flags are parsed.
func AtoiNoOct(s string) (int, error) {
	val, ok := AtoiNoOctTry(s)
	if !ok {
		return 0, FmtTabError(ErrInputSemantics, "invalid number: %q", s)
	}

	return val, nil
}

// UniqueStrings removes duplicate strings from elems, preserving order.
func UniqueStrings(elems []string) []string {
	set := make(map[string]bool)
	result := make([]string, 0, len(elems))

	for _, elem := range elems {
		if !set[elem] {
			result = append(result, elem)
			set[elem] = true
		}
	}

	return result
}

// SortStrings returns a sorted copy of ss.
func SortStrings(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	sort.Strings(out)
	return out
}

func Max(x, y int) int {
	if x > y {
		return x
	}
	return y
}

func Min(x, y int) int {
	if x < y {
		return x
	}
	return y
}

func Max64(x, y uint64) uint64 {
	if x > y {
		return x
	}
	return y
}

// PadTo4 returns the number of 0x00 padding bytes needed to round n up to
// the next multiple of 4, as every TLV and the final image length require.
func PadTo4(n int) int {
	rem := n % 4
	if rem == 0 {
		return 0
	}
	return 4 - rem
}

// RoundUp4 rounds n up to the next multiple of 4.
func RoundUp4(n int) int {
	return n + PadTo4(n)
}
