// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides the CLI's colored output helpers, shared by every
// cmd/testsel subcommand.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	header  = color.New(color.FgCyan, color.Bold)
	sub     = color.New(color.FgCyan)
	label   = color.New(color.FgWhite, color.Bold)
	dim     = color.New(color.FgHiBlack)
	count   = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	infoCol = color.New(color.FgBlue)
)

// InitColors configures color.NoColor based on the --no-color flag, the
// NO_COLOR environment convention, and whether stdout or stderr is a
// terminal (color stays on if either one is).
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
		return
	}
	color.NoColor = !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsTerminal(os.Stderr.Fd())
}

// Header prints a top-level section title.
func Header(format string, args ...any) {
	header.Println(fmt.Sprintf(format, args...))
}

// SubHeader prints a secondary section title.
func SubHeader(format string, args ...any) {
	sub.Println(fmt.Sprintf(format, args...))
}

// Label prints a field label followed by a value on the same line.
func Label(name, value string) {
	label.Print(name + ": ")
	fmt.Println(value)
}

// DimText prints low-emphasis supporting text.
func DimText(format string, args ...any) {
	dim.Println(fmt.Sprintf(format, args...))
}

// CountText prints a prominent numeric count with a trailing description.
func CountText(n int, description string) {
	count.Printf("%d", n)
	fmt.Println(" " + description)
}

// Warning prints a warning line to stderr.
func Warning(msg string) {
	fmt.Fprint(os.Stderr, warn.Sprint("warning: "))
	fmt.Fprintln(os.Stderr, msg)
}

// Warningf prints a formatted warning line to stderr.
func Warningf(format string, args ...any) {
	Warning(fmt.Sprintf(format, args...))
}

// Info prints an informational line to stderr.
func Info(format string, args ...any) {
	fmt.Fprint(os.Stderr, infoCol.Sprint("info: "))
	fmt.Fprintln(os.Stderr, fmt.Sprintf(format, args...))
}
