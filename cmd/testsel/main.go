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

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/testsel/internal/ui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GlobalFlags carries the flags every subcommand honors.
type GlobalFlags struct {
	JSON    bool
	NoColor bool
	Verbose bool
	Quiet   bool
}

func logInfo(g GlobalFlags, format string, args ...any) {
	if g.Quiet || g.JSON {
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "print version and exit")
		configPath  = flag.StringP("config", "c", "", "path to .testsel/project.yaml")
		jsonOutput  = flag.Bool("json", false, "emit machine-readable JSON")
		noColor     = flag.Bool("no-color", false, "disable colored output")
		verbose     = flag.BoolP("verbose", "v", false, "verbose logging")
		quiet       = flag.BoolP("quiet", "q", false, "suppress non-error output")
	)
	flag.SetInterspersed(false)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `testsel - structural-fingerprint test selection engine

Usage:
  testsel <command> [flags] [args...]

Commands:
  baseline   record baseline fingerprints for scope paths
  select     detect changes and report affected test node ids
  merge      merge one or more store files into a destination
  stats      print store statistics

Flags:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	globals := GlobalFlags{JSON: *jsonOutput, NoColor: *noColor, Verbose: *verbose, Quiet: *quiet}

	if *showVersion {
		fmt.Printf("testsel %s (%s, %s)\n", version, commit, date)
		return
	}
	if globals.Verbose && globals.Quiet {
		logError("--verbose and --quiet are mutually exclusive")
		os.Exit(1)
	}
	if globals.JSON {
		globals.Quiet = true
	}
	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cmdName := args[0]
	cmdArgs := args[1:]

	var err error
	switch cmdName {
	case "baseline":
		err = runBaseline(cmdArgs, *configPath, globals)
	case "select":
		err = runSelect(cmdArgs, *configPath, globals)
	case "merge":
		err = runMerge(cmdArgs, *configPath, globals)
	case "stats":
		err = runStats(cmdArgs, *configPath, globals)
	default:
		logError("unknown command %q", cmdName)
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}
