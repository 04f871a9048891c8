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

// Package merge implements the merge/import engine of 4.H: folding one or
// more external store files into a destination store, warning once on
// conflicting commit identifiers and tolerating per-source failure.
package merge

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kraklabs/testsel/internal/slogx"
	"github.com/kraklabs/testsel/pkg/store"
)

const baselineCommitKey = "baseline_commit"

// Summary aggregates the rows folded in and any failures tolerated along
// the way.
type Summary struct {
	BaselineCount      int
	TestExecutionCount int
	Warnings           []string
	Failed             []string // source paths that could not be merged
}

// Run folds each of sources into dest, per 4.H. One source failing does not
// abort the rest (partial-failure semantics): it is logged and recorded in
// Summary.Failed, and the destination is left valid.
func Run(dest *store.Store, sources []string, logger *slog.Logger) (Summary, error) {
	log := slogx.Default(logger)
	var summary Summary

	commitsBySource := make(map[string]string, len(sources))
	for _, src := range sources {
		commit, ok, err := dest.GetExternalMetadata(src, baselineCommitKey)
		if err != nil {
			log.Warn("merge.read_commit_failed", "source", src, "error", err)
			continue
		}
		if ok {
			commitsBySource[src] = commit
		}
	}
	if w := commitMismatchWarning(commitsBySource); w != "" {
		summary.Warnings = append(summary.Warnings, w)
		log.Warn("merge.commit_mismatch", "detail", w)
	}

	for _, src := range sources {
		result, err := dest.MergeBaselineFrom(src)
		if err != nil {
			log.Warn("merge.source_failed", "source", src, "error", err)
			summary.Failed = append(summary.Failed, src)
			continue
		}
		summary.BaselineCount += result.BaselineCount
		summary.TestExecutionCount += result.TestExecutionCount
	}

	return summary, nil
}

// commitMismatchWarning builds 4.H's single warning listing abbreviated
// commits and file counts, or "" if every source agrees (or none carry a
// baseline_commit at all).
func commitMismatchWarning(commitsBySource map[string]string) string {
	counts := make(map[string]int)
	for _, commit := range commitsBySource {
		counts[commit]++
	}
	if len(counts) <= 1 {
		return ""
	}

	commits := make([]string, 0, len(counts))
	for c := range counts {
		commits = append(commits, c)
	}
	sort.Strings(commits)

	parts := make([]string, 0, len(commits))
	for _, c := range commits {
		short := c
		if len(short) > 8 {
			short = short[:8]
		}
		parts = append(parts, fmt.Sprintf("%s (%d file%s)", short, counts[c], plural(counts[c])))
	}
	return "merging sources with conflicting baseline_commit: " + strings.Join(parts, ", ")
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
