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

// Package xerrors provides the typed error taxonomy used throughout the
// selection engine. Every kind maps to a recovery policy documented at its
// call site; callers should use errors.As to recover a *Error and branch on
// Kind rather than matching error strings.
package xerrors

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure with a known recovery policy.
type Kind int

const (
	// KindFileUnreadable: stat or read failed. Recovered locally by the
	// caller: omit the file from the current walk, it remains in the baseline.
	KindFileUnreadable Kind = iota
	// KindParseFailure: syntax error in source. Recovered locally by
	// synthesizing a single <module> block from raw bytes.
	KindParseFailure
	// KindStoreCorruption: store file present but unreadable. store.Open
	// returns it to the caller; the store file is not deleted or recreated.
	KindStoreCorruption
	// KindStoreBusy: transient contention with another writer. Retried with
	// bounded backoff.
	KindStoreBusy
	// KindNotFound: remote key absent.
	KindNotFound
	// KindAuthError: remote rejected credentials.
	KindAuthError
	// KindInternal: anything not covered above.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindFileUnreadable:
		return "file_unreadable"
	case KindParseFailure:
		return "parse_failure"
	case KindStoreCorruption:
		return "store_corruption"
	case KindStoreBusy:
		return "store_busy"
	case KindNotFound:
		return "not_found"
	case KindAuthError:
		return "auth_error"
	default:
		return "internal"
	}
}

// Error wraps an underlying cause with a Kind and contextual message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Cause: cause}
}

// FileUnreadable reports that a file could not be stat'd or read.
func FileUnreadable(path string, cause error) *Error {
	return newErr(KindFileUnreadable, "cannot read "+path, cause)
}

// ParseFailure reports a syntax error encountered while extracting blocks.
func ParseFailure(path string, cause error) *Error {
	return newErr(KindParseFailure, "parse failed for "+path, cause)
}

// StoreCorruption reports that the store file is present but unreadable.
func StoreCorruption(path string, cause error) *Error {
	return newErr(KindStoreCorruption, "store corrupted at "+path, cause)
}

// StoreBusy reports transient contention with another writer.
func StoreBusy(cause error) *Error {
	return newErr(KindStoreBusy, "store busy", cause)
}

// NotFound reports that a remote key or store row does not exist.
func NotFound(what string) *Error {
	return newErr(KindNotFound, what+" not found", nil)
}

// AuthError reports that the remote backend rejected credentials.
func AuthError(what string, cause error) *Error {
	return newErr(KindAuthError, "authentication failed for "+what, cause)
}

// Internal wraps an unexpected error with no specific recovery policy.
func Internal(msg string, cause error) *Error {
	return newErr(KindInternal, msg, cause)
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, k Kind) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.Kind == k {
			return true
		}
		err = e.Cause
	}
	return false
}
