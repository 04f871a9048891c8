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

package xerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesWrappedKind(t *testing.T) {
	base := NotFound("baselines/main.db")
	wrapped := fmt.Errorf("download failed: %w", base)

	assert.True(t, Is(wrapped, KindNotFound))
	assert.False(t, Is(wrapped, KindAuthError))
}

func TestIs_FalseForPlainError(t *testing.T) {
	assert.False(t, Is(errors.New("boom"), KindInternal))
}

func TestUnwrap_ExposesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := StoreCorruption("/tmp/x.db", cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestErrorMessage_IncludesKindAndCause(t *testing.T) {
	err := FileUnreadable("/tmp/missing.py", errors.New("no such file"))
	assert.Contains(t, err.Error(), "file_unreadable")
	assert.Contains(t, err.Error(), "no such file")
}
