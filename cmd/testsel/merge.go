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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kraklabs/testsel/internal/ui"
	"github.com/kraklabs/testsel/pkg/merge"
	"github.com/kraklabs/testsel/pkg/remote"
	"github.com/kraklabs/testsel/pkg/store"
)

// runMerge implements §6's CLI surface: `testsel merge <output> <input>...`.
func runMerge(args []string, _ string, globals GlobalFlags) error {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return fmt.Errorf("usage: testsel merge <output> <input>...")
	}
	output := rest[0]
	inputs := rest[1:]
	ctx := context.Background()

	localInputs, cleanup, err := resolveInputs(ctx, inputs)
	defer cleanup()
	if err != nil {
		return err
	}
	if len(localInputs) == 0 {
		return fmt.Errorf("no .db files resolved from input set")
	}

	destPath, uploadTo, cleanupDest, err := resolveOutput(output)
	defer cleanupDest()
	if err != nil {
		return err
	}

	dest, err := store.Open(destPath, store.DefaultBatchSize, nil)
	if err != nil {
		return err
	}
	defer dest.Close()

	summary, err := merge.Run(dest, localInputs, nil)
	if err != nil {
		return err
	}
	for _, w := range summary.Warnings {
		ui.Warning(w)
	}
	for _, f := range summary.Failed {
		ui.Warningf("could not merge source %s", f)
	}

	if uploadTo != nil {
		if err := uploadTo.backend.Upload(ctx, destPath, uploadTo.key); err != nil {
			return err
		}
	}

	if !globals.Quiet {
		ui.Header("merge complete")
		ui.CountText(summary.BaselineCount, "baselines merged")
		ui.CountText(summary.TestExecutionCount, "test executions merged")
	}
	return nil
}

// resolveInputs expands the CLI's input arguments (local file, local
// directory, remote prefix URL, remote single-object URL) into local .db
// paths, per §6's merge CLI contract.
func resolveInputs(ctx context.Context, inputs []string) ([]string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "testsel-merge-inputs-")
	if err != nil {
		return nil, func() {}, err
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	var out []string
	for i, in := range inputs {
		if !strings.Contains(in, "://") {
			info, statErr := os.Stat(in)
			if statErr != nil {
				return nil, cleanup, statErr
			}
			if info.IsDir() {
				matches, globErr := filepath.Glob(filepath.Join(in, "*.db"))
				if globErr != nil {
					return nil, cleanup, globErr
				}
				out = append(out, matches...)
			} else {
				out = append(out, in)
			}
			continue
		}

		loc, err := remote.ParseLocation(in)
		if err != nil {
			return nil, cleanup, err
		}
		backend, err := openBackend(ctx, loc)
		if err != nil {
			return nil, cleanup, err
		}
		if loc.IsPrefix {
			paths, err := backend.DownloadAll(ctx, filepath.Join(tmpDir, fmt.Sprintf("src%d", i)), loc.Key)
			if err != nil {
				return nil, cleanup, err
			}
			out = append(out, paths...)
		} else {
			dst := filepath.Join(tmpDir, fmt.Sprintf("src%d.db", i))
			if _, err := backend.Download(ctx, loc.Key, dst); err != nil {
				return nil, cleanup, err
			}
			out = append(out, dst)
		}
	}
	return out, cleanup, nil
}

type uploadTarget struct {
	backend remote.Backend
	key     string
}

// resolveOutput returns a local path to write the merged store to, and
// (for a remote output) the backend/key to upload it to on success.
func resolveOutput(output string) (localPath string, target *uploadTarget, cleanup func(), err error) {
	cleanup = func() {}
	if !strings.Contains(output, "://") {
		return output, nil, cleanup, nil
	}

	loc, err := remote.ParseLocation(output)
	if err != nil {
		return "", nil, cleanup, err
	}
	tmp, err := os.CreateTemp("", "testsel-merge-output-*.db")
	if err != nil {
		return "", nil, cleanup, err
	}
	tmp.Close()
	cleanup = func() { os.Remove(tmp.Name()) }

	backend, err := openBackend(context.Background(), loc)
	if err != nil {
		return "", nil, cleanup, err
	}
	return tmp.Name(), &uploadTarget{backend: backend, key: loc.Key}, cleanup, nil
}

func openBackend(ctx context.Context, loc remote.Location) (remote.Backend, error) {
	switch loc.Scheme {
	case "file":
		return &remote.LocalFSBackend{BaseDir: "/"}, nil
	case "s3":
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		return &remote.S3Backend{Client: s3.NewFromConfig(cfg), Bucket: loc.Bucket}, nil
	default:
		return nil, fmt.Errorf("unsupported URL scheme %q", loc.Scheme)
	}
}
