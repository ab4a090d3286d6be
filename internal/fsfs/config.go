// Copyright 2026 The FSFS Core Authors
// SPDX-License-Identifier: Apache-2.0

package fsfs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Repository format versions (spec.md §12 item 1). FormatLegacyNodeIds
// uses the "start_node_id + x" global-counter node-id scheme and
// keeps the proto-rev lock inside the transaction directory.
// FormatModernTxnIds uses "_x" -> "x-rev" provisional-id rewriting and
// out-of-tree txn-protorevs/ files.
const (
	FormatLegacyNodeIds = 4
	FormatModernTxnIds  = 7
)

// Params holds the per-repository tunables of spec.md §4.3 and §12.
type Params struct {
	// Format is the repository format version, gating node-id
	// encoding and proto-rev file placement.
	Format int `yaml:"format"`

	// MaxLinearDeltification is the skip-delta chooser's linear
	// window near HEAD (spec.md §4.3).
	MaxLinearDeltification int `yaml:"max_linear_deltification"`

	// MaxDeltificationWalk bounds how far back the skip-delta chooser
	// will walk before giving up and starting a fresh base (spec.md
	// §4.3).
	MaxDeltificationWalk int `yaml:"max_deltification_walk"`

	// MaxFilesPerDir shards revs/ and revprops/ into
	// revs/<rev/max>/<rev> once positive (spec.md §4.7 step 9). Zero
	// disables sharding.
	MaxFilesPerDir int `yaml:"max_files_per_dir"`

	// StampCommitDate overwrites svn:date with the commit-time clock
	// reading to guarantee non-decreasing revision dates (spec.md §12
	// item 2).
	StampCommitDate bool `yaml:"stamp_commit_date"`

	// RepSharingEnabled toggles the rep-cache lookup of spec.md §4.4
	// step 1.
	RepSharingEnabled bool `yaml:"rep_sharing_enabled"`

	// SvndiffVersion selects svndiff0 (0, uncompressed windows) or
	// svndiff1 (1, flate-compressed windows).
	SvndiffVersion int `yaml:"svndiff_version"`
}

// DefaultParams returns the parameters a freshly created repository
// uses when no config file is present or a file supplies only some
// fields.
func DefaultParams() Params {
	return Params{
		Format:                  FormatModernTxnIds,
		MaxLinearDeltification:  4,
		MaxDeltificationWalk:    16 * 1024,
		MaxFilesPerDir:          1000,
		StampCommitDate:         true,
		RepSharingEnabled:       true,
		SvndiffVersion:          1,
	}
}

// LoadParams reads a YAML params file at path, applying DefaultParams
// for any field the file omits and for a missing file entirely — a
// repository with no config file still works.
func LoadParams(path string) (Params, error) {
	params := DefaultParams()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return params, nil
		}
		return Params{}, fmt.Errorf("fsfs: reading params %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &params); err != nil {
		return Params{}, fmt.Errorf("fsfs: parsing params %s: %w", path, err)
	}
	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}

// ModernNodeIds reports whether this repository's format uses the
// "_x" -> "x-rev" provisional node-id scheme.
func (p Params) ModernNodeIds() bool { return p.Format >= FormatModernTxnIds }

// OutOfTreeProtoRevs reports whether this repository's format keeps
// proto-rev files under txn-protorevs/ rather than inside the
// transaction directory.
func (p Params) OutOfTreeProtoRevs() bool { return p.Format >= FormatModernTxnIds }

// Validate checks that Params is internally consistent.
func (p Params) Validate() error {
	if p.MaxLinearDeltification < 0 {
		return fmt.Errorf("fsfs: max_linear_deltification must be >= 0, got %d", p.MaxLinearDeltification)
	}
	if p.MaxDeltificationWalk < p.MaxLinearDeltification {
		return fmt.Errorf("fsfs: max_deltification_walk (%d) must be >= max_linear_deltification (%d)",
			p.MaxDeltificationWalk, p.MaxLinearDeltification)
	}
	if p.SvndiffVersion != 0 && p.SvndiffVersion != 1 {
		return fmt.Errorf("fsfs: svndiff_version must be 0 or 1, got %d", p.SvndiffVersion)
	}
	return nil
}
