package psarc

import (
	"fmt"
	"strings"
)

// ResolveManifest decompresses the archive's manifest (entry 0 by
// convention), a newline-separated list of logical paths, and matches each
// path's digest against the table of contents.
//
// Entries that no manifest line hashes to are collected as orphans and
// logged, not treated as fatal: they stay listable and extractable by
// digest. Two manifest lines hashing to the same entry indicate a corrupt
// manifest and fail the resolve.
func (a *Archive) ResolveManifest() error {
	if len(a.entries) == 0 {
		return ErrNoManifest
	}

	manifest, err := a.Extract(&a.entries[0])
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(manifest), "\n"), "\n")
	a.byPath = make(map[string]int, len(lines))

	claimed := make(map[NameDigest]string, len(lines))
	for _, line := range lines {
		path := strings.TrimRight(line, "\r")
		if path == "" {
			continue
		}
		digest := HashPath(path)
		if prev, ok := claimed[digest]; ok {
			return fmt.Errorf("psarc: manifest paths %q and %q hash to the same entry %s", prev, path, digest)
		}
		claimed[digest] = path

		i, ok := a.byDigest[digest]
		if !ok {
			return fmt.Errorf("%w: manifest path %q matches no entry", ErrCorruptEntry, path)
		}
		a.entries[i].Path = path
		a.byPath[NormalizePath(path)] = i
	}

	// Entry 0 is the manifest itself and never appears in its own listing.
	a.orphans = a.orphans[:0]
	for i := 1; i < len(a.entries); i++ {
		if a.entries[i].Path == "" {
			a.orphans = append(a.orphans, a.entries[i].Digest)
			a.log().Warn("orphan entry", "digest", a.entries[i].Digest.String(), "err", ErrUnresolvedHash)
		}
	}

	return nil
}
