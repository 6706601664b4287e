// Command psarcex lists and extracts entries from .psarc archives.
//
// Usage:
//
//	psarcex -l archive.psarc             list resolved paths and orphans
//	psarcex -x archive.psarc             extract every entry
//	psarcex -x -p path archive.psarc     extract one entry by logical path
//	psarcex -x -hash digest archive.psarc  extract one orphan by hex digest
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tversteeg/rockysmithereens/psarc"
)

var (
	listFlag    = flag.Bool("l", false, "list archive entries")
	extractFlag = flag.Bool("x", false, "extract entries")
	pathFlag    = flag.String("p", "", "extract only this logical path")
	hashFlag    = flag.String("hash", "", "extract only the entry with this hex digest")
	outDir      = flag.String("o", ".", "output directory for extracted files")
	verbose     = flag.Bool("v", false, "verbose logging")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 || (!*listFlag && !*extractFlag) {
		fmt.Fprintln(os.Stderr, "usage: psarcex [-l] [-x] [-p path | -hash digest] [-o dir] archive.psarc")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(flag.Arg(0), logger); err != nil {
		logger.Error("psarcex failed", "err", err)
		os.Exit(1)
	}
}

func run(archivePath string, logger *slog.Logger) error {
	src, err := psarc.OpenFile(archivePath)
	if err != nil {
		return err
	}
	defer src.Close()

	archive, err := psarc.Open(src, psarc.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := archive.ResolveManifest(); err != nil {
		return err
	}

	if *listFlag {
		list(archive)
	}
	if !*extractFlag {
		return nil
	}

	switch {
	case *pathFlag != "":
		data, err := archive.ReadFile(*pathFlag)
		if err != nil {
			return err
		}
		return writeOut(filepath.Base(*pathFlag), data)
	case *hashFlag != "":
		digest, err := psarc.ParseDigest(*hashFlag)
		if err != nil {
			return fmt.Errorf("bad digest %q: %w", *hashFlag, err)
		}
		data, err := archive.ReadFileByDigest(digest)
		if err != nil {
			return err
		}
		return writeOut(digest.String(), data)
	default:
		return extractAll(archive, logger)
	}
}

func list(archive *psarc.Archive) {
	for _, path := range archive.Paths() {
		entry, _ := archive.EntryByPath(path)
		fmt.Printf("%10d  %s\n", entry.UncompressedSize, path)
	}
	for _, digest := range archive.Orphans() {
		entry, _ := archive.EntryByDigest(digest)
		fmt.Printf("%10d  <orphan %s>\n", entry.UncompressedSize, digest)
	}
}

// extractAll dumps every entry: resolved entries under their logical path,
// orphans under their digest.
func extractAll(archive *psarc.Archive, logger *slog.Logger) error {
	for _, path := range archive.Paths() {
		data, err := archive.ReadFile(path)
		if err != nil {
			return err
		}
		if err := writeOut(filepath.FromSlash(psarc.NormalizePath(path)), data); err != nil {
			return err
		}
		logger.Debug("extracted", "path", path, "bytes", len(data))
	}
	for _, digest := range archive.Orphans() {
		data, err := archive.ReadFileByDigest(digest)
		if err != nil {
			return err
		}
		if err := writeOut(filepath.Join("orphans", digest.String()), data); err != nil {
			return err
		}
		logger.Debug("extracted orphan", "digest", digest, "bytes", len(data))
	}
	return nil
}

func writeOut(rel string, data []byte) error {
	dest := filepath.Join(*outDir, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}
