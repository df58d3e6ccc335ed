// Package archive produces the final distributable artifact: a compressed
// tar archive of a successful target's staged build outputs plus a content
// checksum.
package archive

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Format selects the archive compression algorithm.
type Format string

const (
	FormatGzip Format = "gzip"
	FormatZstd Format = "zstd"
)

// Extension returns the archive filename extension for the format.
func (f Format) Extension() string {
	switch f {
	case FormatZstd:
		return ".tar.zst"
	default:
		return ".tar.gz"
	}
}

// Create writes a compressed tar archive of the tree rooted at root to
// outPath. Archive entries carry fixed timestamps and ownership so the same
// tree always produces byte-identical output.
func Create(root, outPath string, format Format) (err error) {
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
	}()

	var compressor io.WriteCloser
	switch format {
	case FormatZstd:
		compressor, err = zstd.NewWriter(out)
		if err != nil {
			return err
		}
	case FormatGzip:
		compressor = gzip.NewWriter(out)
	default:
		return fmt.Errorf("unsupported archive format %q", format)
	}

	if err := writeTar(compressor, root); err != nil {
		compressor.Close()
		return err
	}
	return compressor.Close()
}

// writeTar tars the tree at root. WalkDir visits entries in lexical order,
// which keeps the layout deterministic.
func writeTar(w io.Writer, root string) error {
	tw := tar.NewWriter(w)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		// Normalize everything host-specific for reproducible output.
		hdr.ModTime = time.Unix(0, 0)
		hdr.AccessTime = time.Time{}
		hdr.ChangeTime = time.Time{}
		hdr.Uid = 0
		hdr.Gid = 0
		hdr.Uname = ""
		hdr.Gname = ""

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}
	return tw.Close()
}

// Checksum returns the hex-encoded SHA-256 digest of the file at path.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
