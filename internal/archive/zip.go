// Package archive implements the on-rotation and on-merge compression
// steps (spec.md §4.F step 5a and §4.G): zipping a single bucket file
// in place, and consolidating a day's worth of zipped buckets into one
// archive.
//
// archive/zip itself is the standard library's zip writer — no
// third-party zip-container implementation turned up anywhere in the
// retrieved pack (see DESIGN.md). The Deflate algorithm underneath it
// is swapped for klauspost/compress/flate, which the pack uses
// throughout for exactly this purpose: a drop-in, faster
// compress/flate.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/flate"
)

// registerFastDeflate wires klauspost/compress/flate in as the zip
// package's Deflate implementation, once per process.
var registerFastDeflate = sync.OnceFunc(func() {
	zip.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})
})

// ZipAndRemove compresses srcPath into srcPath+".zip" and removes the
// original file. The archive is written to a temporary name and renamed
// into place, so a failure while compressing leaves srcPath untouched
// and no partial ".zip" file behind. If removing srcPath fails after
// the ".zip" is in place, both files remain and an error is returned.
func ZipAndRemove(srcPath string) error {
	registerFastDeflate()

	if _, err := os.Stat(srcPath); err != nil {
		return fmt.Errorf("archive: source missing: %w", err)
	}

	dstPath := srcPath + ".zip"
	tmpPath := dstPath + ".tmp"

	if err := zipSingleFile(srcPath, tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("archive: zip %s: %w", srcPath, err)
	}

	if err := os.Rename(tmpPath, dstPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("archive: finalize %s: %w", dstPath, err)
	}

	if err := os.Remove(srcPath); err != nil {
		return fmt.Errorf("archive: remove source %s after zip: %w", srcPath, err)
	}

	return nil
}

func zipSingleFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	zw := zip.NewWriter(dst)

	entry, err := zw.Create(filepath.Base(srcPath))
	if err != nil {
		zw.Close()
		return err
	}
	if _, err := io.Copy(entry, src); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return dst.Sync()
}

// ConsolidateDay merges every "*.zip" bucket archive under dir into one
// combined archive at destPath, re-zipping each member's single entry
// under a name that disambiguates its originating bucket file. It is
// the file-system half of spec component G (the merge trigger); the
// caller is responsible for dispatch, idempotence bookkeeping, and
// removing dir on success.
func ConsolidateDay(dir, destPath string) error {
	registerFastDeflate()

	members, err := filepath.Glob(filepath.Join(dir, "*.zip"))
	if err != nil {
		return fmt.Errorf("archive: glob %s: %w", dir, err)
	}
	if len(members) == 0 {
		return fmt.Errorf("archive: no bucket archives found under %s", dir)
	}

	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", tmpPath, err)
	}

	zw := zip.NewWriter(out)
	for _, member := range members {
		if err := copyZipEntries(zw, member); err != nil {
			zw.Close()
			out.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("archive: merge %s: %w", member, err)
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("archive: close day archive: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, destPath)
}

// copyZipEntries streams every entry of the bucket archive at srcZip
// straight into zw without a full decompress/recompress round trip.
func copyZipEntries(zw *zip.Writer, srcZip string) error {
	r, err := zip.OpenReader(srcZip)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if err := copyRawEntry(zw, f); err != nil {
			return err
		}
	}
	return nil
}

func copyRawEntry(zw *zip.Writer, f *zip.File) error {
	r, err := f.OpenRaw()
	if err != nil {
		return err
	}

	w, err := zw.CreateRaw(&f.FileHeader)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	return err
}
