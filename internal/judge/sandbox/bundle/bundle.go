// Package bundle encodes build outputs as a portable executable bundle.
package bundle

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	appErr "ojbox/pkg/errors"

	"github.com/klauspost/compress/gzip"
)

// DefaultMaxUnpackedBytes caps the total size extracted from one bundle.
const DefaultMaxUnpackedBytes int64 = 512 << 20

// Bundle is the build output handed back to clients and later executed.
// Files is a gzip-compressed tar archive, base64-encoded in JSON.
type Bundle struct {
	Files      []byte `json:"files"`
	RunCommand string `json:"run_command"`
}

// Validate checks the fields a runner needs.
func (b *Bundle) Validate() error {
	if b == nil {
		return appErr.ValidationError("executable", "required")
	}
	if len(b.Files) == 0 {
		return appErr.ValidationError("executable.files", "required")
	}
	if strings.TrimSpace(b.RunCommand) == "" {
		return appErr.ValidationError("executable.run_command", "required")
	}
	return nil
}

// Pack archives every regular file and directory under dir.
func Pack(dir, runCommand string) (*Bundle, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			hdr := &tar.Header{
				Typeflag: tar.TypeDir,
				Name:     filepath.ToSlash(rel) + "/",
				Mode:     int64(info.Mode().Perm()),
				ModTime:  info.ModTime(),
			}
			return tw.WriteHeader(hdr)
		case info.Mode().IsRegular():
			hdr := &tar.Header{
				Typeflag: tar.TypeReg,
				Name:     filepath.ToSlash(rel),
				Mode:     int64(info.Mode().Perm()),
				Size:     info.Size(),
				ModTime:  info.ModTime(),
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()
			_, err = io.Copy(tw, file)
			return err
		default:
			// symlinks and devices are not carried
			return nil
		}
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.BundlePackFailed, "archive %s", dir)
	}
	if err := tw.Close(); err != nil {
		return nil, appErr.Wrapf(err, appErr.BundlePackFailed, "close tar writer")
	}
	if err := gz.Close(); err != nil {
		return nil, appErr.Wrapf(err, appErr.BundlePackFailed, "close gzip writer")
	}
	return &Bundle{Files: buf.Bytes(), RunCommand: runCommand}, nil
}

// Unpack extracts the archive into dstDir. Entries that would land outside
// dstDir, and archives larger than maxBytes once extracted, are rejected.
func (b *Bundle) Unpack(dstDir string, maxBytes int64) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUnpackedBytes
	}
	gz, err := gzip.NewReader(bytes.NewReader(b.Files))
	if err != nil {
		return appErr.Wrapf(err, appErr.BundleUnpackFailed, "open gzip stream")
	}
	defer gz.Close()

	root := filepath.Clean(dstDir)
	var written int64
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return appErr.Wrapf(err, appErr.BundleUnpackFailed, "read tar entry")
		}
		if hdr.Name == "" {
			continue
		}
		cleanName := filepath.Clean(filepath.FromSlash(hdr.Name))
		if cleanName == "." {
			continue
		}
		if strings.HasPrefix(cleanName, "..") || filepath.IsAbs(cleanName) {
			return appErr.Newf(appErr.BundleUnpackFailed, "invalid entry path %q", hdr.Name)
		}
		target := filepath.Join(root, cleanName)
		if !strings.HasPrefix(target, root+string(filepath.Separator)) {
			return appErr.Newf(appErr.BundleUnpackFailed, "entry %q escapes bundle root", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return appErr.Wrapf(err, appErr.WorkspaceFailed, "create dir %s", cleanName)
			}
		case tar.TypeReg:
			if hdr.Size < 0 || written+hdr.Size > maxBytes {
				return appErr.Newf(appErr.BundleUnpackFailed, "bundle exceeds %d bytes", maxBytes)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return appErr.Wrapf(err, appErr.WorkspaceFailed, "create parent dir for %s", cleanName)
			}
			n, err := writeEntry(target, tr, fs.FileMode(hdr.Mode).Perm(), hdr.Size)
			written += n
			if err != nil {
				return err
			}
		default:
			// skip other types
		}
	}
	return nil
}

func writeEntry(target string, r io.Reader, mode fs.FileMode, size int64) (int64, error) {
	file, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.WorkspaceFailed, "create %s", filepath.Base(target))
	}
	n, copyErr := io.CopyN(file, r, size)
	closeErr := file.Close()
	if copyErr != nil {
		return n, appErr.Wrapf(copyErr, appErr.BundleUnpackFailed, "truncated entry %s", filepath.Base(target))
	}
	if closeErr != nil {
		return n, appErr.Wrapf(closeErr, appErr.WorkspaceFailed, "close %s", filepath.Base(target))
	}
	// OpenFile applies umask; restore the archived permissions.
	if err := os.Chmod(target, mode); err != nil {
		return n, appErr.Wrapf(err, appErr.WorkspaceFailed, "chmod %s", filepath.Base(target))
	}
	return n, nil
}
