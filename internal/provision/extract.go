package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/multierr"
)

const (
	// maxLinkTarget bounds the size of a symlink entry's body.
	maxLinkTarget = 4096

	// maxLinkHops bounds how many symlinks are followed when resolving one.
	maxLinkHops = 255
)

// unzip extracts the zip archive read from r into dest and returns the number
// of regular files written. Entries that would land outside dest are rejected.
//
// Directories and regular files are written first and symlinks last, so no
// write goes through a link taken from the archive. Once every link exists
// each one is resolved on disk and must stay inside dest.
func unzip(ctx context.Context, r io.ReaderAt, size int64, dest string) (int, error) {
	if size <= 0 {
		return 0, errors.New("archive is empty")
	}
	zipReader, err := zip.NewReader(r, size)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return 0, err
	}
	realDest, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return 0, err
	}

	files := 0
	var links []*zip.File
	for _, zipFile := range zipReader.File {
		select {
		case <-ctx.Done():
			return files, ctx.Err()
		default:
		}
		if zipFile.Name == "" {
			return files, errors.New("empty zip file name")
		}
		target, err := safeJoin(dest, zipFile.Name)
		if err != nil {
			return files, err
		}

		mode := zipFile.Mode()
		if mode&fs.ModeSymlink != 0 {
			links = append(links, zipFile)
			continue
		}
		if err := checkNoLinks(dest, target); err != nil {
			return files, err
		}
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return files, err
			}
		case mode.IsRegular():
			if err := extractFile(zipFile, target); err != nil {
				return files, err
			}
			files++
		}
	}

	created := make([]string, 0, len(links))
	for _, zipFile := range links {
		target, err := safeJoin(dest, zipFile.Name)
		if err != nil {
			return files, err
		}
		if err := checkNoLinks(dest, filepath.Dir(target)); err != nil {
			return files, err
		}
		if err := extractSymlink(zipFile, dest, target); err != nil {
			return files, err
		}
		created = append(created, target)
	}
	for _, target := range created {
		if err := checkLinkInside(dest, realDest, target); err != nil {
			return files, err
		}
	}
	return files, nil
}

func extractFile(zipFile *zip.File, target string) (retErr error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	perm := zipFile.Mode().Perm()
	if perm == 0 {
		perm = 0644
	}
	readCloser, err := zipFile.Open()
	if err != nil {
		return err
	}
	defer func() {
		retErr = multierr.Append(retErr, readCloser.Close())
	}()
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|0200)
	if err != nil {
		return err
	}
	defer func() {
		retErr = multierr.Append(retErr, out.Close())
	}()
	_, err = io.Copy(out, readCloser)
	return err
}

func extractSymlink(zipFile *zip.File, dest, target string) (retErr error) {
	readCloser, err := zipFile.Open()
	if err != nil {
		return err
	}
	defer func() {
		retErr = multierr.Append(retErr, readCloser.Close())
	}()
	data, err := io.ReadAll(io.LimitReader(readCloser, maxLinkTarget))
	if err != nil {
		return err
	}
	link := string(data)
	if filepath.IsAbs(link) {
		return fmt.Errorf("symlink %s points outside the archive: %s", zipFile.Name, link)
	}
	resolved := filepath.Join(filepath.Dir(target), link)
	if !within(dest, resolved) {
		return fmt.Errorf("symlink %s points outside the archive: %s", zipFile.Name, link)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if info, err := os.Lstat(target); err == nil && info.IsDir() {
		return fmt.Errorf("symlink %s would replace a directory", zipFile.Name)
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.Symlink(link, target)
}

// safeJoin joins an archive entry name onto dest, refusing names that are
// absolute or climb out of dest.
func safeJoin(dest, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("unsafe path in archive: %s", name)
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !within(dest, target) {
		return "", fmt.Errorf("unsafe path in archive: %s", name)
	}
	return target, nil
}

// checkNoLinks fails if any existing component of path below dest, path
// included, is a symlink.
func checkNoLinks(dest, path string) error {
	rel, err := filepath.Rel(dest, path)
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	cur := dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("unsafe path in archive: %s goes through a symlink", rel)
		}
	}
	return nil
}

// checkLinkInside resolves the symlink at target against the files on disk
// and fails if it leads outside realDest. Components that do not exist are
// taken as they are written.
func checkLinkInside(dest, realDest, target string) error {
	rel, err := filepath.Rel(dest, filepath.Dir(target))
	if err != nil {
		return err
	}
	link, err := os.Readlink(target)
	if err != nil {
		return err
	}
	hops := 0
	resolved, err := resolveLink(filepath.Join(realDest, rel), link, &hops)
	if err != nil {
		return fmt.Errorf("symlink %s: %w", target, err)
	}
	if !within(realDest, resolved) {
		return fmt.Errorf("symlink %s points outside the archive: %s", target, link)
	}
	return nil
}

// resolveLink walks link component by component starting at dir, following
// every symlink it meets.
func resolveLink(dir, link string, hops *int) (string, error) {
	if filepath.IsAbs(link) {
		return "", fmt.Errorf("absolute link %s", link)
	}
	cur := dir
	missing := false
	for _, part := range strings.Split(filepath.ToSlash(link), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			continue
		}
		next := filepath.Join(cur, part)
		if missing {
			cur = next
			continue
		}
		info, err := os.Lstat(next)
		if errors.Is(err, fs.ErrNotExist) {
			missing = true
			cur = next
			continue
		}
		if err != nil {
			return "", err
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			cur = next
			continue
		}
		*hops++
		if *hops > maxLinkHops {
			return "", errors.New("too many levels of symlinks")
		}
		inner, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		if cur, err = resolveLink(cur, inner, hops); err != nil {
			return "", err
		}
	}
	return cur, nil
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
