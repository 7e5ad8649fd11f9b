package peerstream

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// File is one local file queued for streaming.
type File struct {
	Name string // slash-separated name announced to the peer
	Path string
	Size int64
}

// CollectFiles expands paths into the regular files below them. Files found
// under a directory are named relative to the directory's parent, so the
// directory name is kept on the receiving side.
func CollectFiles(paths []string) ([]File, error) {
	var files []File
	seen := make(map[string]bool)
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			name := filepath.Base(root)
			if seen[name] {
				return nil, fmt.Errorf("duplicate file name %q", name)
			}
			seen[name] = true
			files = append(files, File{Name: name, Path: root, Size: info.Size()})
			continue
		}

		base := filepath.Dir(filepath.Clean(root))
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(base, path)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(rel)
			if seen[name] {
				return fmt.Errorf("duplicate file name %q", name)
			}
			seen[name] = true
			files = append(files, File{Name: name, Path: path, Size: fi.Size()})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// TotalSize sums the sizes of files.
func TotalSize(files []File) int64 {
	var n int64
	for _, f := range files {
		n += f.Size
	}
	return n
}

// localPath maps an announced file name to a path below dir, rejecting names
// that would escape it.
func localPath(dir, name string) (string, error) {
	rel := filepath.FromSlash(name)
	if name == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(dir, rel), nil
}
