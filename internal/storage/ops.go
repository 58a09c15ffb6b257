package storage

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cesargomez89/keepoffline/internal/constants"
	"github.com/cesargomez89/keepoffline/internal/domain"
)

// ErrEmptyTransfer is returned when a completed transfer left no usable data.
var ErrEmptyTransfer = errors.New("transfer produced an empty file")

// EscapeName makes s safe as one file name component. Characters the file
// system rejects, and the separators FileName relies on, are written as
// %XX so distinct inputs never map to the same name.
func EscapeName(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		trailingSpace := c == ' ' && i == len(s)-1
		if c < 0x20 || c == 0x7f || trailingSpace || strings.IndexByte(constants.InvalidPathChars+constants.NameEscapeChars, c) >= 0 {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func dispositionTag(d domain.Disposition) string {
	if d.IsSubtitle() {
		return "subtitle." + EscapeName(d.SubtitleName())
	}
	return EscapeName(string(d))
}

// Extension maps a disposition to the on-disk extension of its file.
func Extension(d domain.Disposition) string {
	switch {
	case d.IsSubtitle():
		return constants.ExtSubtitle
	case d == domain.DispositionVideo, d == domain.DispositionPreview:
		return constants.ExtVideo
	case d == domain.DispositionThumbnails:
		return constants.ExtThumbnails
	default:
		return constants.ExtImage
	}
}

// SourceExtension returns the extension of the source URL's path, or the
// disposition default when the URL has none.
func SourceExtension(sourceURL string, d domain.Disposition) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return Extension(d)
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) < 2 || len(ext) > 6 {
		return Extension(d)
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return Extension(d)
		}
	}
	return ext
}

// FileName builds the flat file name of a download. The job prefix keeps two
// jobs that share an item from writing the same path. Escaped components
// contain no '_' or '.', so the name is unambiguous.
func FileName(jobID, itemID string, d domain.Disposition, sourceURL string) string {
	prefix := jobID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s_%s.%s%s", EscapeName(prefix), EscapeName(itemID), dispositionTag(d), SourceExtension(sourceURL, d))
}

// TempName is where the provider writes while a transfer is in progress.
func TempName(name string) string {
	return name + constants.TempSuffix
}

// Dir is the flat downloads directory.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) Path(name string) string {
	return filepath.Join(d.root, name)
}

// Prepare creates the directory and the sentinel that hides it from media
// scanners.
func (d *Dir) Prepare() error {
	if err := EnsureDir(d.root); err != nil {
		return err
	}
	sentinel := d.Path(constants.SentinelFile)
	if _, err := os.Stat(sentinel); err == nil {
		return nil
	}
	return os.WriteFile(sentinel, nil, constants.FilePermissions)
}

// Size returns the size of a file and whether it exists.
func (d *Dir) Size(name string) (int64, bool) {
	info, err := os.Stat(d.Path(name))
	if err != nil || info.IsDir() {
		return 0, false
	}
	return info.Size(), true
}

// Promote renames the temp file over its final name and returns the final
// size. An empty or missing temp file is ErrEmptyTransfer; any other file
// system error is returned as is.
func (d *Dir) Promote(name string) (int64, error) {
	tmp := d.Path(TempName(name))
	info, err := os.Stat(tmp)
	if err != nil {
		if !os.IsNotExist(err) {
			return 0, fmt.Errorf("failed to stat %s: %w", tmp, err)
		}
		// The provider may have already written the final name.
		if size, ok := d.Size(name); ok && size > 0 {
			return size, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrEmptyTransfer, name)
	}
	if info.Size() == 0 {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("%w: %s", ErrEmptyTransfer, name)
	}
	if err := MoveFile(tmp, d.Path(name)); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Remove deletes a file, treating a missing file as success.
func (d *Dir) Remove(name string) error {
	if err := os.Remove(d.Path(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveWithTemp deletes both the final and the temp file of a download.
func (d *Dir) RemoveWithTemp(name string) error {
	return errors.Join(d.Remove(name), d.Remove(TempName(name)))
}

// List returns the names of the regular files in the directory.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func EnsureDir(path string) error {
	return os.MkdirAll(path, constants.DirPermissions)
}

func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}
	return nil
}
