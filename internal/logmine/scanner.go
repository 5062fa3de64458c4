package logmine

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// retentionWindow bounds how far back mining looks. Files older than this by
// name-embedded date or by modification time never reach the parser.
const retentionWindow = 30 * 24 * time.Hour

var fileNameDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// LogFile is one scan candidate. Size and ModTime feed the age filter and
// the cache fingerprint; contents are never opened during a scan.
type LogFile struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Scanner lists candidate log files under a directory.
type Scanner struct {
	now func() time.Time
}

func NewScanner() *Scanner {
	return &Scanner{now: time.Now}
}

// ListFiles walks dir recursively and returns every regular file inside the
// retention window, newest modification time first. A file is excluded when
// either its modification time or a date embedded in its name ("2025-01-15")
// falls outside the window. An unreadable directory yields an empty list;
// mining continues with zero files.
func (s *Scanner) ListFiles(dir string) []LogFile {
	if _, err := os.Stat(dir); err != nil {
		return nil
	}

	cutoff := s.now().Add(-retentionWindow)
	var files []LogFile
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			return nil
		}
		if d, ok := nameDate(info.Name()); ok && d.Before(cutoff) {
			return nil
		}
		files = append(files, LogFile{Path: path, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files
}

func nameDate(name string) (time.Time, bool) {
	m := fileNameDate.FindString(name)
	if m == "" {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation("2006-01-02", m, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
