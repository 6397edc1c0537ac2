package classpath

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Jar finds classes inside a zip archive. Entries are indexed when the
// archive is opened and decompressed on demand.
type Jar struct {
	path    string
	rc      *zip.ReadCloser
	entries map[string]*zip.File
}

// OpenJar opens an archive and indexes its .class entries.
func OpenJar(path string) (*Jar, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	j := &Jar{path: path, rc: rc, entries: make(map[string]*zip.File)}
	for _, f := range rc.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".class") {
			continue
		}
		j.entries[strings.TrimSuffix(f.Name, ".class")] = f
	}
	log.Debugf("indexed %d classes in %s", len(j.entries), path)
	return j, nil
}

func (j *Jar) Find(name string) ([]byte, error) {
	f, ok := j.entries[name]
	if !ok {
		return nil, notFound(name)
	}
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%s!%s: %w", j.path, f.Name, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s!%s: %w", j.path, f.Name, err)
	}
	return data, nil
}

// Len returns the number of indexed classes.
func (j *Jar) Len() int {
	return len(j.entries)
}

func (j *Jar) Close() error {
	return j.rc.Close()
}
