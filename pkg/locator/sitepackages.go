// SPDX-License-Identifier: MPL-2.0

package locator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mcwrap/mcwrap/pkg/manifest"
)

const (
	distInfoSuffix = ".dist-info"
	metadataFile   = "METADATA"
	directURLFile  = "direct_url.json"
	topLevelFile   = "top_level.txt"
)

type (
	// SitePackages discovers packages from one or more Python site-packages
	// directories. Earlier directories take precedence on name collisions.
	SitePackages struct {
		Dirs []string
	}

	// directURL is the PEP 610 record pip writes for URL and editable installs.
	directURL struct {
		URL     string `json:"url"`
		DirInfo *struct {
			Editable bool `json:"editable"`
		} `json:"dir_info"`
	}
)

// NewSitePackages creates a SitePackages scanner over dirs.
func NewSitePackages(dirs ...string) *SitePackages {
	return &SitePackages{Dirs: dirs}
}

// ListInstalledCandidates yields one Candidate per *.dist-info directory, in
// directory order and then name order. Unreadable site directories are
// skipped silently; a dist-info without a Name header yields an error.
func (s *SitePackages) ListInstalledCandidates(ctx context.Context) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		for _, dir := range s.Dirs {
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, entry := range entries {
				if ctx.Err() != nil {
					return
				}
				if !entry.IsDir() || !strings.HasSuffix(entry.Name(), distInfoSuffix) {
					continue
				}
				c, err := readCandidate(dir, filepath.Join(dir, entry.Name()))
				if !yield(c, err) {
					return
				}
			}
		}
	}
}

// ResolveSourceRoot returns the live development directory for editable
// installs and the installed location otherwise. A link record that exists
// but cannot be read or parsed yields a *LocatorError.
func (s *SitePackages) ResolveSourceRoot(c Candidate) (string, error) {
	if c.LinkRecord == "" {
		return c.InstalledPath, nil
	}

	data, err := os.ReadFile(c.LinkRecord)
	if err != nil {
		return "", &LocatorError{Package: c.Name, Record: c.LinkRecord, Cause: err}
	}
	var rec directURL
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", &LocatorError{Package: c.Name, Record: c.LinkRecord, Cause: err}
	}
	if rec.DirInfo == nil || !rec.DirInfo.Editable {
		return c.InstalledPath, nil
	}

	path, err := fileURLPath(rec.URL)
	if err != nil {
		return "", &LocatorError{Package: c.Name, Record: c.LinkRecord, Cause: err}
	}
	return path, nil
}

func readCandidate(siteDir, distInfo string) (Candidate, error) {
	c := Candidate{MetadataDir: distInfo}

	name, version, err := readMetadata(filepath.Join(distInfo, metadataFile))
	if err != nil {
		// Fall back to the directory name so the failure can be attributed.
		base := strings.TrimSuffix(filepath.Base(distInfo), distInfoSuffix)
		if dash := strings.IndexByte(base, '-'); dash > 0 {
			base = base[:dash]
		}
		c.Name = manifest.NormalizeName(base)
		return c, fmt.Errorf("read metadata %s: %w", distInfo, err)
	}
	c.Name = manifest.NormalizeName(name)
	c.Version = version

	c.InstalledPath = filepath.Join(siteDir, importName(distInfo, name))

	record := filepath.Join(distInfo, directURLFile)
	if _, err := os.Stat(record); err == nil {
		c.LinkRecord = record
	}
	return c, nil
}

// readMetadata extracts the Name and Version headers from a core metadata file.
func readMetadata(path string) (name, version string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			// Headers end at the first blank line; the body is the description.
			break
		}
		if v, ok := strings.CutPrefix(line, "Name:"); ok {
			name = strings.TrimSpace(v)
		} else if v, ok := strings.CutPrefix(line, "Version:"); ok {
			version = strings.TrimSpace(v)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", "", err
	}
	if name == "" {
		return "", "", errors.New("missing Name header")
	}
	return name, version, nil
}

// importName returns the top-level directory a regular install creates,
// preferring top_level.txt over the distribution name.
func importName(distInfo, distName string) string {
	if data, err := os.ReadFile(filepath.Join(distInfo, topLevelFile)); err == nil {
		for line := range strings.Lines(string(data)) {
			if line = strings.TrimSpace(line); line != "" {
				return line
			}
		}
	}
	return strings.ReplaceAll(manifest.NormalizeName(distName), "-", "_")
}

func fileURLPath(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported editable url scheme %q", u.Scheme)
	}
	path := u.Path
	if runtime.GOOS == "windows" {
		// file:///C:/dev/pkg parses to "/C:/dev/pkg".
		path = strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return "", fmt.Errorf("empty path in editable url %q", raw)
	}
	return filepath.Clean(filepath.FromSlash(path)), nil
}
