// Package staticassets collects static files from source directories into a
// content-addressed deployment root, the way the application's web tier
// expects them (hashed filenames plus a manifest mapping logical paths).
package staticassets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ManifestName is the manifest file written into the static root.
const ManifestName = "staticfiles.json"

// hashLen is the number of hex chars of the content hash embedded in filenames.
const hashLen = 12

// Manifest maps logical asset paths to their hashed filenames.
type Manifest struct {
	Paths map[string]string `json:"paths"`
}

// Result summarizes one collection run.
type Result struct {
	Copied  int
	Skipped int // shadowed by an earlier source directory
}

// Collector copies assets from Sources (in precedence order; first wins) into Root.
type Collector struct {
	fs      afero.Fs
	sources []string
	root    string
	log     *zap.Logger
}

// NewCollector returns a collector over the given filesystem. Tests pass an
// afero.MemMapFs; production passes afero.NewOsFs().
func NewCollector(fs afero.Fs, sources []string, root string, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{fs: fs, sources: sources, root: root, log: log}
}

// Collect walks every source directory, copies each file to the root under
// both its logical path and a content-hashed name, and writes the manifest.
// Earlier source directories shadow later ones for the same logical path.
func (c *Collector) Collect(ctx context.Context) (Result, error) {
	var res Result
	if c.root == "" {
		return res, fmt.Errorf("static root is not configured")
	}
	if len(c.sources) == 0 {
		return res, fmt.Errorf("no static source directories configured")
	}
	if err := c.fs.MkdirAll(c.root, 0o755); err != nil {
		return res, fmt.Errorf("create static root: %w", err)
	}

	manifest := Manifest{Paths: make(map[string]string)}
	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		exists, err := afero.DirExists(c.fs, src)
		if err != nil {
			return res, err
		}
		if !exists {
			c.log.Warn("static source directory missing", zap.String("dir", src))
			continue
		}
		err = afero.Walk(c.fs, src, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(src, p)
			if err != nil {
				return err
			}
			logical := filepath.ToSlash(rel)
			if _, seen := manifest.Paths[logical]; seen {
				res.Skipped++
				return nil
			}
			hashed, err := c.copyFile(p, logical)
			if err != nil {
				return err
			}
			manifest.Paths[logical] = hashed
			res.Copied++
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("walk %s: %w", src, err)
		}
	}

	if err := c.writeManifest(manifest); err != nil {
		return res, err
	}
	c.log.Info("static collection finished",
		zap.Int("copied", res.Copied),
		zap.Int("skipped", res.Skipped),
		zap.String("root", c.root))
	return res, nil
}

// copyFile writes the asset under its logical path and its hashed twin.
// Returns the hashed logical path.
func (c *Collector) copyFile(src, logical string) (string, error) {
	data, err := afero.ReadFile(c.fs, src)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	hashed := hashedName(logical, hex.EncodeToString(sum[:])[:hashLen])

	for _, target := range []string{logical, hashed} {
		full := filepath.Join(c.root, filepath.FromSlash(target))
		if err := c.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", err
		}
		if err := afero.WriteFile(c.fs, full, data, 0o644); err != nil {
			return "", err
		}
	}
	return hashed, nil
}

func (c *Collector) writeManifest(m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(c.fs, filepath.Join(c.root, ManifestName), data, 0o644)
}

// hashedName inserts the hash before the extension: css/app.css -> css/app.3f2a9b1c4d5e.css.
func hashedName(logical, hash string) string {
	dir, file := path.Split(logical)
	ext := path.Ext(file)
	base := strings.TrimSuffix(file, ext)
	return dir + base + "." + hash + ext
}

// Verify checks that the static root exists and holds a parseable manifest.
// Returns the number of manifest entries.
func Verify(fs afero.Fs, root string) (int, error) {
	exists, err := afero.DirExists(fs, root)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("static root %s does not exist (run collect-static)", root)
	}
	data, err := afero.ReadFile(fs, filepath.Join(root, ManifestName))
	if err != nil {
		return 0, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return 0, fmt.Errorf("parse manifest: %w", err)
	}
	return len(m.Paths), nil
}
