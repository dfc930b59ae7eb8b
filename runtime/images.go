package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/petal-labs/multitool/core"
)

// ImageExt is appended to every image name (prefix).
const ImageExt = ".exe"

// ErrImageMismatch is returned when a loaded image was built for a
// different tool or target.
var ErrImageMismatch = errors.New("runtime: image does not match")

// ImageStore saves and loads executable images as files. Relative names
// resolve against Dir when it is set.
type ImageStore struct {
	Dir string
}

// Path returns the file path for an image name.
func (s *ImageStore) Path(name string) string {
	clean := filepath.Clean(strings.TrimSpace(name))
	if s != nil && s.Dir != "" && !filepath.IsAbs(clean) {
		clean = filepath.Join(s.Dir, clean)
	}
	return clean + ImageExt
}

// Save writes img under name and returns the file path.
func (s *ImageStore) Save(name string, img core.Image) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("runtime: image name is required")
	}
	path := s.Path(name)
	data, err := json.Marshal(img)
	if err != nil {
		return "", fmt.Errorf("runtime: encoding image: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("runtime: creating image directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("runtime: writing image: %w", err)
	}
	return path, nil
}

// Load reads the image saved under name and checks that it was built by
// tool for target.
func (s *ImageStore) Load(name, tool string, target core.Target) (core.Image, error) {
	path := s.Path(name)
	// #nosec G304 -- path is the user-supplied --load-exe prefix.
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Image{}, fmt.Errorf("runtime: reading image: %w", err)
	}
	var img core.Image
	if err := json.Unmarshal(data, &img); err != nil {
		return core.Image{}, fmt.Errorf("runtime: decoding image %s: %w", path, err)
	}
	if img.Tool != tool {
		return core.Image{}, fmt.Errorf("%w: %s was built by tool %q, not %q", ErrImageMismatch, path, img.Tool, tool)
	}
	if img.Target != target {
		return core.Image{}, fmt.Errorf("%w: %s targets %d device(s) simulated=%t, requested %d simulated=%t",
			ErrImageMismatch, path, img.Target.DeviceCount, img.Target.Simulated, target.DeviceCount, target.Simulated)
	}
	return img, nil
}
