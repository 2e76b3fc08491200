package source

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// DirProvider reads pre-extracted frames from a directory, in lexical order.
// The expected layout is what ffmpeg produces with a frame_%04d.jpg pattern.
type DirProvider struct {
	dir   string
	files []string
	pos   int

	// First frame is decoded at Open to learn the dimensions; it is
	// handed out by the first Next call instead of being decoded twice.
	pending image.Image
}

// NewDirProvider creates a provider over a directory of frame images.
func NewDirProvider(dir string) *DirProvider {
	return &DirProvider{dir: dir}
}

// Open lists the frame files and decodes the first one for dimensions.
func (p *DirProvider) Open() (int, int, error) {
	for _, pattern := range []string{"*.jpg", "*.jpeg", "*.png"} {
		matches, err := filepath.Glob(filepath.Join(p.dir, pattern))
		if err != nil {
			return 0, 0, err
		}
		p.files = append(p.files, matches...)
	}
	if len(p.files) == 0 {
		return 0, 0, fmt.Errorf("no frame images in %s", p.dir)
	}
	sort.Strings(p.files)

	img, err := decodeFile(p.files[0])
	if err != nil {
		return 0, 0, fmt.Errorf("decode first frame: %w", err)
	}
	p.pending = img
	return img.Bounds().Dx(), img.Bounds().Dy(), nil
}

// Next returns the next frame image, or io.EOF when all files are consumed.
func (p *DirProvider) Next() (image.Image, error) {
	if p.pending != nil {
		img := p.pending
		p.pending = nil
		p.pos = 1
		return img, nil
	}
	if p.pos >= len(p.files) {
		return nil, io.EOF
	}
	img, err := decodeFile(p.files[p.pos])
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", p.files[p.pos], err)
	}
	p.pos++
	return img, nil
}

// Count returns the total number of frame files.
func (p *DirProvider) Count() int {
	return len(p.files)
}

// Close releases nothing; files are opened per frame.
func (p *DirProvider) Close() error { return nil }

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}
