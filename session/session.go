// Package session saves rendered views as PNG images with a sidecar file
// recording the view, and restores views from sidecars.
//
// The sidecar has one value per line: frame x, frame y, frame width,
// frame height, maximum iteration, color count and color shift.
package session

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	mandel "github.com/marben/mandel_explorer"
)

// Ext is the sidecar file extension.
const Ext = ".mlf"

const lines = 7

// ErrFormat is returned for malformed sidecars.
var ErrFormat = errors.New("session: malformed sidecar")

// Encode writes the sidecar of req to w.
func Encode(w io.Writer, req mandel.Request) error {
	f := req.Frame
	if f.IsZero() {
		f = mandel.DefaultFrame()
	}
	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n%s\n%d\n%d\n%d",
		f.X.Text('g', -1), f.Y.Text('g', -1), f.Width.Text('g', -1), f.Height.Text('g', -1),
		req.MaxIteration, req.ColorCount, req.ColorShift)
	return err
}

// Decode reads a sidecar. The sidecar does not record the image size, so the
// returned request targets width x height.
func Decode(r io.Reader, width, height int) (mandel.Request, error) {
	var values []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		v := strings.TrimSpace(sc.Text())
		if v == "" {
			continue
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return mandel.Request{}, fmt.Errorf("session: read: %w", err)
	}
	if len(values) != lines {
		return mandel.Request{}, fmt.Errorf("%w: %d values, want %d", ErrFormat, len(values), lines)
	}

	frame, err := mandel.ParseFrame(values[0], values[1], values[2], values[3])
	if err != nil {
		return mandel.Request{}, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	var ints [3]int
	for i, name := range []string{"max iteration", "color count", "color shift"} {
		n, err := strconv.Atoi(values[4+i])
		if err != nil {
			return mandel.Request{}, fmt.Errorf("%w: %s: %w", ErrFormat, name, err)
		}
		ints[i] = n
	}

	req := mandel.Request{
		Frame:        frame,
		MaxIteration: ints[0],
		ColorCount:   ints[1],
		ColorShift:   ints[2],
		Width:        width,
		Height:       height,
	}
	return req.Normalize(), nil
}

// SidecarPath returns the sidecar path of an image path: its extension
// replaced by Ext.
func SidecarPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + Ext
}

// Export writes img as PNG to imagePath and the sidecar of req next to it.
func Export(imagePath string, img image.Image, req mandel.Request) error {
	if err := writeFile(imagePath, func(w io.Writer) error { return png.Encode(w, img) }); err != nil {
		return fmt.Errorf("session: export image: %w", err)
	}

	sidecar := SidecarPath(imagePath)
	if err := writeFile(sidecar, func(w io.Writer) error { return Encode(w, req) }); err != nil {
		return fmt.Errorf("session: export sidecar: %w", err)
	}

	mandel.Logger().Info("session exported", "image", imagePath, "sidecar", sidecar)
	return nil
}

// Load reads the sidecar at path. path may also name the exported image.
func Load(path string, width, height int) (mandel.Request, error) {
	if filepath.Ext(path) != Ext {
		path = SidecarPath(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return mandel.Request{}, fmt.Errorf("session: %w", err)
	}
	defer f.Close()

	req, err := Decode(f, width, height)
	if err != nil {
		return mandel.Request{}, fmt.Errorf("%s: %w", path, err)
	}
	return req, nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		return err
	}
	return bw.Flush()
}
