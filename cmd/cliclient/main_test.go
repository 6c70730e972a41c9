package main

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mandel "github.com/marben/mandel_explorer"
	"github.com/marben/mandel_explorer/config"
	"github.com/marben/mandel_explorer/session"
)

func TestRunExports(t *testing.T) {
	t.Setenv("MANDEL_WIDTH", "48")
	t.Setenv("MANDEL_HEIGHT", "32")
	t.Setenv("MANDEL_MAXITERATION", "300")
	t.Setenv("MANDEL_PIXELGROUP_MIN", "0.5")
	t.Setenv("MANDEL_LOGLEVEL", "error")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "view.png")
	var progress bytes.Buffer
	if err := run(context.Background(), cfg, options{out: out}, &progress); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(progress.String(), "saved 48×32 px") {
		t.Errorf("progress output %q, want a saved line", progress.String())
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if size := img.Bounds().Size(); size.X != 48 || size.Y != 32 {
		t.Errorf("image size = %v, want 48x32", size)
	}

	req, err := session.Load(out, 48, 32)
	if err != nil {
		t.Fatal(err)
	}
	want := mandel.DefaultRequest(48, 32)
	want.MaxIteration = 300
	if !req.Equal(want) {
		t.Errorf("sidecar request = %v, want %v", req, want)
	}
}

func TestRunRestore(t *testing.T) {
	dir := t.TempDir()
	saved := mandel.DefaultRequest(16, 16)
	saved.Frame = mandel.TripleSpiral.Frame()
	saved.MaxIteration = 400
	saved.ColorShift = 25
	sidecar := filepath.Join(dir, "saved.mlf")
	f, err := os.Create(sidecar)
	if err != nil {
		t.Fatal(err)
	}
	if err := session.Encode(f, saved); err != nil {
		t.Fatal(err)
	}
	f.Close()

	t.Setenv("MANDEL_WIDTH", "16")
	t.Setenv("MANDEL_HEIGHT", "16")
	t.Setenv("MANDEL_PIXELGROUP_INITIAL", "2")
	t.Setenv("MANDEL_PIXELGROUP_MIN", "1")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "restored.png")
	if err := run(context.Background(), cfg, options{out: out, restore: sidecar}, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	got, err := session.Load(out, 16, 16)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(saved) {
		t.Errorf("restored request = %v, want %v", got, saved)
	}
}

func TestRunCancelled(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := filepath.Join(t.TempDir(), "never.png")
	if err := run(ctx, cfg, options{out: out}, &bytes.Buffer{}); err == nil {
		t.Fatal("run() with a cancelled context succeeded")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("cancelled run wrote %s", out)
	}
}

func TestConfigCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--env-file", filepath.Join(t.TempDir(), "none.env")})
	// the env file was named explicitly, so its absence is an error
	if err := cmd.Execute(); err == nil {
		t.Fatal("config with a missing explicit env file succeeded")
	}

	cmd = newRootCmd()
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"width: 1920", "maxiteration: 1000", "pixelgroup:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("config output does not contain %q:\n%s", want, out.String())
		}
	}
}

func TestLogLevelDefault(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want string
	}{
		{"default", "", "warn"},
		{"env", "error", "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env != "" {
				t.Setenv("MANDEL_LOGLEVEL", tt.env)
			}
			cmd := newRootCmd()
			cmd.SetArgs([]string{"config"})
			var out bytes.Buffer
			cmd.SetOut(&out)
			if err := cmd.Execute(); err != nil {
				t.Fatal(err)
			}
			if want := "loglevel: " + tt.want; !strings.Contains(out.String(), want) {
				t.Errorf("config output does not contain %q:\n%s", want, out.String())
			}
		})
	}
}

func TestLandmarksCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"landmarks"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, name := range mandel.LandmarkNames() {
		if !strings.Contains(out.String(), name) {
			t.Errorf("landmarks output does not list %q", name)
		}
	}
}
