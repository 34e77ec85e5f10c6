//go:build !headless

// video_backend_ebiten.go - Ebiten windowed video output

/*
 ██▓     ▄▄▄      ▒███████▒ █    ██  ██▓     ██▓
▓██▒    ▒████▄    ▒ ▒ ▒ ▄▀░ ██  ▓██▒▓██▒    ▓██▒
▒██░    ▒██  ▀█▄  ░ ▒ ▄▀▒░ ▓██  ▒██░▒██░    ▒██▒
▒██░    ░██▄▄▄▄██   ▄▀▒   ░▓▓█  ░██░▒██░    ░██░
░██████▒ ▓█   ▓██▒▒███████▒▒▒█████▓ ░██████▒░██░
░ ▒░▓  ░ ▒▒   ▓▒█░░▒▒ ▓░▒░▒░▒▓▒ ▒ ▒ ░ ▒░▓  ░░▓
░ ░ ▒  ░  ▒   ▒▒ ░░░▒ ▒ ░ ▒░░▒░ ░ ░ ░ ░ ▒  ░ ▒ ░
  ░ ░     ░   ▒   ░ ░ ░ ░ ░ ░░░ ░ ░   ░ ░    ▒ ░
    ░  ░      ░  ░  ░ ░       ░         ░  ░ ░
                  ░

(c) 2025 - 2026 the lazuli authors
https://github.com/vxpm/lazuli
License: GPLv3 or later
*/

/*
video_backend_ebiten.go - Windowed video output

Presents scanned-out fields in an ebiten window. The runner goroutine hands
frames over through PresentFrame; the ebiten draw loop uploads the latest
one. Hotkeys: F1 toggles the status overlay, F5 pauses and resumes the
machine, F12 copies a screenshot to the system clipboard.
*/

package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.design/x/clipboard"
	"golang.org/x/image/font/basicfont"
)

var overlayColor = color.RGBA{R: 0x40, G: 0xFF, B: 0x40, A: 0xFF}

type EbitenOutput struct {
	mutex  sync.Mutex
	pixels []byte
	width  int
	height int
	dirty  bool

	frame     *ebiten.Image
	runner    *Runner
	started   bool
	overlay   bool
	clipboard bool
}

func NewEbitenOutput() (*EbitenOutput, error) {
	e := &EbitenOutput{overlay: true}
	if err := clipboard.Init(); err == nil {
		e.clipboard = true
	}
	return e, nil
}

func (e *EbitenOutput) Start() error {
	e.started = true
	return nil
}

func (e *EbitenOutput) Stop() {
	e.started = false
}

// PresentFrame stores the latest scanned-out field. Called on the runner
// goroutine.
func (e *EbitenOutput) PresentFrame(pixels []byte, width, height int) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if len(e.pixels) != len(pixels) {
		e.pixels = make([]byte, len(pixels))
	}
	copy(e.pixels, pixels)
	e.width, e.height = width, height
	e.dirty = true
}

// Run drives the window loop on the calling goroutine, which must be the
// main one. Returns when the window closes.
func (e *EbitenOutput) Run(r *Runner) error {
	e.runner = r
	ebiten.SetWindowSize(VI_DEFAULT_WIDTH, VI_DEFAULT_HEIGHT)
	ebiten.SetWindowTitle("lazuli")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(e)
}

func (e *EbitenOutput) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyF1) {
		e.overlay = !e.overlay
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) && e.runner != nil {
		if e.runner.Paused() {
			e.runner.Resume()
		} else {
			e.runner.Pause()
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		e.copyScreenshot()
	}
	return nil
}

func (e *EbitenOutput) Draw(screen *ebiten.Image) {
	e.mutex.Lock()
	if e.dirty && e.width > 0 {
		if e.frame == nil || e.frame.Bounds().Dx() != e.width {
			e.frame = ebiten.NewImage(e.width, e.height)
		}
		e.frame.WritePixels(e.pixels)
		e.dirty = false
	}
	e.mutex.Unlock()

	if e.frame != nil {
		screen.DrawImage(e.frame, nil)
	}
	if e.overlay && e.runner != nil {
		speed := e.runner.Speed() / CORE_CLOCK * 100
		status := fmt.Sprintf("%5.1f%%", speed)
		if e.runner.Paused() {
			status = "paused"
		}
		text.Draw(screen, status, basicfont.Face7x13, 8, 16, overlayColor)
	}
}

func (e *EbitenOutput) Layout(outsideWidth, outsideHeight int) (int, int) {
	return VI_DEFAULT_WIDTH, VI_DEFAULT_HEIGHT
}

func (e *EbitenOutput) copyScreenshot() {
	if !e.clipboard {
		return
	}
	e.mutex.Lock()
	if e.width == 0 {
		e.mutex.Unlock()
		return
	}
	img := &image.NRGBA{
		Pix:    append([]byte(nil), e.pixels...),
		Stride: e.width * 4,
		Rect:   image.Rect(0, 0, e.width, e.height),
	}
	e.mutex.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return
	}
	clipboard.Write(clipboard.FmtImage, buf.Bytes())
}
