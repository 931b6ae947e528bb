package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facecascade/internal/detector"
)

var (
	faceColor = color.RGBA{R: 255, A: 255}
	textColor = color.RGBA{G: 255, A: 255}
)

// Window is a highgui preview of annotated camera frames.
type Window struct {
	win   *gocv.Window
	meter rateMeter
}

// NewWindow opens a preview window of the given size.
func NewWindow(name string, width, height int) *Window {
	win := gocv.NewWindow(name)
	// Force window to appear on macOS
	win.ResizeWindow(width, height)
	win.MoveWindow(100, 100)
	return &Window{win: win, meter: rateMeter{since: time.Now()}}
}

// DrawFaces marks every face box and its landmarks on the frame.
func DrawFaces(frame *gocv.Mat, faces []detector.Face) {
	for _, face := range faces {
		gocv.Rectangle(frame, face.BoundingBox.Rect(), faceColor, 2)
		for _, p := range face.Landmarks.Points() {
			gocv.Circle(frame, image.Pt(int(p.X+0.5), int(p.Y+0.5)), 3, faceColor, -1)
		}
	}
}

// DrawTiming prints the per-stage detection time under the frame rate line.
func DrawTiming(frame *gocv.Mat, faces int, t detector.Timing) {
	text := fmt.Sprintf("P:%.0fms R:%.0fms O:%.0fms T:%.0fms faces:%d",
		ms(t.Proposal), ms(t.Refine), ms(t.Output), ms(t.Total), faces)
	gocv.PutText(frame, text, image.Pt(10, 60), gocv.FontHersheyPlain, 1.5, textColor, 2)
}

// Render draws faces, timing and the frame rate, then shows the frame.
func (w *Window) Render(frame *gocv.Mat, faces []detector.Face, t detector.Timing) {
	DrawFaces(frame, faces)
	DrawTiming(frame, len(faces), t)

	fps := w.meter.tick(time.Now())
	gocv.PutText(frame, fmt.Sprintf("FPS: %.1f", fps), image.Pt(10, 30),
		gocv.FontHersheyPlain, 2, textColor, 2)
	w.win.IMShow(*frame)
}

// WaitKey pumps window events; it returns the pressed key or -1.
func (w *Window) WaitKey(delayMs int) int {
	return w.win.WaitKey(delayMs)
}

// FPS is the frame rate measured over the last full second.
func (w *Window) FPS() float64 {
	return w.meter.rate
}

func (w *Window) Close() error {
	if w.win == nil {
		return nil
	}
	err := w.win.Close()
	w.win = nil
	return err
}

// rateMeter counts frames and refreshes its rate once per second.
type rateMeter struct {
	since  time.Time
	frames int
	rate   float64
}

func (m *rateMeter) tick(now time.Time) float64 {
	m.frames++
	if elapsed := now.Sub(m.since); elapsed >= time.Second {
		m.rate = float64(m.frames) / elapsed.Seconds()
		m.frames = 0
		m.since = now
	}
	return m.rate
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
