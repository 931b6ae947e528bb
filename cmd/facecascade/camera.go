package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"gocv.io/x/gocv"

	"github.com/dudu/facecascade/internal/camera"
	"github.com/dudu/facecascade/internal/config"
	"github.com/dudu/facecascade/internal/ui"
)

func runCamera(cfg config.Config, args []string) error {
	fs := newFlagSet("camera", &cfg)
	device := fs.Int("device", 0, "Camera device index")
	width := fs.Int("width", 1280, "Requested frame width")
	height := fs.Int("height", 720, "Requested frame height")
	fps := fs.Int("fps", 30, "Requested frames per second")
	preview := fs.Bool("preview", true, "Show preview window")
	fs.Parse(args)

	log, err := setup(cfg)
	if err != nil {
		return err
	}

	p, err := newPipeline(cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	log.Infof("Opening camera %d...", *device)
	cam, err := camera.NewCapture(*device, *width, *height, *fps)
	if err != nil {
		return err
	}
	defer cam.Close()
	w, h := cam.Size()
	log.Infof("Camera opened: %dx%d", w, h)

	var window *ui.Window
	if *preview {
		window = ui.NewWindow("facecascade", w, h)
		defer window.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params := scanParams(cfg)
	log.Info("Running... Press 'q' to quit")

	err = cam.Stream(ctx, func(frame *gocv.Mat) error {
		faces, err := p.Process(frame, params)
		if err != nil {
			log.WithError(err).Warn("frame skipped")
		}

		if window == nil {
			log.WithField("faces", len(faces)).Debug("frame processed")
			return nil
		}

		window.Render(frame, faces, p.LastTiming())
		// WaitKey must be called to process window events on macOS
		if key := window.WaitKey(10); key == 'q' || key == 27 {
			log.Infof("Quitting at %.1f FPS", window.FPS())
			return camera.ErrStopped
		}
		return nil
	})
	if dropped := cam.Dropped(); dropped > 0 {
		log.Debugf("%d empty frame(s) skipped", dropped)
	}
	return err
}
