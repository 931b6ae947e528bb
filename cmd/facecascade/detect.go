package main

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/dudu/facecascade/internal/bench"
	"github.com/dudu/facecascade/internal/config"
	"github.com/dudu/facecascade/internal/detector"
	"github.com/dudu/facecascade/internal/imageio"
	"github.com/dudu/facecascade/internal/pipeline"
	"github.com/dudu/facecascade/internal/render"
)

func runDetect(cfg config.Config, args []string) error {
	fs := newFlagSet("detect", &cfg)
	source := fs.String("image", "", "Source image (`-` for stdin)")
	output := fs.String("out", "output.jpg", "Annotated output image (`-` for stdout, empty to skip)")
	jsonOut := fs.String("json", "", "Write detections as JSON to this file (`-` for stdout)")
	cycles := fs.Int("cycles", 10, "Number of timed detection runs")
	fs.Parse(args)

	if *source == "" && fs.NArg() > 0 {
		*source = fs.Arg(0)
	}
	if *source == "" {
		fs.Usage()
		return errors.New("an -image is required")
	}
	if *output == imageio.PipeName && *jsonOut == imageio.PipeName {
		return errors.New("-out and -json cannot both write to stdout")
	}

	log, err := setup(cfg)
	if err != nil {
		return err
	}

	img, err := imageio.Open(*source)
	if err != nil {
		return err
	}

	p, err := newPipeline(cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	faces, timing, err := benchmark(p, img, scanParams(cfg), *cycles, log)
	if err != nil {
		return err
	}

	if *output != "" {
		if err := imageio.Save(*output, render.Faces(img, faces, render.DefaultStyle)); err != nil {
			return err
		}
	}

	if *jsonOut != "" {
		return writeJSON(*jsonOut, img, faces, timing)
	}
	return nil
}

// benchmark runs the detector cycles times and keeps the last result.
func benchmark(det pipeline.FaceDetector, img image.Image, params detector.ScanParams, cycles int, log logrus.FieldLogger) ([]detector.Face, detector.Timing, error) {
	var (
		faces  []detector.Face
		timing detector.Timing
	)
	report, err := bench.Run(cycles, log, func() (int, error) {
		var err error
		faces, timing, err = det.DetectTimed(img, params)
		return len(faces), err
	})
	if err != nil {
		return nil, detector.Timing{}, err
	}

	log.WithField("fastest_ms", float64(report.Fastest().Microseconds())/1000).
		Infof("%d face(s) found", report.Faces)
	return faces, timing, nil
}

func writeJSON(path string, img image.Image, faces []detector.Face, timing detector.Timing) error {
	b := img.Bounds()
	res := render.NewResult(b.Dx(), b.Dy(), faces, &timing)

	if path == imageio.PipeName {
		return render.WriteJSON(os.Stdout, res)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to open json file: %w", err)
	}
	if err := render.WriteJSON(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
