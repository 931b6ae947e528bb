package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dudu/facecascade/internal/config"
	"github.com/dudu/facecascade/internal/inference"
)

func runInspect(cfg config.Config, args []string) error {
	fs := newFlagSet("inspect", &cfg)
	stage := fs.String("stage", "", "Check the tensor names of a stage: proposal, refine or output")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("exactly one model path is required")
	}
	modelPath := fs.Arg(0)

	if _, err := os.Stat(modelPath); err != nil {
		return err
	}

	if err := inference.Initialize(cfg.ORTLib); err != nil {
		return err
	}
	defer inference.Shutdown()

	info, err := inference.Describe(modelPath)
	if err != nil {
		return err
	}

	fmt.Printf("Model: %s\n", modelPath)
	fmt.Printf("\nInputs (%d):\n", len(info.Inputs))
	for _, t := range info.Inputs {
		fmt.Printf("  %s: shape=%v, type=%s\n", t.Name, t.Dimensions, t.DataType)
	}
	fmt.Printf("\nOutputs (%d):\n", len(info.Outputs))
	for _, t := range info.Outputs {
		fmt.Printf("  %s: shape=%v, type=%s\n", t.Name, t.Dimensions, t.DataType)
	}

	fmt.Println("\nMetadata:")
	fmt.Printf("  Producer: %s\n", info.Producer)
	fmt.Printf("  Version: %d\n", info.Version)
	fmt.Printf("  Domain: %s\n", info.Domain)
	fmt.Printf("  Description: %s\n", info.Description)

	if *stage == "" {
		return nil
	}
	layouts := map[string]inference.Layout{
		"proposal": inference.ProposalLayout,
		"refine":   inference.RefineLayout,
		"output":   inference.OutputLayout,
	}
	layout, ok := layouts[*stage]
	if !ok {
		return fmt.Errorf("unknown stage %q", *stage)
	}
	if err := info.Check(layout); err != nil {
		return fmt.Errorf("%s stage: %w", *stage, err)
	}
	fmt.Printf("\nTensor names match the %s stage.\n", *stage)
	return nil
}
