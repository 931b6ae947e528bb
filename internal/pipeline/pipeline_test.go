package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dudu/facecascade/internal/detector"
)

func nopNetwork() detector.Network {
	return detector.NetworkFunc(func(detector.Tensor) (detector.Output, error) {
		return detector.Output{}, nil
	})
}

func TestStageConfigs_DefaultThresholds(t *testing.T) {
	assert := assert.New(t)

	proposal, refine, output := stageConfigs(Config{}, nopNetwork(), nopNetwork(), nopNetwork())
	assert.Equal(detector.DefaultProposalConfig.Threshold, proposal.Threshold)
	assert.Equal(detector.DefaultRefineConfig.Threshold, refine.Threshold)
	assert.Equal(detector.DefaultOutputConfig.Threshold, output.Threshold)
	assert.InDelta(0.6, proposal.Threshold, 1e-6)
	assert.InDelta(0.7, refine.Threshold, 1e-6)
	assert.InDelta(0.7, output.Threshold, 1e-6)

	_, err := detector.NewCascade(proposal, refine, output)
	assert.NoError(err)
}

func TestStageConfigs_Overrides(t *testing.T) {
	assert := assert.New(t)

	proposal, refine, output := stageConfigs(Config{
		ProposalThreshold: 0.5,
		RefineThreshold:   0.8,
		OutputThreshold:   0.9,
		Workers:           3,
		BatchSize:         16,
	}, nopNetwork(), nopNetwork(), nopNetwork())

	assert.InDelta(0.5, proposal.Threshold, 1e-6)
	assert.InDelta(0.8, refine.Threshold, 1e-6)
	assert.InDelta(0.9, output.Threshold, 1e-6)
	assert.Equal(3, proposal.Workers)
	assert.Equal(16, refine.BatchSize)
	assert.Equal(16, output.BatchSize)
	assert.Equal(12, proposal.InputSize)
	assert.Equal(48, output.InputSize)
}
