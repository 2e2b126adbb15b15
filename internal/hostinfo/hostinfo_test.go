package hostinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMacOSGPUInfo_SingleGPU(t *testing.T) {
	input := `Chipset Model: Intel UHD Graphics 630
Total Number of Cores: 24
Metal: Supported, feature set macOS GPUFamily2 v1
`
	gpus, err := parseMacOSGPUInfo(input)
	require.NoError(t, err)
	require.Len(t, gpus, 1)
	gpu := gpus[0]
	assert.Equal(t, "Intel UHD Graphics 630", gpu.Model)
	assert.Equal(t, "24", gpu.TotalNumberOfCores)
	assert.Equal(t, "Supported, feature set macOS GPUFamily2 v1", gpu.MetalSupport)
}

func TestParseMacOSGPUInfo_MultipleGPUs(t *testing.T) {
	input := `Chipset Model: GPU A
Total Number of Cores: 10
Metal: Unsupported
Chipset Model: GPU B
Total Number of Cores: 20
Metal: Supported
`
	gpus, err := parseMacOSGPUInfo(input)
	require.NoError(t, err)
	require.Len(t, gpus, 2)
	assert.Equal(t, "GPU A", gpus[0].Model)
	assert.Equal(t, "10", gpus[0].TotalNumberOfCores)
	assert.Equal(t, "Unsupported", gpus[0].MetalSupport)
	assert.Equal(t, "GPU B", gpus[1].Model)
	assert.Equal(t, "20", gpus[1].TotalNumberOfCores)
	assert.Equal(t, "Supported", gpus[1].MetalSupport)
}

func TestParseMacOSGPUInfo_MalformedLines(t *testing.T) {
	input := `Chipset Model Intel Graphics
Total Number of Cores
Metal`
	gpus, err := parseMacOSGPUInfo(input)
	require.NoError(t, err)
	assert.Len(t, gpus, 1)
}
