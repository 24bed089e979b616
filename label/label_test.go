package label

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNG(t *testing.T) {
	data, err := PNG("SUG-001", 0, 0)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, img.Bounds().Dx())
	assert.Equal(t, DefaultHeight, img.Bounds().Dy())
}

func TestPNGKeepsNaturalWidth(t *testing.T) {
	data, err := PNG("A-VERY-LONG-MATERIAL-CODE-0001", 10, 40)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 10)
	assert.Equal(t, 40, img.Bounds().Dy())
}

func TestPNGEmpty(t *testing.T) {
	_, err := PNG("", 100, 40)
	assert.Error(t, err)
}
