package color

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToHex(t *testing.T) {
	t.Run("from rgb", func(t *testing.T) {
		got, err := RGB(255, 0, 255).ToHex()
		require.NoError(t, err)
		assert.True(t, got.Equal(Hex("#ff00ff")))

		got, err = RGB(50, 100, 150).ToHex()
		require.NoError(t, err)
		assert.True(t, got.Equal(Hex("#326496")))
	})

	t.Run("from hex is identity", func(t *testing.T) {
		got, err := Hex("#ff00ff").ToHex()
		require.NoError(t, err)
		assert.True(t, got.Equal(Hex("#ff00ff")))
	})

	t.Run("from cie xyY", func(t *testing.T) {
		got, err := CIExyY(XY{X: 0.3209201623815967, Y: 0.15415426251691475}, 0.2848).ToHex()
		require.NoError(t, err)
		assert.True(t, got.Equal(Hex("#ff00ff")))
	})
}

func TestToRGB(t *testing.T) {
	t.Run("from rgb is identity", func(t *testing.T) {
		got, err := RGB(255, 0, 255).ToRGB()
		require.NoError(t, err)
		assert.True(t, got.Equal(RGB(255, 0, 255)))
	})

	t.Run("from hex", func(t *testing.T) {
		got, err := Hex("#ff00ff").ToRGB()
		require.NoError(t, err)
		assert.True(t, got.Equal(RGB(255, 0, 255)))

		got, err = Hex("#326496").ToRGB()
		require.NoError(t, err)
		assert.True(t, got.Equal(RGB(50, 100, 150)))
	})

	t.Run("invalid hex", func(t *testing.T) {
		_, err := Hex("#zzzzzz").ToRGB()
		assert.Error(t, err)
	})
}

func TestToCIExyY(t *testing.T) {
	want := CIExyY(XY{X: 0.32092016238159676, Y: 0.15415426251691475}, 0.2848)

	t.Run("from rgb", func(t *testing.T) {
		got, err := RGB(255, 0, 255).ToCIExyY()
		require.NoError(t, err)
		assert.InDelta(t, want.xy.X, got.xy.X, 1e-9)
		assert.InDelta(t, want.xy.Y, got.xy.Y, 1e-9)
		assert.InDelta(t, want.brightness, got.brightness, 1e-9)
	})

	t.Run("round trip through rgb is idempotent", func(t *testing.T) {
		first, err := RGB(50, 100, 150).ToRGB()
		require.NoError(t, err)
		second, err := first.ToRGB()
		require.NoError(t, err)
		assert.True(t, first.Equal(second))
	})
}
