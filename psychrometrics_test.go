package districtcooling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaturationVaporPressure(t *testing.T) {
	assert.InDelta(t, 101325, SaturationVaporPressure(100), 500)
	assert.InDelta(t, 4246, SaturationVaporPressure(30), 10)
	assert.InDelta(t, 611, SaturationVaporPressure(0), 2)
	assert.InDelta(t, 260, SaturationVaporPressure(-10), 2)
}

func TestHumidityRoundTrip(t *testing.T) {
	pv := 0.6 * SaturationVaporPressure(25)
	x := AbsoluteHumidity(pv)
	assert.InDelta(t, 0.0119, x, 2e-4)
	assert.InDelta(t, pv, VaporPressure(x), 1)
	assert.InDelta(t, 60, RelativeHumidity(VaporPressure(x), SaturationVaporPressure(25)), 0.1)
}

func TestWetBulbTemperature(t *testing.T) {
	twb, err := WetBulbTemperature(30, 100)
	require.NoError(t, err)
	assert.InDelta(t, 30, twb, 1e-3)

	twb, err = WetBulbTemperature(30, 50)
	require.NoError(t, err)
	assert.InDelta(t, 22, twb, 0.5)

	dry, err := WetBulbTemperature(30, 20)
	require.NoError(t, err)
	assert.Less(t, dry, twb)

	_, err = WetBulbTemperature(30, 0)
	assertConfigError(t, err)
	_, err = WetBulbTemperature(30, 120)
	assertConfigError(t, err)
}
