package geospatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rough box around the Mumbai coastline
const mumbaiBox = `{
  "type": "Feature",
  "properties": {"name": "mumbai"},
  "geometry": {
    "type": "Polygon",
    "coordinates": [[[72.7, 18.9], [73.1, 18.9], [73.1, 19.3], [72.7, 19.3], [72.7, 18.9]]]
  }
}`

func TestValidateCoordinate(t *testing.T) {
	assert.NoError(t, ValidateCoordinate(19.076, 72.8777))
	assert.NoError(t, ValidateCoordinate(-90, 180))
	assert.ErrorIs(t, ValidateCoordinate(90.0001, 0), ErrCoordinateOutOfRange)
	assert.ErrorIs(t, ValidateCoordinate(0, -180.5), ErrCoordinateOutOfRange)
}

func TestParseRegionAndContains(t *testing.T) {
	region, err := ParseRegion(mumbaiBox)
	require.NoError(t, err)

	assert.True(t, Contains(region, ToPoint(19.076, 72.8777)))
	assert.False(t, Contains(region, ToPoint(22.5726, 88.3639)))
}

func TestParseRegionBareGeometryAndCollection(t *testing.T) {
	region, err := ParseRegion(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`)
	require.NoError(t, err)
	assert.True(t, Contains(region, ToPoint(0.5, 0.5)))

	collection := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
	  {"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[10,10],[11,10],[11,11],[10,11],[10,10]]]}}
	]}`
	region, err = ParseRegion(collection)
	require.NoError(t, err)
	assert.True(t, Contains(region, ToPoint(10.5, 10.5)))
	assert.False(t, Contains(region, ToPoint(5, 5)))
}

func TestParseRegionRejectsNonPolygons(t *testing.T) {
	_, err := ParseRegion(`{"type":"Point","coordinates":[72.8,19.0]}`)
	assert.Error(t, err)

	_, err = ParseRegion(`not json`)
	assert.Error(t, err)
}
