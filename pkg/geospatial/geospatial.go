package geospatial

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// ErrCoordinateOutOfRange is returned for latitude or longitude outside WGS84 bounds
var ErrCoordinateOutOfRange = errors.New("coordinate out of range")

// ValidateCoordinate checks latitude is within [-90, 90] and longitude within [-180, 180]
func ValidateCoordinate(lat, lng float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrCoordinateOutOfRange, lat)
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude %v", ErrCoordinateOutOfRange, lng)
	}
	return nil
}

// ToPoint converts a lat/lng pair into an orb point (x = lng, y = lat)
func ToPoint(lat, lng float64) orb.Point {
	return orb.Point{lng, lat}
}

// ParseRegion parses a GeoJSON feature or bare geometry describing an eligible region.
// Only polygonal geometries are accepted.
func ParseRegion(geojsonStr string) (orb.Geometry, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(geojsonStr), &raw); err != nil {
		return nil, err
	}

	var geometry orb.Geometry
	switch raw["type"] {
	case "Feature":
		feature, err := geojson.UnmarshalFeature([]byte(geojsonStr))
		if err != nil {
			return nil, err
		}
		geometry = feature.Geometry
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection([]byte(geojsonStr))
		if err != nil {
			return nil, err
		}
		var mp orb.MultiPolygon
		for _, f := range fc.Features {
			switch g := f.Geometry.(type) {
			case orb.Polygon:
				mp = append(mp, g)
			case orb.MultiPolygon:
				mp = append(mp, g...)
			}
		}
		if len(mp) > 0 {
			geometry = mp
		}
	default:
		g, err := geojson.UnmarshalGeometry([]byte(geojsonStr))
		if err != nil {
			return nil, err
		}
		geometry = g.Geometry()
	}

	if geometry == nil {
		return nil, errors.New("invalid GeoJSON: no geometry")
	}
	switch geometry.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return geometry, nil
	default:
		return nil, fmt.Errorf("invalid GeoJSON: region must be a polygon, got %s", geometry.GeoJSONType())
	}
}

// Contains reports whether the point lies inside the region
func Contains(region orb.Geometry, point orb.Point) bool {
	switch g := region.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, point)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, point)
	default:
		return false
	}
}
