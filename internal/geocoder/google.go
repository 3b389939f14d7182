package geocoder

import (
	"context"

	"googlemaps.github.io/maps"

	"github.com/publicpulse/pulse/internal/record"
)

// Google resolves addresses through the Google Maps Geocoding API.
type Google struct {
	client   *maps.Client
	region   string
	language string
}

// NewGoogle builds a Google resolver.  region biases results (e.g. "kg");
// language selects the address language (e.g. "ru").
func NewGoogle(apiKey, region, language string) (*Google, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Google{client: c, region: region, language: language}, nil
}

// Resolve implements Resolver using the first geocoding result.
func (g *Google) Resolve(ctx context.Context, address string) (record.Location, bool, error) {
	res, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address:  address,
		Region:   g.region,
		Language: g.language,
	})
	if err != nil {
		return record.Location{}, false, err
	}
	if len(res) == 0 {
		return record.Location{}, false, nil
	}

	top := res[0]
	loc := record.Location{
		Lat:     top.Geometry.Location.Lat,
		Lng:     top.Geometry.Location.Lng,
		Address: top.FormattedAddress,
	}
	for _, comp := range top.AddressComponents {
		for _, typ := range comp.Types {
			switch typ {
			case "administrative_area_level_1":
				loc.Region = comp.LongName
			case "locality":
				loc.Locality = comp.LongName
			case "route":
				loc.Street = comp.LongName
			case "street_number":
				loc.House = comp.LongName
			}
		}
	}
	return loc, true, nil
}
