package content

import "github.com/foundationrisk/soilrisk/internal/model"

// FallbackNeighborhoods returns the canned neighborhoods used when no
// mapped neighborhoods exist for a city.
func FallbackNeighborhoods(city string) []model.Neighborhood {
	return []model.Neighborhood{
		{Name: "Central " + city, Risk: string(model.RiskHigh), Note: "Historic downtown zone."},
		{Name: city + " Heights", Risk: string(model.RiskModerate), Note: "Elevated terrain."},
		{Name: "North " + city, Risk: string(model.RiskSevere), Note: "Proximity to creek basins."},
	}
}

// NeighborhoodNames returns the display names, substituting "Unknown Area"
// for unnamed entries.
func NeighborhoodNames(ns []model.Neighborhood) []string {
	names := make([]string, 0, len(ns))
	for _, n := range ns {
		if n.Name == "" {
			names = append(names, "Unknown Area")
			continue
		}
		names = append(names, n.Name)
	}
	return names
}
