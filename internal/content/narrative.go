// Package content selects deterministic page copy for location pages.
package content

import (
	"fmt"
	"strings"

	"github.com/foundationrisk/soilrisk/internal/model"
)

// narrativeTemplates are filled with city, soil name, and risk tier, in that order.
// Selection depends only on the city name, so rebuilt pages keep the same copy.
var narrativeTemplates = [...]string{
	"Homes in %[1]s sit on %[2]s, a soil that swells after heavy rain and shrinks during dry spells. With a %[3]s shrink-swell rating, that seasonal movement is the leading cause of slab cracks and sticking doors across the city.",
	"The dominant soil under %[1]s is %[2]s. Engineers rate its foundation risk as %[3]s because the clay fraction changes volume with every wet and dry cycle in the active zone.",
	"%[2]s covers much of %[1]s. Its plasticity places local foundations in the %[3]s risk tier, which means watering schedules, drainage, and tree placement matter more here than in most markets.",
	"Before buying or repairing a home in %[1]s, know the ground beneath it: %[2]s, classified %[3]s for expansive movement. Most settlement claims in the area trace back to this soil.",
	"Foundation movement in %[1]s follows the moisture in %[2]s. A %[3]s risk rating means the upper few feet of soil can heave and settle enough to crack brick veneer and drywall.",
}

// TemplateCount is the number of narrative variants.
const TemplateCount = len(narrativeTemplates)

const defaultSoilName = "expansive clay"

// TemplateIndex returns the narrative variant used for city: len(city) mod 5.
func TemplateIndex(city string) int {
	return len(city) % TemplateCount
}

// Narrative returns the page narrative for a city. The same city name always
// yields the same template.
func Narrative(city, soilName, risk string) string {
	soil := strings.TrimSpace(soilName)
	if soil == "" {
		soil = defaultSoilName
	}
	tier := strings.TrimSpace(risk)
	if tier == "" {
		tier = string(model.RiskUnknown)
	}
	return fmt.Sprintf(narrativeTemplates[TemplateIndex(city)], city, soil, tier)
}
