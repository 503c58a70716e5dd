package knowledge

import (
	"time"

	"github.com/MrWong99/reportfix/pkg/types"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

// DefaultSources is the built-in reference catalog used when configuration
// does not supply one.
var DefaultSources = []types.KnowledgeSource{
	{
		ID:          "fleischner-2017",
		Name:        "Fleischner Society pulmonary nodule guidelines",
		Description: "Follow-up and management recommendations for incidental pulmonary nodules detected on CT, by nodule size, morphology and patient risk.",
		Keywords:    []string{"nodule", "lung", "pulmonary", "ct", "follow-up"},
		Weight:      0.9,
		Enabled:     true,
		LastUpdated: day(2017, time.July, 1),
	},
	{
		ID:          "acr-birads",
		Name:        "ACR BI-RADS atlas",
		Description: "Standardized breast imaging lexicon, report organization and assessment categories for mammography, ultrasound and MRI.",
		Keywords:    []string{"breast", "mammography", "mass", "calcification", "birads"},
		Weight:      0.85,
		Enabled:     true,
		LastUpdated: day(2025, time.March, 1),
	},
	{
		ID:          "acr-lirads",
		Name:        "ACR LI-RADS",
		Description: "Liver imaging reporting and data system for patients at risk of hepatocellular carcinoma.",
		Keywords:    []string{"liver", "hepatic", "lesion", "cirrhosis", "arterial phase"},
		Weight:      0.8,
		Enabled:     true,
		LastUpdated: day(2024, time.June, 1),
	},
	{
		ID:          "radlex",
		Name:        "RadLex radiology lexicon",
		Description: "Unified terminology for radiology findings, anatomy and procedures used to standardize report wording.",
		Keywords:    []string{"terminology", "finding", "impression", "anatomy"},
		Weight:      0.6,
		Enabled:     true,
		LastUpdated: day(2024, time.January, 15),
	},
	{
		ID:          "acr-incidental-findings",
		Name:        "ACR incidental findings white papers",
		Description: "Management of incidental findings on abdominal and thoracic CT, including adrenal, renal, pancreatic and thyroid lesions.",
		Keywords:    []string{"incidental", "adrenal", "renal", "thyroid", "cyst"},
		Weight:      0.75,
		Enabled:     true,
		LastUpdated: day(2023, time.September, 1),
	},
}
