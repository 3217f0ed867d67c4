package service

import (
	"fmt"
	"sort"

	"github.com/toothsense-analysis-server/internal/domain"
)

type severityTexts map[domain.Severity]string

// genericTemplates are used when a label has no entry of its own. Each
// format takes the label once.
var genericTemplates = map[domain.ImageKind]map[domain.Severity]string{
	domain.ImageKindRadiograph: {
		domain.SeverityLow:      "Early stage %s condition detected with good prognosis.",
		domain.SeverityModerate: "Moderate %s condition requiring professional attention.",
		domain.SeverityHigh:     "Advanced %s condition requiring immediate treatment.",
	},
	domain.ImageKindGumPhoto: {
		domain.SeverityLow:      "Early stage %s condition detected.",
		domain.SeverityModerate: "Moderate %s condition requiring attention.",
		domain.SeverityHigh:     "Advanced %s condition requiring immediate care.",
	},
}

var descriptionTable = map[domain.ImageKind]map[string]severityTexts{
	domain.ImageKindRadiograph: {
		"Caries": {
			domain.SeverityLow:      "Early stage tooth decay detected. Minor cavities that can be easily treated with proper oral hygiene.",
			domain.SeverityModerate: "Moderate tooth decay detected. Cavities require professional treatment to prevent further progression.",
			domain.SeverityHigh:     "Advanced tooth decay detected. Immediate professional intervention required to prevent tooth loss.",
		},
		"Crown": {
			domain.SeverityLow:      "Crown detected in good condition.",
			domain.SeverityModerate: "Crown detected with some signs of wear or minor issues.",
			domain.SeverityHigh:     "Crown detected with significant issues requiring attention.",
		},
		"Missing teeth": {
			domain.SeverityLow:      "Single missing tooth detected.",
			domain.SeverityModerate: "Multiple missing teeth detected.",
			domain.SeverityHigh:     "Extensive tooth loss detected requiring comprehensive treatment.",
		},
		"Periodontal lesion": {
			domain.SeverityLow:      "Minor periodontal lesion detected.",
			domain.SeverityModerate: "Moderate periodontal lesion requiring treatment.",
			domain.SeverityHigh:     "Severe periodontal lesion requiring immediate attention.",
		},
		domain.NoFindingsLabel: {
			domain.SeverityLow:      "No significant findings detected in the radiograph. Continue routine check-ups and good oral hygiene.",
			domain.SeverityModerate: "No specific lesion was isolated, but the radiograph was graded moderate. A clinical examination is advised.",
			domain.SeverityHigh:     "No specific lesion was isolated, but the radiograph was graded high. Arrange a clinical examination soon.",
		},
	},
	domain.ImageKindGumPhoto: {
		"Calculus": {
			domain.SeverityLow:      "Minor tartar buildup detected. Can be addressed with professional cleaning.",
			domain.SeverityModerate: "Moderate tartar accumulation requiring professional removal.",
			domain.SeverityHigh:     "Heavy tartar buildup requiring immediate professional intervention.",
		},
		"Caries": {
			domain.SeverityLow:      "Early dental caries detected in gum line area.",
			domain.SeverityModerate: "Moderate dental caries affecting gum health.",
			domain.SeverityHigh:     "Advanced dental caries with significant gum involvement.",
		},
		"Gingivitis": {
			domain.SeverityLow:      "Mild gum inflammation detected. Early stage gingivitis with good treatment response expected.",
			domain.SeverityModerate: "Moderate gingivitis with noticeable inflammation requiring treatment.",
			domain.SeverityHigh:     "Severe gingivitis with significant inflammation requiring immediate care.",
		},
		"Mouth Ulcer": {
			domain.SeverityLow:      "Minor mouth ulcer detected. Should heal with proper care.",
			domain.SeverityModerate: "Moderate mouth ulcer requiring attention.",
			domain.SeverityHigh:     "Severe mouth ulcer requiring medical evaluation.",
		},
		"Tooth Discoloration": {
			domain.SeverityLow:      "Minor tooth discoloration detected.",
			domain.SeverityModerate: "Noticeable tooth discoloration affecting appearance.",
			domain.SeverityHigh:     "Severe tooth discoloration requiring professional treatment.",
		},
		"Hypodontia": {
			domain.SeverityLow:      "Mild hypodontia (missing teeth) detected.",
			domain.SeverityModerate: "Moderate hypodontia affecting dental function.",
			domain.SeverityHigh:     "Severe hypodontia requiring comprehensive treatment planning.",
		},
	},
}

// Describe returns the human-readable description of a finding. It looks up
// the exact (kind, label, severity) entry, then the kind's generic template,
// and finally a sentence built from the label and severity, so the result is
// never empty. Label matching is case-sensitive.
func Describe(kind domain.ImageKind, label string, severity domain.Severity) string {
	if labels, ok := descriptionTable[kind]; ok {
		if texts, ok := labels[label]; ok {
			if text, ok := texts[severity]; ok {
				return text
			}
		}
	}

	if templates, ok := genericTemplates[kind]; ok {
		if format, ok := templates[severity]; ok {
			return fmt.Sprintf(format, label)
		}
	}

	if label == "" {
		label = "Unspecified finding"
	}
	if severity == "" {
		return fmt.Sprintf("%s detected.", label)
	}
	return fmt.Sprintf("%s detected with %s severity.", label, severity)
}

// KnownLabels lists the labels with dedicated descriptions for kind.
func KnownLabels(kind domain.ImageKind) []string {
	labels := make([]string, 0, len(descriptionTable[kind]))
	for label := range descriptionTable[kind] {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
