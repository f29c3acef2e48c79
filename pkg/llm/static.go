package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

var identifierPattern = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// StaticEnricher proposes changes without a model. gp2 volumes get a gp3
// resource; every other finding gets a commented review stub.
type StaticEnricher struct {
	Filename string
}

// NewStaticEnricher creates an offline enricher writing main.tf
func NewStaticEnricher() *StaticEnricher {
	return &StaticEnricher{Filename: "main.tf"}
}

// Propose implements the enrichment port
func (e *StaticEnricher) Propose(ctx context.Context, opportunity models.OptimizationOpportunity) (models.SuggestedChange, error) {
	if err := ctx.Err(); err != nil {
		return models.SuggestedChange{}, err
	}

	filename := e.Filename
	if filename == "" {
		filename = "main.tf"
	}

	if volume, ok := gp2Volume(opportunity.Evidence); ok {
		return models.SuggestedChange{
			ImpactAssessment: fmt.Sprintf("Changes volume %s from gp2 to gp3 in place. gp3 keeps a 3,000 IOPS "+
				"and 125 MiB/s baseline at a lower price per GB; the volume stays attached during the modification.",
				volume.Labels["volume_id"]),
			SuggestedIaCFile: models.NewIaCFile(filename, gp3VolumeFile(volume)),
		}, nil
	}

	var content strings.Builder
	fmt.Fprintf(&content, "# %s\n", opportunity.Title)
	for _, line := range strings.Split(opportunity.Description, "\n") {
		fmt.Fprintf(&content, "# %s\n", line)
	}
	fmt.Fprintf(&content, "# Resource: %s\n", opportunity.ResourceAddress)
	content.WriteString("# No automated change is available for this finding.\n")

	return models.SuggestedChange{
		ImpactAssessment: "No automated change available; review the finding and edit the file before applying.",
		SuggestedIaCFile: models.NewIaCFile(filename, content.String()),
	}, nil
}

func gp2Volume(evidence []models.Metric) (models.Metric, bool) {
	for _, metric := range evidence {
		volumeID, _ := metric.GetLabel("volume_id")
		volumeType, _ := metric.GetLabel("volume_type")
		if volumeID != "" && volumeType == "gp2" {
			return metric, true
		}
	}
	return models.Metric{}, false
}

func gp3VolumeFile(volume models.Metric) string {
	volumeID := volume.Labels["volume_id"]
	name := identifierPattern.ReplaceAllString(volumeID, "_")

	var b strings.Builder
	fmt.Fprintf(&b, "import {\n  to = aws_ebs_volume.%s\n  id = %q\n}\n\n", name, volumeID)
	fmt.Fprintf(&b, "resource \"aws_ebs_volume\" %q {\n", name)
	if zone := volume.Labels["availability_zone"]; zone != "" {
		fmt.Fprintf(&b, "  availability_zone = %q\n", zone)
	}
	if size := volume.Labels["size"]; size != "" && size != "0" {
		fmt.Fprintf(&b, "  size              = %s\n", size)
	}
	b.WriteString("  type              = \"gp3\"\n")
	b.WriteString("}\n")
	return b.String()
}
