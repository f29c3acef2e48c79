package builtin

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// EBSVolumeInfoMetric carries one series per EBS volume with volume_id and volume_type labels
const EBSVolumeInfoMetric = "aws_ebs_volume_info"

// EBSGp2Analyzer suggests migrating gp2 volumes to gp3
type EBSGp2Analyzer struct {
	logger *logrus.Logger
}

// NewEBSGp2Analyzer creates the gp2 to gp3 analyzer
func NewEBSGp2Analyzer(logger *logrus.Logger) *EBSGp2Analyzer {
	if logger == nil {
		logger = logrus.New()
	}
	return &EBSGp2Analyzer{logger: logger}
}

// Name returns the analyzer name
func (a *EBSGp2Analyzer) Name() string {
	return "AWS EBS gp2 to gp3 Optimizer"
}

// Author returns the analyzer owner
func (a *EBSGp2Analyzer) Author() string {
	return "Sphinx Project"
}

// Queries asks the orchestrator to fetch the volume inventory series
func (a *EBSGp2Analyzer) Queries() []string {
	return []string{EBSVolumeInfoMetric}
}

// Analyze returns one opportunity per gp2 volume
func (a *EBSGp2Analyzer) Analyze(metrics []models.Metric) []models.OptimizationOpportunity {
	opportunities := make([]models.OptimizationOpportunity, 0)

	seen := 0
	for _, metric := range metrics {
		if metric.Name != EBSVolumeInfoMetric {
			continue
		}
		seen++

		volumeID, _ := metric.GetLabel("volume_id")
		if volumeID == "" {
			continue
		}

		if volumeType, _ := metric.GetLabel("volume_type"); volumeType != "gp2" {
			continue
		}

		a.logger.Infof("Analyzer %q found gp2 volume %s", a.Name(), volumeID)
		opportunity := models.NewOpportunity(
			"Upgrade EBS volume from gp2 to gp3",
			fmt.Sprintf("EBS volume '%s' uses the gp2 type. gp3 offers a higher baseline "+
				"(3,000 IOPS and 125 MiB/s) and is up to 20%% cheaper per GB. Upgrading is "+
				"recommended for almost every workload, improving performance while reducing cost.", volumeID),
			volumeID,
			metric,
		)
		opportunity.Source = a.Name()
		opportunities = append(opportunities, opportunity)
	}

	a.logger.Debugf("Analyzer %q inspected %d EBS volume series", a.Name(), seen)
	return opportunities
}
