package aws

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/sphinx/internal/auth"
	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// Inventory series exposed by the source
const (
	EBSVolumeInfoMetric   = "aws_ebs_volume_info"
	RDSInstanceInfoMetric = "aws_rds_instance_info"
)

// ClientFactory hands out regional API clients
type ClientFactory interface {
	EC2(region string) ec2.DescribeVolumesAPIClient
	RDS(region string) rds.DescribeDBInstancesAPIClient
}

type authClientFactory struct {
	authenticator *auth.AWSAuthenticator
}

// NewClientFactory builds clients from an authenticated session
func NewClientFactory(authenticator *auth.AWSAuthenticator) ClientFactory {
	return &authClientFactory{authenticator: authenticator}
}

func (f *authClientFactory) EC2(region string) ec2.DescribeVolumesAPIClient {
	return ec2.NewFromConfig(f.authenticator.ConfigForRegion(region))
}

func (f *authClientFactory) RDS(region string) rds.DescribeDBInstancesAPIClient {
	return rds.NewFromConfig(f.authenticator.ConfigForRegion(region))
}

type collector func(ctx context.Context, region string, at time.Time) ([]models.Metric, error)

// Source turns the AWS resource inventory into info-style metric series
type Source struct {
	clients ClientFactory
	regions []string
	logger  *logrus.Logger
	now     func() time.Time
}

// NewSource creates an inventory source querying every region in regions
func NewSource(clients ClientFactory, regions []string, logger *logrus.Logger) *Source {
	if logger == nil {
		logger = logrus.New()
	}
	return &Source{
		clients: clients,
		regions: regions,
		logger:  logger,
		now:     time.Now,
	}
}

// Name identifies the source
func (s *Source) Name() string {
	return "aws"
}

// Supports reports whether query names one of the inventory series
func (s *Source) Supports(query string) bool {
	name, _, err := ParseSelector(query)
	if err != nil {
		return false
	}
	_, ok := s.collectors()[name]
	return ok
}

func (s *Source) collectors() map[string]collector {
	return map[string]collector{
		EBSVolumeInfoMetric:   s.volumes,
		RDSInstanceInfoMetric: s.dbInstances,
	}
}

// Fetch lists the inventory behind query in every region. The single
// datapoint of each series is stamped with end, or now when end is zero.
func (s *Source) Fetch(ctx context.Context, query string, start, end time.Time) ([]models.Metric, error) {
	name, matchers, err := ParseSelector(query)
	if err != nil {
		return nil, err
	}

	collect, ok := s.collectors()[name]
	if !ok {
		return nil, fmt.Errorf("aws source does not serve %q", query)
	}

	at := end
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		metrics  []models.Metric
		failures []string
	)

	for _, region := range s.regions {
		wg.Add(1)
		go func(region string) {
			defer wg.Done()

			regional, err := collect(ctx, region, at)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Errorf("Failed to list %s in region %s: %v", name, region, err)
				failures = append(failures, region)
				return
			}
			metrics = append(metrics, regional...)
		}(region)
	}
	wg.Wait()

	if len(s.regions) > 0 && len(failures) == len(s.regions) {
		sort.Strings(failures)
		return nil, fmt.Errorf("failed to list %s in every region: %s", name, strings.Join(failures, ", "))
	}

	filtered := make([]models.Metric, 0, len(metrics))
	for _, metric := range metrics {
		if matchers.Matches(metric.Labels) {
			filtered = append(filtered, metric)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].ResourceID() < filtered[j].ResourceID()
	})

	s.logger.Debugf("Collected %d %s series from %d region(s)", len(filtered), name, len(s.regions))
	return filtered, nil
}

func (s *Source) volumes(ctx context.Context, region string, at time.Time) ([]models.Metric, error) {
	var metrics []models.Metric

	paginator := ec2.NewDescribeVolumesPaginator(s.clients.EC2(region), &ec2.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe volumes in region %s: %w", region, err)
		}

		for _, volume := range page.Volumes {
			size := int32Of(volume.Size)
			labels := map[string]string{
				models.LabelName:    EBSVolumeInfoMetric,
				models.LabelJob:     aws.ToString(volume.VolumeId),
				"volume_id":         aws.ToString(volume.VolumeId),
				"volume_type":       string(volume.VolumeType),
				"size":              fmt.Sprintf("%d", size),
				"availability_zone": aws.ToString(volume.AvailabilityZone),
				"state":             string(volume.State),
				"region":            region,
			}
			metrics = append(metrics, models.NewMetric(EBSVolumeInfoMetric, labels,
				models.DataPoint{Timestamp: at, Value: float64(size)}))
		}
	}

	return metrics, nil
}

func (s *Source) dbInstances(ctx context.Context, region string, at time.Time) ([]models.Metric, error) {
	var metrics []models.Metric

	paginator := rds.NewDescribeDBInstancesPaginator(s.clients.RDS(region), &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe DB instances in region %s: %w", region, err)
		}

		for _, instance := range page.DBInstances {
			storage := int32Of(instance.AllocatedStorage)
			id := aws.ToString(instance.DBInstanceIdentifier)
			labels := map[string]string{
				models.LabelName:    RDSInstanceInfoMetric,
				models.LabelJob:     id,
				"db_instance_id":    id,
				"db_instance_class": aws.ToString(instance.DBInstanceClass),
				"engine":            aws.ToString(instance.Engine),
				"storage_type":      aws.ToString(instance.StorageType),
				"multi_az":          fmt.Sprintf("%t", boolOf(instance.MultiAZ)),
				"region":            region,
			}
			metrics = append(metrics, models.NewMetric(RDSInstanceInfoMetric, labels,
				models.DataPoint{Timestamp: at, Value: float64(storage)}))
		}
	}

	return metrics, nil
}

// int32Of reads SDK scalar fields, which are pointers in some model versions
func int32Of(v interface{}) int32 {
	switch value := v.(type) {
	case int32:
		return value
	case *int32:
		return aws.ToInt32(value)
	default:
		return 0
	}
}

func boolOf(v interface{}) bool {
	switch value := v.(type) {
	case bool:
		return value
	case *bool:
		return aws.ToBool(value)
	default:
		return false
	}
}
