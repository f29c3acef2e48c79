// Package backend checks remote-state storage before the IaC tool uses it
package backend

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"github.com/Tsahi-Elkayam/sphinx/internal/auth"
	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// S3API is the subset of the S3 client the verifier uses
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	GetBucketVersioning(ctx context.Context, params *s3.GetBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error)
}

// ClientFunc returns an S3 client for a region
type ClientFunc func(region string) S3API

// AuthenticatedClients builds S3 clients from an authenticated session
func AuthenticatedClients(authenticator *auth.AWSAuthenticator) ClientFunc {
	return func(region string) S3API {
		return s3.NewFromConfig(authenticator.ConfigForRegion(region))
	}
}

// S3Verifier confirms a state bucket exists, is reachable and lives in the declared region
type S3Verifier struct {
	clients ClientFunc
	logger  *logrus.Logger
}

// NewS3Verifier creates a verifier
func NewS3Verifier(clients ClientFunc, logger *logrus.Logger) *S3Verifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &S3Verifier{clients: clients, logger: logger}
}

// VerifyBackend implements iac.BackendVerifier
func (v *S3Verifier) VerifyBackend(ctx context.Context, backend models.BackendDescriptor) error {
	if !backend.IsComplete() {
		return fmt.Errorf("backend must declare bucket, key and region")
	}

	client := v.clients(backend.Region)
	bucket := aws.String(backend.Bucket)

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: bucket}); err != nil {
		return fmt.Errorf("S3 bucket %s not found or not accessible: %w", backend.Bucket, err)
	}

	location, err := client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: bucket})
	if err != nil {
		v.logger.Debugf("Failed to get region for bucket %s: %v", backend.Bucket, err)
	} else if region := bucketRegion(location.LocationConstraint); region != backend.Region {
		return fmt.Errorf("S3 bucket %s is in %s, backend declares %s", backend.Bucket, region, backend.Region)
	}

	versioning, err := client.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: bucket})
	if err != nil {
		v.logger.Debugf("Failed to get versioning for bucket %s: %v", backend.Bucket, err)
	} else if versioning.Status != types.BucketVersioningStatusEnabled {
		v.logger.Warnf("State bucket %s does not have versioning enabled; state history cannot be recovered", backend.Bucket)
	}

	v.logger.Debugf("Verified state backend s3://%s/%s", backend.Bucket, backend.Key)
	return nil
}

// an empty location constraint means us-east-1
func bucketRegion(constraint types.BucketLocationConstraint) string {
	if constraint == "" {
		return "us-east-1"
	}
	return string(constraint)
}
