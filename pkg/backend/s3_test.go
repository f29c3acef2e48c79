package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

type fakeS3 struct {
	headErr     error
	location    types.BucketLocationConstraint
	locationErr error
	versioning  types.BucketVersioningStatus
	heads       []string
}

func (f *fakeS3) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.heads = append(f.heads, *params.Bucket)
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
	if f.locationErr != nil {
		return nil, f.locationErr
	}
	return &s3.GetBucketLocationOutput{LocationConstraint: f.location}, nil
}

func (f *fakeS3) GetBucketVersioning(ctx context.Context, params *s3.GetBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error) {
	return &s3.GetBucketVersioningOutput{Status: f.versioning}, nil
}

func TestVerifyBackend(t *testing.T) {
	backend := models.BackendDescriptor{Bucket: "state", Key: "sphinx.tfstate", Region: "eu-west-1"}

	tests := []struct {
		name     string
		client   *fakeS3
		backend  models.BackendDescriptor
		wantErr  string
		wantWarn bool
	}{
		{
			name:    "healthy bucket",
			client:  &fakeS3{location: "eu-west-1", versioning: types.BucketVersioningStatusEnabled},
			backend: backend,
		},
		{
			name:    "us-east-1 has an empty constraint",
			client:  &fakeS3{versioning: types.BucketVersioningStatusEnabled},
			backend: models.BackendDescriptor{Bucket: "state", Key: "k", Region: "us-east-1"},
		},
		{
			name:    "missing bucket",
			client:  &fakeS3{headErr: errors.New("NotFound")},
			backend: backend,
			wantErr: "not found or not accessible",
		},
		{
			name:    "wrong region",
			client:  &fakeS3{location: "us-west-2"},
			backend: backend,
			wantErr: "is in us-west-2",
		},
		{
			name:    "location lookup denied is tolerated",
			client:  &fakeS3{locationErr: errors.New("AccessDenied"), versioning: types.BucketVersioningStatusEnabled},
			backend: backend,
		},
		{
			name:     "unversioned bucket warns",
			client:   &fakeS3{location: "eu-west-1"},
			backend:  backend,
			wantWarn: true,
		},
		{
			name:    "incomplete backend",
			client:  &fakeS3{},
			backend: models.BackendDescriptor{Bucket: "state"},
			wantErr: "bucket, key and region",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			var requestedRegion string
			verifier := NewS3Verifier(func(region string) S3API {
				requestedRegion = region
				return tt.client
			}, logger)

			err := verifier.VerifyBackend(context.Background(), tt.backend)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.backend.Region, requestedRegion)
			assert.Equal(t, []string{"state"}, tt.client.heads)

			warned := false
			for _, entry := range hook.AllEntries() {
				if entry.Level == logrus.WarnLevel {
					warned = true
				}
			}
			assert.Equal(t, tt.wantWarn, warned)
		})
	}
}
