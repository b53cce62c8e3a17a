// Package s3test provides S3 clients for tests: an in-process fake by
// default, or a real endpoint when ZQUEUE_TEST_S3_ENDPOINT is set.
package s3test

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"net/http/httptest"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// Client returns an S3 client, the name of a fresh bucket, and a function
// that releases them.
func Client() (*s3.S3, string, func()) {
	client, closer := newClient()
	bucketName := randBucketName()
	_, err := client.CreateBucket(&s3.CreateBucketInput{
		Bucket: &bucketName,
	})
	if err != nil {
		closer()
		panic(err)
	}
	return client, bucketName, func() {
		if err := emptyBucket(client, bucketName); err == nil {
			client.DeleteBucket(&s3.DeleteBucketInput{Bucket: &bucketName})
		}
		closer()
	}
}

func newClient() (*s3.S3, func()) {
	endpoint := os.Getenv("ZQUEUE_TEST_S3_ENDPOINT")
	if endpoint == "" {
		faker := gofakes3.New(s3mem.New())
		ts := httptest.NewServer(faker.Server())
		sess := session.Must(session.NewSession(&aws.Config{
			Credentials:      credentials.NewStaticCredentials("TEST-ACCESSKEYID", "TEST-SECRETACCESSKEY", ""),
			Endpoint:         aws.String(ts.URL),
			Region:           aws.String("ca-west-1"),
			DisableSSL:       aws.Bool(true),
			S3ForcePathStyle: aws.Bool(true),
		}))
		return s3.New(sess), ts.Close
	}
	config := aws.Config{
		Credentials: credentials.NewStaticCredentials(
			getEnv("AWS_ACCESS_KEY_ID"),
			getEnv("AWS_SECRET_ACCESS_KEY"),
			os.Getenv("AWS_SESSION_TOKEN"),
		),
		Endpoint:         aws.String(endpoint),
		S3ForcePathStyle: aws.Bool(true),
	}
	// Non-AWS endpoints (min.io and friends) still need some region.
	config.Region = aws.String(os.Getenv("AWS_REGION"))
	if *config.Region == "" {
		config.Region = aws.String("not-using-AWS")
	} else {
		config.Endpoint = nil
	}
	return s3.New(session.Must(session.NewSession(&config))), func() {}
}

func getEnv(key string) string {
	res := os.Getenv(key)
	if res == "" {
		panic(fmt.Sprintf("environment '%s' unset", key))
	}
	return res
}

func randBucketName() string {
	i, err := rand.Int(rand.Reader, big.NewInt(math.MaxUint32))
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("zqueue-%s", i)
}

func emptyBucket(s *s3.S3, bucket string) error {
	params := &s3.ListObjectsInput{Bucket: &bucket}
	for {
		objects, err := s.ListObjects(params)
		if err != nil {
			return err
		}
		if len(objects.Contents) == 0 {
			return nil
		}
		toDelete := make([]*s3.ObjectIdentifier, 0, len(objects.Contents))
		for _, object := range objects.Contents {
			toDelete = append(toDelete, &s3.ObjectIdentifier{Key: object.Key})
		}
		_, err = s.DeleteObjects(&s3.DeleteObjectsInput{
			Bucket: &bucket,
			Delete: &s3.Delete{Objects: toDelete},
		})
		if err != nil {
			return err
		}
		if !aws.BoolValue(objects.IsTruncated) {
			return nil
		}
		params.Marker = toDelete[len(toDelete)-1].Key
	}
}
