// Package s3 stores records as objects in an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	lru "github.com/hashicorp/golang-lru"
	"github.com/jrhy/zqueue/store"
)

// DefaultKnownNames is how many stored names a Persist remembers, to skip
// storing them again.
const DefaultKnownNames = 1000

type S3Interface interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// Persist implements the store.Persist interface for storing and loading
// records from S3 objects. It is safe for concurrent use.
type Persist struct {
	s3         S3Interface
	BucketName string
	Prefix     string
	known      *lru.Cache
}

// Load loads the bytes persisted in the named object.
func (p *Persist) Load(ctx context.Context, name string) ([]byte, error) {
	input := s3.GetObjectInput{
		Bucket: &p.BucketName,
		Key:    aws.String(p.Prefix + name),
	}
	output, err := p.s3.GetObjectWithContext(ctx, &input)
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, fmt.Errorf("%s: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	defer output.Body.Close()
	b, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	p.known.Add(name, nil)
	return b, nil
}

// Store persists the given bytes in an object of the given name, unless
// this Persist already stored or loaded it.
func (p *Persist) Store(ctx context.Context, name string, b []byte) error {
	if _, present := p.known.Get(name); present {
		return nil
	}
	input := s3.PutObjectInput{
		Bucket: &p.BucketName,
		Key:    aws.String(p.Prefix + name),
		Body:   bytes.NewReader(b),
	}
	_, err := p.s3.PutObjectWithContext(ctx, &input)
	if err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	p.known.Add(name, nil)
	return nil
}

// NewPersist returns a Persist that loads and stores records as objects
// under prefix, with the given S3 client and bucket name.
func NewPersist(client S3Interface, bucketName, prefix string) *Persist {
	known, err := lru.New(DefaultKnownNames)
	if err != nil {
		panic(err)
	}
	return &Persist{client, bucketName, prefix, known}
}
