// Package archive periodically uploads PNG snapshots of changed canvases to S3.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/astromechza/pixelwar/pkg/canvas"
	"github.com/astromechza/pixelwar/pkg/metrics"
	"github.com/astromechza/pixelwar/pkg/render"
)

// Putter is the part of *s3.Client the archiver needs.
type Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type ClientOptions struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// NewS3Client builds a client from static settings; an empty endpoint means AWS itself.
func NewS3Client(opts ClientOptions) *s3.Client {
	o := s3.Options{
		Region:       opts.Region,
		UsePathStyle: opts.PathStyle,
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
	}
	if opts.AccessKey != "" {
		creds := aws.Credentials{AccessKeyID: opts.AccessKey, SecretAccessKey: opts.SecretKey, Source: "pixelwar config"}
		o.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		}))
	}
	return s3.New(o)
}

type Options struct {
	Bucket   string
	Prefix   string
	Interval time.Duration
	Scale    int
	Metrics  *metrics.Metrics
	// Now is time.Now unless set by tests.
	Now func() time.Time
}

type Archiver struct {
	client   Putter
	registry *canvas.Registry
	opts     Options

	mu       sync.Mutex
	uploaded map[string]uint64
}

func New(client Putter, registry *canvas.Registry, opts Options) *Archiver {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Archiver{client: client, registry: registry, opts: opts, uploaded: make(map[string]uint64)}
}

// Run archives every Interval until ctx is done.
func (a *Archiver) Run(ctx context.Context) {
	t := time.NewTicker(a.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if n, err := a.ArchiveOnce(ctx); err != nil {
				slog.Error("failed to archive snapshots", "err", err)
			} else if n > 0 {
				slog.Info("archived snapshots", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *Archiver) key(name string, at time.Time) string {
	return a.opts.Prefix + name + "/" + at.UTC().Format("20060102T150405.000Z") + ".png"
}

// ArchiveOnce uploads a snapshot of every canvas that changed since its last upload and
// returns how many were uploaded. It keeps going past individual failures and returns the
// first error.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int, error) {
	var uploaded int
	var firstErr error
	a.registry.Each(func(c *canvas.Canvas) bool {
		grid, version := c.Snapshot()
		a.mu.Lock()
		last, seen := a.uploaded[c.Name()]
		a.mu.Unlock()
		if seen && last == version {
			return true
		}
		if err := a.upload(ctx, c.Name(), grid, version); err != nil {
			a.opts.Metrics.RecordArchiveUpload(false)
			if firstErr == nil {
				firstErr = err
			}
			return ctx.Err() == nil
		}
		a.opts.Metrics.RecordArchiveUpload(true)
		a.mu.Lock()
		a.uploaded[c.Name()] = version
		a.mu.Unlock()
		uploaded++
		return true
	})
	return uploaded, firstErr
}

func (a *Archiver) upload(ctx context.Context, name string, grid *canvas.Grid, version uint64) error {
	var buf bytes.Buffer
	if err := render.PNG(&buf, grid, render.Options{Scale: a.opts.Scale}); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	now := a.opts.Now()
	if _, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.opts.Bucket),
		Key:         aws.String(a.key(name, now)),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("image/png"),
		Metadata: map[string]string{
			"canvas":  name,
			"version": strconv.FormatUint(version, 10),
		},
	}); err != nil {
		return fmt.Errorf("s3 upload of %s failed: %w", name, err)
	}
	return nil
}
