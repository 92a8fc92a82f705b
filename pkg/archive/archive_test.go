package archive

import (
	"context"
	"errors"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/astromechza/pixelwar/pkg/canvas"
)

type fakePutter struct {
	mu   sync.Mutex
	keys []string
	fail bool
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("boom")
	}
	if _, err := png.Decode(in.Body); err != nil {
		return nil, err
	}
	f.keys = append(f.keys, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.PutObjectOutput{}, nil
}

func TestArchiveOnlyChangedCanvases(t *testing.T) {
	reg := canvas.NewRegistry()
	a, _ := reg.Create("a", canvas.Options{Width: 2, Height: 2})
	if _, err := reg.Create("b", canvas.Options{Width: 2, Height: 2}); err != nil {
		t.Fatal(err)
	}
	put := &fakePutter{}
	arch := New(put, reg, Options{
		Bucket: "bucket",
		Prefix: "snaps/",
		Now:    func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	ctx := context.Background()

	n, err := arch.ArchiveOnce(ctx)
	if err != nil || n != 2 {
		t.Fatalf("first ArchiveOnce() = %d, %v", n, err)
	}
	if put.keys[0] != "bucket/snaps/a/20240102T030405.000Z.png" {
		t.Fatalf("key = %s", put.keys[0])
	}

	n, err = arch.ArchiveOnce(ctx)
	if err != nil || n != 0 {
		t.Fatalf("unchanged ArchiveOnce() = %d, %v", n, err)
	}

	token := a.IssueToken()
	res, _ := a.Join(token)
	if _, err := a.Edit(token, res.UserID, 0, 0, 1, 2, 3); err != nil {
		t.Fatal(err)
	}
	n, err = arch.ArchiveOnce(ctx)
	if err != nil || n != 1 {
		t.Fatalf("changed ArchiveOnce() = %d, %v", n, err)
	}
}

func TestArchiveRetriesAfterFailure(t *testing.T) {
	reg := canvas.NewRegistry()
	if _, err := reg.Create("a", canvas.Options{Width: 1, Height: 1}); err != nil {
		t.Fatal(err)
	}
	put := &fakePutter{fail: true}
	arch := New(put, reg, Options{Bucket: "b"})
	if _, err := arch.ArchiveOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	put.fail = false
	if n, err := arch.ArchiveOnce(context.Background()); err != nil || n != 1 {
		t.Fatalf("ArchiveOnce() = %d, %v", n, err)
	}
}

func TestNewS3Client(t *testing.T) {
	c := NewS3Client(ClientOptions{Region: "us-east-1", Endpoint: "http://localhost:9000", AccessKey: "k", SecretKey: "s", PathStyle: true})
	if c == nil {
		t.Fatal("nil client")
	}
	o := c.Options()
	if !o.UsePathStyle || aws.ToString(o.BaseEndpoint) != "http://localhost:9000" {
		t.Fatalf("options = %+v", o)
	}
	creds, err := o.Credentials.Retrieve(context.Background())
	if err != nil || creds.AccessKeyID != "k" {
		t.Fatalf("credentials = %+v, %v", creds, err)
	}
}
