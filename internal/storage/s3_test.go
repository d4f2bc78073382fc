package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePut struct {
	in  *s3.PutObjectInput
	err error
	got string
}

func (f *fakePut) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	if in.Body != nil {
		b, _ := io.ReadAll(in.Body)
		f.got = string(b)
	}
	return &s3.PutObjectOutput{}, f.err
}

func newMinioStore(t *testing.T) *S3Store {
	t.Helper()
	s, err := NewS3Store(context.Background(), S3Options{
		Endpoint:   "http://minio.local:9000",
		Region:     "us-east-1",
		Bucket:     "audio",
		AccessKey:  "ak",
		SecretKey:  "sk",
		PresignTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}
	return s
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3Options{Region: "us-east-1"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestS3Store_PresignGet_PathStyle(t *testing.T) {
	s := newMinioStore(t)
	u, err := s.PresignGet(context.Background(), "uploads/u1/a.mp3")
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}
	if !strings.HasPrefix(u, "http://minio.local:9000/audio/uploads/u1/a.mp3?") {
		t.Fatalf("unexpected url %q", u)
	}
	if !strings.Contains(u, "X-Amz-Expires=900") || !strings.Contains(u, "X-Amz-Signature=") {
		t.Fatalf("missing presign params in %q", u)
	}
}

func TestS3Store_Put(t *testing.T) {
	s := newMinioStore(t)
	fp := &fakePut{}
	s.put = fp

	u, err := s.Put(context.Background(), "k.wav", "audio/wav", strings.NewReader("RIFF"), 4)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if aws.ToString(fp.in.Bucket) != "audio" || aws.ToString(fp.in.Key) != "k.wav" ||
		aws.ToString(fp.in.ContentType) != "audio/wav" || aws.ToInt64(fp.in.ContentLength) != 4 || fp.got != "RIFF" {
		t.Fatalf("unexpected put input: %+v body=%q", fp.in, fp.got)
	}
	if !strings.Contains(u, "/audio/k.wav?") {
		t.Fatalf("unexpected url %q", u)
	}

	fp.err = errors.New("denied")
	if _, err := s.Put(context.Background(), "k", "audio/wav", strings.NewReader("x"), 1); err == nil {
		t.Fatal("expected put error")
	}
}

func TestObjectKey(t *testing.T) {
	now := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	k := ObjectKey("u1", `C:\rec\Meeting.MP3`, now)
	if !strings.HasPrefix(k, "uploads/u1/2025/02/03/") || !strings.HasSuffix(k, ".mp3") {
		t.Fatalf("unexpected key %q", k)
	}
	if k2 := ObjectKey("u1", "noext", now); strings.Contains(k2[len("uploads/u1/2025/02/03/"):], ".") {
		t.Fatalf("unexpected extension in %q", k2)
	}
}
