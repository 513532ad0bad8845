package backup

import (
	"slices"
	"strings"
	"testing"
)

func TestParseS3BucketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantBkt   string
		wantPre   string
		errSubstr string
	}{
		{name: "bucket only", raw: "s3://my-bucket", wantBkt: "my-bucket"},
		{name: "bucket with prefix", raw: "s3://my-bucket/lotus-live/journal/", wantBkt: "my-bucket", wantPre: "lotus-live/journal"},
		{name: "invalid scheme", raw: "https://my-bucket/lotus", wantErr: true, errSubstr: "s3:// scheme"},
		{name: "missing bucket", raw: "s3:///lotus", wantErr: true, errSubstr: "missing bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotBkt, gotPre, err := parseS3BucketURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errSubstr != "" && !strings.Contains(err.Error(), tt.errSubstr) {
					t.Fatalf("err = %q, want substring %q", err.Error(), tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseS3BucketURL error: %v", err)
			}
			if gotBkt != tt.wantBkt {
				t.Fatalf("bucket = %q, want %q", gotBkt, tt.wantBkt)
			}
			if gotPre != tt.wantPre {
				t.Fatalf("prefix = %q, want %q", gotPre, tt.wantPre)
			}
		})
	}
}

func TestNewS3Uploader_MissingCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewS3Uploader(S3Config{
		BucketURL: "s3://my-bucket/lotus-live",
		Endpoint:  "s3.amazonaws.com",
		UseSSL:    true,
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestUploadArgs(t *testing.T) {
	t.Parallel()

	u := &S3Uploader{
		bucket:    "my-bucket",
		keyPrefix: "journal",
		cfg:       S3Config{Region: "eu-west-1", Endpoint: "minio.local:9000", SessionToken: "tok"},
	}

	args := u.uploadArgs("/var/backups/lotus-live-20260101-000000.000000000.journal")
	want := []string{
		"s3", "cp", "/var/backups/lotus-live-20260101-000000.000000000.journal",
		"s3://my-bucket/journal/lotus-live-20260101-000000.000000000.journal",
		"--region", "eu-west-1", "--only-show-errors",
		"--endpoint-url", "http://minio.local:9000",
	}
	if !slices.Equal(args, want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	if env := u.credentialEnv(); !slices.Contains(env, "AWS_SESSION_TOKEN=tok") {
		t.Fatalf("credential env = %v, want session token", env)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"", true, ""},
		{"s3.amazonaws.com", true, "https://s3.amazonaws.com"},
		{"minio:9000", false, "http://minio:9000"},
		{"http://explicit:9000", true, "http://explicit:9000"},
	}
	for _, tt := range tests {
		if got := normalizeEndpoint(tt.endpoint, tt.useSSL); got != tt.want {
			t.Fatalf("normalizeEndpoint(%q, %v) = %q, want %q", tt.endpoint, tt.useSSL, got, tt.want)
		}
	}
}
