package backup

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Config controls periodic event journal snapshots.
type Config struct {
	Enabled   bool
	Interval  time.Duration
	LocalDir  string
	KeepLast  int
	BucketURL string

	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3SessionToken string
	S3UseSSL       bool

	Logger logrus.FieldLogger
	Now    func() time.Time
}

// Snapshotter is the minimal journal snapshot contract used by Manager.
// *journal.Journal implements it.
type Snapshotter interface {
	Path() string
	SnapshotTo(dstPath string) error
}

// Uploader uploads one backup artifact.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) error
}
