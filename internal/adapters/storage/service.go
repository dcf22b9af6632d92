// Package storage adapts S3-compatible object storage (MinIO) to the narrow
// collaborators the claim pipeline needs: file validation, malware scan
// results and object reads for the AI analyzers.
package storage

import (
	"context"
	"time"
)

// FileKind is the role a file plays on a claim.
type FileKind string

const (
	KindDocument FileKind = "document"
	KindImage    FileKind = "image"
)

// FileInfo is what storage knows about a referenced object.
type FileInfo struct {
	Path         string
	ContentType  string
	SizeBytes    int64
	LastModified time.Time
}

// ScanVerdict is the outcome of a malware scan.
type ScanVerdict string

const (
	VerdictClean    ScanVerdict = "clean"
	VerdictInfected ScanVerdict = "infected"
)

// ScanResult is returned by a FileScanner.
type ScanResult struct {
	Verdict ScanVerdict
	Engine  string
}

// FileValidator confirms that a referenced file exists and is acceptable for its kind.
type FileValidator interface {
	Validate(ctx context.Context, path string, kind FileKind) (FileInfo, error)
}

// FileScanner reports whether a file is safe to process.
type FileScanner interface {
	Scan(ctx context.Context, path string) (ScanResult, error)
}

// ObjectReader loads object bytes up to a limit.
type ObjectReader interface {
	ReadObject(ctx context.Context, path string, maxBytes int64) ([]byte, error)
}

// Config defines the configuration interface for storage.
type Config interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinioBucketClaimFiles() string
	IsMinIOEnabled() bool
}

// UpstreamScanner trusts the scan performed by the upload service.
type UpstreamScanner struct{}

func (UpstreamScanner) Scan(context.Context, string) (ScanResult, error) {
	return ScanResult{Verdict: VerdictClean, Engine: "upstream"}, nil
}
