// Package archive writes gzip-encoded per-event exports to S3 under
// deterministic path templates, so re-exports overwrite in place.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter writes archive blobs for one event to a single S3 bucket.
type Exporter struct {
	client S3Client
	bucket string
}

func NewExporter(client S3Client, bucket string) *Exporter {
	return &Exporter{client: client, bucket: bucket}
}

// SanitizeCarNumber applies the rule for building archive object
// keys from a car number: "#" becomes "No", letters/digits/"-_ " pass
// through unchanged, anything else becomes "_".
func SanitizeCarNumber(car string) string {
	var b strings.Builder
	for _, r := range car {
		switch {
		case r == '#':
			b.WriteString("No")
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func lapsKey(eventID, sessionID int64) string {
	return fmt.Sprintf("event-%d-session-%d-laps.gz", eventID, sessionID)
}

func carLapsKey(eventID, sessionID int64, car string) string {
	return fmt.Sprintf("event-%d-session-%d-car-laps/car-%s-laps.gz", eventID, sessionID, SanitizeCarNumber(car))
}

func loopsKey(eventID int64) string {
	return fmt.Sprintf("event-%d-loops.gz", eventID)
}

func passingsKey(eventID int64) string {
	return fmt.Sprintf("event-%d-passings.gz", eventID)
}

func competitorMetadataKey(eventID int64) string {
	return fmt.Sprintf("event-%d-competitor-metadata.gz", eventID)
}

func (e *Exporter) putGzip(ctx context.Context, key string, data []byte) error {
	buf := &bytes.Buffer{}
	gz := gzip.NewWriter(buf)
	if _, err := gz.Write(data); err != nil {
		return fmt.Errorf("archive: gzipping %s: %w", key, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("archive: closing gzip writer for %s: %w", key, err)
	}

	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(e.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/gzip"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("archive: writing %s to S3: %w", key, err)
	}
	return nil
}

// ExportLapLog writes the full per-session lap log export.
func (e *Exporter) ExportLapLog(ctx context.Context, eventID, sessionID int64, data []byte) error {
	return e.putGzip(ctx, lapsKey(eventID, sessionID), data)
}

// ExportCarLapLog writes one car's per-session lap log export.
func (e *Exporter) ExportCarLapLog(ctx context.Context, eventID, sessionID int64, car string, data []byte) error {
	return e.putGzip(ctx, carLapsKey(eventID, sessionID, car), data)
}

// ExportLoops writes the event's sector/transponder loop export.
func (e *Exporter) ExportLoops(ctx context.Context, eventID int64, data []byte) error {
	return e.putGzip(ctx, loopsKey(eventID), data)
}

// ExportPassings writes the event's passing (X2) export.
func (e *Exporter) ExportPassings(ctx context.Context, eventID int64, data []byte) error {
	return e.putGzip(ctx, passingsKey(eventID), data)
}

// ExportCompetitorMetadata writes the event's competitor roster export.
func (e *Exporter) ExportCompetitorMetadata(ctx context.Context, eventID int64, data []byte) error {
	return e.putGzip(ctx, competitorMetadataKey(eventID), data)
}
