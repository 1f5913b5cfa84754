package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/janhruby/arbiwatch/internal/domain"
)

// Archiver writes whole cycle results to object storage as JSON, one object
// per cycle, keyed by UTC date and time for cheap prefix listing.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewArchiver creates an Archiver that writes under the given key prefix in
// the client's bucket.
func NewArchiver(c *Client, prefix string) *Archiver {
	return &Archiver{
		client: c.S3(),
		bucket: c.Bucket(),
		prefix: prefix,
	}
}

// cycleRecord is the archived JSON shape for one cycle.
type cycleRecord struct {
	Snapshot      domain.CycleSnapshot `json:"snapshot"`
	Opportunities []domain.Opportunity `json:"opportunities"`
}

// Archive uploads the snapshot and its detected opportunities. Best-effort
// from the caller's perspective; the returned error is for logging only.
func (a *Archiver) Archive(ctx context.Context, snap domain.CycleSnapshot, opps []domain.Opportunity) error {
	record := cycleRecord{Snapshot: snap, Opportunities: opps}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("s3blob: marshal cycle record: %w", err)
	}

	cycle := snap.Cycle.UTC()
	key := path.Join(
		a.prefix,
		cycle.Format("2006/01/02"),
		fmt.Sprintf("cycle-%s.json", cycle.Format("150405.000")),
	)

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put cycle record %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotArchiver = (*Archiver)(nil)
