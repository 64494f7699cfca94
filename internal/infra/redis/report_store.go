package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/nikverify/internal/artifact"
	"github.com/kursadbilgin/nikverify/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const reportKeyPrefix = "nikverify:report"

var _ artifact.Store = (*ReportStore)(nil)

type storedReport struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// ReportStore keeps generated reports in Redis with a TTL so any API
// instance can serve the download exactly once.
type ReportStore struct {
	client *goredis.Client
}

func NewReportStore(client *goredis.Client) (*ReportStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &ReportStore{client: client}, nil
}

func (s *ReportStore) Save(ctx context.Context, jobID string, a artifact.Artifact, ttl time.Duration) error {
	key, err := reportKey(jobID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(storedReport{
		Filename:    a.Filename,
		ContentType: a.ContentType,
		Data:        a.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func (s *ReportStore) Take(ctx context.Context, jobID string) (*artifact.Artifact, error) {
	key, err := reportKey(jobID)
	if err != nil {
		return nil, err
	}

	payload, err := s.client.GetDel(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("%w: report for job %s", domain.ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to take report: %w", err)
	}

	var stored storedReport
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}

	return &artifact.Artifact{
		Filename:    stored.Filename,
		ContentType: stored.ContentType,
		Data:        stored.Data,
	}, nil
}

func (s *ReportStore) Delete(ctx context.Context, jobID string) error {
	key, err := reportKey(jobID)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return nil
}

func reportKey(jobID string) (string, error) {
	id := strings.TrimSpace(jobID)
	if id == "" {
		return "", fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	return reportKeyPrefix + ":" + id, nil
}
