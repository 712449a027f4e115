// Package sink partitions a chunk of records into serializable and poison
// records and writes each partition as one newline-delimited JSON object.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"
	"unicode/utf8"

	errs "sfextract/pkg/errors"
	"sfextract/pkg/logger"
	"sfextract/pkg/metrics"
	"sfextract/pkg/retry"
	"sfextract/pkg/source"
	"sfextract/pkg/storage"
)

// ContentType labels every written partition
const ContentType = "application/jsonl+json"

// TimestampLayout formats the run timestamp embedded in object keys
const TimestampLayout = "2006-01-02_15-04-05"

const opUpload = "upload"

// Locations are the two keys a chunk may be written to
type Locations struct {
	Primary    string
	DeadLetter string
}

// KeysFor returns the keys of chunk chunkIndex for a run started at runTime:
// {prefix}/{entity}/{timestamp}_part_{NNNN}.jsonl and the same name under
// a dead-letter/ segment.
func KeysFor(prefix, entity string, runTime time.Time, chunkIndex int) Locations {
	name := fmt.Sprintf("%s_part_%04d.jsonl", runTime.UTC().Format(TimestampLayout), chunkIndex)
	return Locations{
		Primary:    path.Join(prefix, entity, name),
		DeadLetter: path.Join(prefix, entity, "dead-letter", name),
	}
}

// DeadLetter wraps a record that could not be encoded. Record is the text
// form for reading; Raw holds the exact bytes received.
type DeadLetter struct {
	Error  string `json:"error"`
	Record string `json:"record"`
	Raw    []byte `json:"raw"`
}

// Partition checks that each record encodes losslessly as one JSON line and
// moves failures into the poison partition. Valid records are written as
// received; only records spanning several lines are compacted. One bad
// record never affects the others.
func Partition(records []source.Record) (good [][]byte, poison []DeadLetter) {
	for i, rec := range records {
		line, err := encodeLine(rec)
		if err != nil {
			poison = append(poison, DeadLetter{
				Error:  errs.Wrap(errs.ErrorTypeSerialization, fmt.Sprintf("encode record %d", i), err).Error(),
				Record: rec.String(),
				Raw:    rec,
			})
			continue
		}
		good = append(good, line)
	}
	return good, poison
}

func encodeLine(rec source.Record) ([]byte, error) {
	if len(rec) == 0 {
		return nil, errors.New("empty record")
	}
	if !utf8.Valid(rec) {
		return nil, errors.New("record is not valid UTF-8")
	}
	if !bytes.ContainsAny(rec, "\r\n") {
		if !json.Valid(rec) {
			return nil, errors.New("record is not valid JSON")
		}
		return rec, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Result summarizes one Upload call
type Result struct {
	Written      int
	DeadLettered int
	Bytes        int
}

// Sink writes chunks through a storage.Store
type Sink struct {
	store   storage.Store
	retrier *retry.Retrier
	metrics *metrics.Collector
	logger  logger.Logger
}

// New creates a sink. Each object write gets its own retry budget.
func New(store storage.Store, retrier *retry.Retrier, m *metrics.Collector, log logger.Logger) *Sink {
	if retrier == nil {
		retrier = retry.NewRetrier(retry.Policy{MaxAttempts: 1}, log)
	}
	return &Sink{store: store, retrier: retrier, metrics: m, logger: logger.OrNop(log)}
}

// Upload writes the serializable records to loc.Primary and the poison
// records to loc.DeadLetter. Empty partitions are not written and an empty
// chunk is a no-op. A write that exhausts its budget aborts the upload.
func (s *Sink) Upload(ctx context.Context, records []source.Record, loc Locations) (Result, error) {
	var res Result
	if len(records) == 0 {
		s.logger.Warn("Skipping upload for empty chunk")
		return res, nil
	}

	good, poison := Partition(records)
	for _, p := range poison {
		s.logger.WithField("error", p.Error).Error("Record serialization failed, moving it to the dead-letter location")
	}

	if len(good) > 0 {
		body := bytes.Join(good, []byte("\n"))
		if err := s.write(ctx, loc.Primary, body, len(good), false); err != nil {
			return res, err
		}
		res.Written = len(good)
		res.Bytes += len(body)
	}

	if len(poison) > 0 {
		lines := make([][]byte, 0, len(poison))
		for _, p := range poison {
			b, err := json.Marshal(p)
			if err != nil {
				return res, fmt.Errorf("failed to encode dead-letter entry: %w", err)
			}
			lines = append(lines, b)
		}
		body := bytes.Join(lines, []byte("\n"))
		s.logger.WarnWithFields("Uploading malformed records to dead-letter location", map[string]interface{}{
			"records":  len(poison),
			"location": s.store.URI(loc.DeadLetter),
		})
		if err := s.write(ctx, loc.DeadLetter, body, len(poison), true); err != nil {
			return res, err
		}
		res.DeadLettered = len(poison)
		res.Bytes += len(body)
	}

	return res, nil
}

func (s *Sink) write(ctx context.Context, key string, body []byte, records int, deadLetter bool) error {
	uri := s.store.URI(key)
	err := s.retrier.Do(ctx, opUpload, func(ctx context.Context) error {
		return s.store.Put(ctx, key, body, ContentType)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", uri, err)
	}
	s.metrics.RecordWrite(records, len(body), deadLetter)
	logger.LogUpload(s.logger, uri, records, len(body))
	return nil
}
