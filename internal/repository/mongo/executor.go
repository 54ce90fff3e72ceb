// Package mongo executes validated queries against MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/louper-cloud/queryline/internal/domain"
	"github.com/louper-cloud/queryline/internal/domain/query"
	"github.com/louper-cloud/queryline/internal/domain/result"
)

// Executor runs structured queries. It assumes the query already passed
// validation and does not re-check policy.
type Executor struct {
	db           *mongo.Database
	maxResults   int
	maxResultLen int
	timeout      time.Duration
}

// Config holds execution bounds.
type Config struct {
	MaxResults     int           // maximum documents returned per query
	MaxResultBytes int           // approximate byte cap on serialized documents
	Timeout        time.Duration // per-execution timeout
}

// New creates an executor over a Mongo database handle.
func New(db *mongo.Database, cfg Config) *Executor {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 100
	}
	if cfg.MaxResultBytes <= 0 {
		cfg.MaxResultBytes = 1 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Executor{
		db:           db,
		maxResults:   cfg.MaxResults,
		maxResultLen: cfg.MaxResultBytes,
		timeout:      cfg.Timeout,
	}
}

// Execute dispatches q by operation. Results are bounded by the configured
// document count and byte size; truncation is flagged rather than erroring.
func (e *Executor) Execute(ctx context.Context, q query.Query) (result.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	coll := e.db.Collection(q.Collection())

	switch q.Operation() {
	case query.OpFind:
		return e.find(ctx, coll, q)
	case query.OpCount:
		n, err := coll.CountDocuments(ctx, filterOf(q))
		if err != nil {
			return result.Result{}, mapError("count", err)
		}
		return result.Count(n), nil
	case query.OpAggregate:
		return e.aggregate(ctx, coll, q)
	case query.OpUpdate:
		res, err := coll.UpdateMany(ctx, filterOf(q), bson.M(q.Update()))
		if err != nil {
			return result.Result{}, mapError("update", err)
		}
		return result.Count(res.ModifiedCount), nil
	case query.OpDelete:
		res, err := coll.DeleteMany(ctx, filterOf(q))
		if err != nil {
			return result.Result{}, mapError("delete", err)
		}
		return result.Count(res.DeletedCount), nil
	}

	return result.Result{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedOperation, q.Operation())
}

// Ping checks backend reachability for health reporting.
func (e *Executor) Ping(ctx context.Context) error {
	if err := e.db.Client().Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}
	return nil
}

func (e *Executor) find(ctx context.Context, coll *mongo.Collection, q query.Query) (result.Result, error) {
	// Fetch one extra document to detect truncation.
	opts := options.Find().SetLimit(int64(e.maxResults) + 1)
	cur, err := coll.Find(ctx, filterOf(q), opts)
	if err != nil {
		return result.Result{}, mapError("find", err)
	}
	return e.collect(ctx, cur)
}

func (e *Executor) aggregate(ctx context.Context, coll *mongo.Collection, q query.Query) (result.Result, error) {
	cur, err := coll.Aggregate(ctx, toPipeline(q.Pipeline()))
	if err != nil {
		return result.Result{}, mapError("aggregate", err)
	}
	return e.collect(ctx, cur)
}

// collect drains a cursor into sanitized documents up to the configured
// bounds. Single-document $count/$group style outputs pass through unchanged.
func (e *Executor) collect(ctx context.Context, cur *mongo.Cursor) (result.Result, error) {
	defer func() { _ = cur.Close(ctx) }()

	docs := make([]map[string]any, 0)
	bytes := 0
	truncated := false

	for cur.Next(ctx) {
		if len(docs) >= e.maxResults || bytes >= e.maxResultLen {
			truncated = true
			break
		}

		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return result.Result{}, mapError("decode", err)
		}
		doc := sanitizeDocument(raw)
		docs = append(docs, doc)
		bytes += approxSize(doc)
	}
	if err := cur.Err(); err != nil {
		return result.Result{}, mapError("cursor", err)
	}

	// A lone {total: N} or {count: N} document is a scalar in disguise.
	if n, ok := scalarOf(docs); ok {
		return result.Count(n), nil
	}

	return result.Documents(docs, truncated), nil
}

// scalarOf unwraps single-document count outputs produced by $count stages.
func scalarOf(docs []map[string]any) (int64, bool) {
	if len(docs) != 1 {
		return 0, false
	}
	for _, key := range []string{"total", "count"} {
		if v, ok := docs[0][key]; ok && len(docs[0]) == 1 {
			switch n := v.(type) {
			case int32:
				return int64(n), true
			case int64:
				return n, true
			case float64:
				return int64(n), true
			}
		}
	}
	return 0, false
}

func filterOf(q query.Query) bson.M {
	if q.Filter() == nil {
		return bson.M{}
	}
	return bson.M(q.Filter())
}

func toPipeline(stages []any) mongo.Pipeline {
	pipeline := make(mongo.Pipeline, 0, len(stages))
	for _, st := range stages {
		doc, ok := st.(map[string]any)
		if !ok {
			continue
		}
		d := make(bson.D, 0, len(doc))
		for k, v := range doc {
			d = append(d, bson.E{Key: k, Value: v})
		}
		pipeline = append(pipeline, d)
	}
	return pipeline
}

// mapError folds driver failures into the two backend error kinds:
// queries the server itself refused map to ErrBackendRejected, everything
// else (connectivity, server selection, timeouts) to ErrBackendUnavailable.
func mapError(op string, err error) error {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return fmt.Errorf("%s: %s: %w", op, cmdErr.Message, domain.ErrBackendRejected)
	}
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		return fmt.Errorf("%s: %v: %w", op, writeErr, domain.ErrBackendRejected)
	}
	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) {
		return fmt.Errorf("%s: %v: %w", op, bulkErr, domain.ErrBackendRejected)
	}
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrBackendUnavailable)
}
