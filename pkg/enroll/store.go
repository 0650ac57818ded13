package enroll

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/speakernet/pkg/voiceprint"
)

// DefaultThreshold is the cosine score at or above which Verify accepts.
const DefaultThreshold float32 = 0.6

const keyPrefix = "speaker:"

// Options configures a Store.
type Options struct {
	// Dir is the BadgerDB directory. Required unless InMemory is set.
	Dir string

	// InMemory keeps all data in memory.
	InMemory bool

	// Model tags every record written by this store. Embeddings are only
	// merged into, and scored against, records with the same tag.
	Model string

	// Threshold overrides DefaultThreshold when positive.
	Threshold float32

	// Hasher, when set, stamps each record with an LSH voice hash.
	Hasher *voiceprint.Hasher

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Store is a persistent speaker enrollment database. It is safe for
// concurrent use.
type Store struct {
	db        *badger.DB
	model     string
	threshold float32
	hasher    *voiceprint.Hasher
	logger    *slog.Logger
	now       func() time.Time
}

// Open opens or creates a store.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("enroll: Options.Dir is required for on-disk mode")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{logger})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("enroll: open: %w", err)
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Store{
		db:        db,
		model:     opts.Model,
		threshold: threshold,
		hasher:    opts.Hasher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Threshold returns the acceptance threshold.
func (s *Store) Threshold() float32 { return s.threshold }

func key(speaker string) []byte {
	return []byte(keyPrefix + speaker)
}

// Enroll adds embeddings to speaker, creating the record if needed. The
// stored centroid is the utterance-weighted mean of the previous centroid
// and the new unit-normalized embeddings.
func (s *Store) Enroll(ctx context.Context, speaker string, embeddings ...[]float32) (*Record, error) {
	if speaker == "" || len(embeddings) == 0 {
		return nil, ErrEmpty
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *Record
	err := s.db.Update(func(txn *badger.Txn) error {
		prev, err := getTxn(txn, speaker)
		switch {
		case errors.Is(err, ErrNotFound):
			now := s.now()
			rec = &Record{ID: uuid.NewString(), Speaker: speaker, Model: s.model, CreatedAt: now}
		case err != nil:
			return err
		case prev.Model != s.model:
			return fmt.Errorf("%w: %q enrolled with %q, store uses %q", ErrModelMismatch, speaker, prev.Model, s.model)
		default:
			rec = prev
		}

		vectors := make([][]float32, 0, len(embeddings)+rec.Utterances)
		for range rec.Utterances {
			vectors = append(vectors, rec.Embedding)
		}
		vectors = append(vectors, embeddings...)
		centroid, err := voiceprint.Centroid(vectors...)
		if err != nil {
			return fmt.Errorf("enroll: %s: %w", speaker, err)
		}
		rec.Embedding = centroid
		rec.Utterances += len(embeddings)
		rec.UpdatedAt = s.now()
		if s.hasher != nil {
			if rec.VoiceHash, err = s.hasher.Hash(centroid); err != nil {
				return fmt.Errorf("enroll: %s: %w", speaker, err)
			}
		}

		data, err := msgpack.Marshal(rec)
		if err != nil {
			return fmt.Errorf("enroll: encode %s: %w", speaker, err)
		}
		return txn.Set(key(speaker), data)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("enroll: updated speaker", "speaker", speaker, "utterances", rec.Utterances, "voice_hash", rec.VoiceHash)
	return rec, nil
}

// Get returns the record for speaker.
func (s *Store) Get(_ context.Context, speaker string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getTxn(txn, speaker)
		return err
	})
	return rec, err
}

func getTxn(txn *badger.Txn, speaker string) (*Record, error) {
	item, err := txn.Get(key(speaker))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, speaker)
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	err = item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("enroll: decode %s: %w", speaker, err)
	}
	return &rec, nil
}

// Delete removes speaker. Deleting an unknown speaker returns ErrNotFound.
func (s *Store) Delete(_ context.Context, speaker string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(speaker)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, speaker)
			}
			return err
		}
		return txn.Delete(key(speaker))
	})
}

// List yields every record in speaker-name order.
func (s *Store) List(_ context.Context) iter.Seq2[*Record, error] {
	prefix := []byte(keyPrefix)
	return func(yield func(*Record, error) bool) {
		stopped := false
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				var rec Record
				err := it.Item().Value(func(val []byte) error {
					return msgpack.Unmarshal(val, &rec)
				})
				if err != nil {
					err = fmt.Errorf("enroll: decode %s: %w", it.Item().Key(), err)
					if !yield(nil, err) {
						stopped = true
						return nil
					}
					continue
				}
				if !yield(&rec, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(nil, err)
		}
	}
}

// Verify scores embedding against speaker's centroid.
func (s *Store) Verify(ctx context.Context, speaker string, embedding []float32) (*Decision, error) {
	rec, err := s.Get(ctx, speaker)
	if err != nil {
		return nil, err
	}
	return s.decide(rec, embedding)
}

func (s *Store) decide(rec *Record, embedding []float32) (*Decision, error) {
	if rec.Model != s.model {
		return nil, fmt.Errorf("%w: %q enrolled with %q, store uses %q", ErrModelMismatch, rec.Speaker, rec.Model, s.model)
	}
	score, err := voiceprint.Cosine(rec.Embedding, embedding)
	if err != nil {
		return nil, fmt.Errorf("enroll: %s: %w", rec.Speaker, err)
	}
	return &Decision{
		Speaker:   rec.Speaker,
		Score:     score,
		Threshold: s.threshold,
		Accept:    score >= s.threshold,
	}, nil
}

// Identify scores embedding against every speaker enrolled with this
// store's model and returns the decisions best first, at most topK of them
// (all when topK <= 0).
func (s *Store) Identify(ctx context.Context, embedding []float32, topK int) ([]Decision, error) {
	var out []Decision
	for rec, err := range s.List(ctx) {
		if err != nil {
			return nil, err
		}
		if rec.Model != s.model {
			continue
		}
		d, err := s.decide(rec, embedding)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	slices.SortStableFunc(out, func(a, b Decision) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// badgerLogger forwards badger warnings and errors to slog and drops the
// chatty info and debug output.
type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) Errorf(f string, v ...any) {
	b.l.Error(fmt.Sprintf("badger: "+f, v...))
}

func (b badgerLogger) Warningf(f string, v ...any) {
	b.l.Warn(fmt.Sprintf("badger: "+f, v...))
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
