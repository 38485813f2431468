// Package content loads and serves the game content: word lists for the
// word-guess game and question banks for the quiz. The store keeps an
// in-memory snapshot behind a RWMutex; Refresh swaps it wholesale, so
// readers always see a consistent set.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/mstrand/partyhub/internal/game/quiz"
)

// Source selects where content is loaded from.
const (
	SourceNone     = "none"
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// Config tells the store where its content lives.
type Config struct {
	Source   string
	FilePath string
	Pool     *pgxpool.Pool
}

// Store serves words and questions to game engines. Safe for concurrent use.
type Store struct {
	cfg    Config
	logger *logrus.Logger

	mu        sync.RWMutex
	words     []string
	questions []quiz.Question
}

// fileDocument is the on-disk JSON layout for the file source.
type fileDocument struct {
	Words     []string `json:"words"`
	Questions []struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
		Extra    string `json:"extra_info"`
	} `json:"questions"`
}

// NewStore builds a store and performs the initial load. A load failure is
// returned but leaves the store usable with the built-in seed content.
func NewStore(ctx context.Context, cfg Config, logger *logrus.Logger) (*Store, error) {
	if cfg.Source == "" {
		cfg.Source = SourceNone
	}
	s := &Store{
		cfg:       cfg,
		logger:    logger,
		words:     seedWords(),
		questions: seedQuestions(),
	}
	if err := s.Refresh(ctx); err != nil {
		return s, fmt.Errorf("initial content load: %w", err)
	}
	return s, nil
}

// Refresh reloads from the configured source and atomically replaces the
// snapshot. Readers concurrent with a refresh see either the old or the
// new content, never a mix.
func (s *Store) Refresh(ctx context.Context) error {
	var (
		words     []string
		questions []quiz.Question
		err       error
	)
	switch s.cfg.Source {
	case SourceNone:
		words, questions = seedWords(), seedQuestions()
	case SourceFile:
		words, questions, err = loadFromFile(s.cfg.FilePath)
	case SourcePostgres:
		words, questions, err = loadFromPostgres(ctx, s.cfg.Pool)
	default:
		return fmt.Errorf("unknown content source %q", s.cfg.Source)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.words = words
	s.questions = questions
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"source":    s.cfg.Source,
		"words":     len(words),
		"questions": len(questions),
	}).Info("content refreshed")
	return nil
}

// Words implements the word-guess word source.
func (s *Store) Words() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.words))
	copy(out, s.words)
	return out
}

// Questions implements the quiz question source.
func (s *Store) Questions() []quiz.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]quiz.Question, len(s.questions))
	copy(out, s.questions)
	return out
}

// Counts returns the snapshot sizes, for the refresh endpoint's response.
func (s *Store) Counts() (words, questions int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.words), len(s.questions)
}

func loadFromFile(path string) ([]string, []quiz.Question, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("content file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read content file: %w", err)
	}
	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse content file: %w", err)
	}
	questions := make([]quiz.Question, 0, len(doc.Questions))
	for _, q := range doc.Questions {
		questions = append(questions, quiz.Question{Text: q.Question, Answer: q.Answer, Extra: q.Extra})
	}
	return doc.Words, questions, nil
}

func loadFromPostgres(ctx context.Context, pool *pgxpool.Pool) ([]string, []quiz.Question, error) {
	if pool == nil {
		return nil, nil, fmt.Errorf("postgres content source has no pool")
	}

	rows, err := pool.Query(ctx, `SELECT word FROM words ORDER BY word`)
	if err != nil {
		return nil, nil, fmt.Errorf("query words: %w", err)
	}
	defer rows.Close()
	var words []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, nil, fmt.Errorf("scan word: %w", err)
		}
		words = append(words, w)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	qrows, err := pool.Query(ctx, `SELECT question, answer, COALESCE(extra, '') FROM quiz_questions`)
	if err != nil {
		return nil, nil, fmt.Errorf("query questions: %w", err)
	}
	defer qrows.Close()
	var questions []quiz.Question
	for qrows.Next() {
		var q quiz.Question
		if err := qrows.Scan(&q.Text, &q.Answer, &q.Extra); err != nil {
			return nil, nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return words, questions, qrows.Err()
}
