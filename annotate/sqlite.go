package annotate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

// LexiconDB stores lexicons for several languages in one sqlite file.
type LexiconDB struct {
	conn *sql.DB
}

// OpenLexiconDB opens (and if needed creates) the lexicon database.
func OpenLexiconDB(path string) (*LexiconDB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open lexicon db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &LexiconDB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init lexicon schema: %w", err)
	}
	return db, nil
}

func (db *LexiconDB) initSchema() error {
	_, err := db.conn.Exec(`
	CREATE TABLE IF NOT EXISTS lexicon_settings (
		lang  TEXT NOT NULL,
		key   TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (lang, key)
	);
	CREATE TABLE IF NOT EXISTS lexicon_entries (
		lang  TEXT NOT NULL,
		stage TEXT NOT NULL,
		term  TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (lang, stage, term)
	);
	`)
	return err
}

func (db *LexiconDB) Close() error { return db.conn.Close() }

// Languages lists the languages that have at least one setting or entry.
func (db *LexiconDB) Languages(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT lang FROM lexicon_settings
		UNION SELECT lang FROM lexicon_entries
		ORDER BY lang`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var langs []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		langs = append(langs, l)
	}
	return langs, rows.Err()
}

// Store replaces everything held for l.Language.
func (db *LexiconDB) Store(ctx context.Context, l *Lexicon) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"lexicon_settings", "lexicon_entries"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE lang = ?", l.Language); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	setting := func(key, value string) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lexicon_settings (lang, key, value) VALUES (?, ?, ?)`, l.Language, key, value)
		return err
	}
	entry := func(stage, term, value string) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lexicon_entries (lang, stage, term, value) VALUES (?, ?, ?, ?)`, l.Language, stage, term, value)
		return err
	}

	if l.Tokenizer != "" {
		if err := setting("tokenizer", l.Tokenizer); err != nil {
			return err
		}
	}
	if s := l.Sentiment; s != nil {
		if err := setting("sentiment.threshold", strconv.FormatFloat(s.Threshold, 'g', -1, 64)); err != nil {
			return err
		}
		for term, w := range s.Weights {
			if err := entry("sentiment", term, strconv.FormatFloat(w, 'g', -1, 64)); err != nil {
				return err
			}
		}
		for _, n := range s.Negators {
			if err := entry("negator", n, ""); err != nil {
				return err
			}
		}
	}
	for stage, t := range map[string]*TagLexicon{"pos": l.POS, "ne": l.NE} {
		if t == nil {
			continue
		}
		for key, value := range map[string]string{
			"fallback": t.Fallback, "punct": t.Punct, "number": t.Number, "chunk": strconv.FormatBool(t.Chunk),
		} {
			if err := setting(stage+"."+key, value); err != nil {
				return err
			}
		}
		for term, tag := range t.Entries {
			if err := entry(stage, term, tag); err != nil {
				return err
			}
		}
		for suffix, tag := range t.Suffixes {
			if err := entry(stage+"_suffix", suffix, tag); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// Load rebuilds the lexicon stored for lang.
func (db *LexiconDB) Load(ctx context.Context, lang string) (*Lexicon, error) {
	l := &Lexicon{Language: lang}
	found := false

	sentiment := func() *SentimentLexicon {
		if l.Sentiment == nil {
			l.Sentiment = &SentimentLexicon{Weights: map[string]float64{}}
		}
		return l.Sentiment
	}
	tagger := func(stage string) *TagLexicon {
		p := &l.POS
		if stage == "ne" {
			p = &l.NE
		}
		if *p == nil {
			*p = &TagLexicon{Entries: map[string]string{}}
		}
		return *p
	}

	rows, err := db.conn.QueryContext(ctx, `SELECT key, value FROM lexicon_settings WHERE lang = ?`, lang)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return nil, err
		}
		found = true
		switch key {
		case "tokenizer":
			l.Tokenizer = value
		case "sentiment.threshold":
			if sentiment().Threshold, err = strconv.ParseFloat(value, 64); err != nil {
				rows.Close()
				return nil, fmt.Errorf("lexicon %s: %s: %w", lang, key, err)
			}
		case "pos.fallback", "ne.fallback":
			tagger(key[:len(key)-len(".fallback")]).Fallback = value
		case "pos.punct", "ne.punct":
			tagger(key[:len(key)-len(".punct")]).Punct = value
		case "pos.number", "ne.number":
			tagger(key[:len(key)-len(".number")]).Number = value
		case "pos.chunk", "ne.chunk":
			tagger(key[:len(key)-len(".chunk")]).Chunk = value == "true"
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.conn.QueryContext(ctx, `SELECT stage, term, value FROM lexicon_entries WHERE lang = ?`, lang)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var stage, term, value string
		if err := rows.Scan(&stage, &term, &value); err != nil {
			return nil, err
		}
		found = true
		switch stage {
		case "sentiment":
			w, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("lexicon %s: weight of %q: %w", lang, term, err)
			}
			sentiment().Weights[term] = w
		case "negator":
			s := sentiment()
			s.Negators = append(s.Negators, term)
		case "pos", "ne":
			tagger(stage).Entries[term] = value
		case "pos_suffix", "ne_suffix":
			t := tagger(stage[:len(stage)-len("_suffix")])
			if t.Suffixes == nil {
				t.Suffixes = map[string]string{}
			}
			t.Suffixes[term] = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: sqlite:%s", ErrUnknownLexicon, lang)
	}
	return l, nil
}
