package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/austinkregel/local-media/stashd/internal/lyrics"
	"github.com/austinkregel/local-media/stashd/internal/types"
)

// DefaultDBFile is the SQLite file created under the data directory
const DefaultDBFile = "stashd.sqlite3"

const errDBClientNil = "db client is nil"

// SQLStore keeps the library in a SQLite database through gorm
type SQLStore struct {
	DB *gorm.DB
	db *sql.DB
}

type trackRow struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	Position int    `gorm:"index:idx_track_position"`
	Name     string
	Artist   string `gorm:"index:idx_track_artist"`
	Location string `gorm:"index:idx_track_location"`
	Metadata string
}

func (trackRow) TableName() string { return "tracks" }

type stashRow struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	Name        string `gorm:"index:idx_stash_name"`
	Description string
	Songs       string
	UpdatedAt   time.Time
}

func (stashRow) TableName() string { return "stashes" }

type lyricRow struct {
	SongID    string `gorm:"primaryKey;type:varchar(36)"`
	Document  string
	UpdatedAt time.Time
}

func (lyricRow) TableName() string { return "lyrics" }

type sessionRow struct {
	ID        uint `gorm:"primaryKey"`
	Session   string
	UpdatedAt time.Time
}

func (sessionRow) TableName() string { return "sessions" }

// NewSQLStore opens (creating if needed) the database under dir
func NewSQLStore(dir string) (*SQLStore, error) {
	return NewSQLStoreWithPath(filepath.Join(dir, DefaultDBFile))
}

// NewSQLStoreWithPath opens the database at dbPath
func NewSQLStoreWithPath(dbPath string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	// sqlite has a single writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&trackRow{}, &stashRow{}, &lyricRow{}, &sessionRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	log.Printf("[LIBRARY] Opened sqlite library at %s", dbPath)
	return &SQLStore{DB: db, db: sqlDB}, nil
}

// Close closes the database
func (c *SQLStore) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func toTrack(r trackRow) (types.Track, error) {
	t := types.Track{ID: r.ID, Name: r.Name, Artist: r.Artist, Location: r.Location}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &t.Metadata); err != nil {
			return types.Track{}, fmt.Errorf("decoding metadata of %s: %w", r.ID, err)
		}
	}
	return t, nil
}

// FetchAllTracks returns every track in insertion order
func (c *SQLStore) FetchAllTracks(ctx context.Context) ([]types.Track, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []trackRow
	if err := c.DB.WithContext(ctx).Order("position").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying tracks: %w", err)
	}
	out := make([]types.Track, 0, len(rows))
	for _, r := range rows {
		t, err := toTrack(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// FetchTrack returns a single track by id
func (c *SQLStore) FetchTrack(ctx context.Context, id string) (types.Track, error) {
	if c == nil || c.DB == nil {
		return types.Track{}, errors.New(errDBClientNil)
	}
	var row trackRow
	err := c.DB.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Track{}, fmt.Errorf("track %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.Track{}, fmt.Errorf("querying track: %w", err)
	}
	return toTrack(row)
}

// SaveTracks upserts tracks; existing tracks keep their library position
func (c *SQLStore) SaveTracks(ctx context.Context, tracks []types.Track) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if len(tracks) == 0 {
		return nil
	}

	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []trackRow
		if err := tx.Select("id", "position").Find(&existing).Error; err != nil {
			return fmt.Errorf("querying positions: %w", err)
		}
		positions := make(map[string]int, len(existing))
		next := 0
		for _, r := range existing {
			positions[r.ID] = r.Position
			if r.Position >= next {
				next = r.Position + 1
			}
		}

		rows := make([]trackRow, 0, len(tracks))
		for _, t := range tracks {
			if t.ID == "" {
				return errors.New("track without id")
			}
			meta := ""
			if len(t.Metadata) > 0 {
				b, err := json.Marshal(t.Metadata)
				if err != nil {
					return fmt.Errorf("encoding metadata of %s: %w", t.ID, err)
				}
				meta = string(b)
			}
			pos, ok := positions[t.ID]
			if !ok {
				pos = next
				positions[t.ID] = pos
				next++
			}
			rows = append(rows, trackRow{
				ID:       t.ID,
				Position: pos,
				Name:     t.Name,
				Artist:   t.Artist,
				Location: t.Location,
				Metadata: meta,
			})
		}

		err := tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, 500).Error
		if err != nil {
			return fmt.Errorf("upserting tracks: %w", err)
		}
		return nil
	})
}

// FetchStashes returns every stash ordered by name
func (c *SQLStore) FetchStashes(ctx context.Context) ([]types.Stash, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []stashRow
	if err := c.DB.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying stashes: %w", err)
	}
	out := make([]types.Stash, 0, len(rows))
	for _, r := range rows {
		s := types.Stash{ID: r.ID, Name: r.Name, Description: r.Description, Songs: []string{}}
		if r.Songs != "" {
			if err := json.Unmarshal([]byte(r.Songs), &s.Songs); err != nil {
				return nil, fmt.Errorf("decoding songs of stash %s: %w", r.ID, err)
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// SaveStash inserts or replaces a stash
func (c *SQLStore) SaveStash(ctx context.Context, stash types.Stash) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if err := validID(stash.ID); err != nil {
		return fmt.Errorf("stash: %w", err)
	}
	songs := stash.Songs
	if songs == nil {
		songs = []string{}
	}
	b, err := json.Marshal(songs)
	if err != nil {
		return fmt.Errorf("encoding stash songs: %w", err)
	}
	row := stashRow{ID: stash.ID, Name: stash.Name, Description: stash.Description, Songs: string(b)}
	if err := c.DB.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("saving stash: %w", err)
	}
	return nil
}

// FetchLyrics returns the stored document for a track
func (c *SQLStore) FetchLyrics(ctx context.Context, songID string) (*lyrics.Document, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var row lyricRow
	err := c.DB.WithContext(ctx).Where("song_id = ?", songID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying lyrics: %w", err)
	}

	var doc lyrics.Document
	if err := json.Unmarshal([]byte(row.Document), &doc); err != nil {
		return nil, fmt.Errorf("decoding lyrics of %s: %w", songID, err)
	}
	if doc.SongID == "" {
		doc.SongID = songID
	}
	return &doc, nil
}

// SaveLyrics replaces the stored document for doc.SongID
func (c *SQLStore) SaveLyrics(ctx context.Context, doc *lyrics.Document) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if doc == nil || doc.SongID == "" {
		return errors.New("lyric document without song id")
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding lyrics: %w", err)
	}
	row := lyricRow{SongID: doc.SongID, Document: string(b)}
	if err := c.DB.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("saving lyrics: %w", err)
	}
	log.Printf("[LIBRARY] Saved lyrics for %s (%d lines)", doc.SongID, len(doc.Lines))
	return nil
}

// PersistSession stores the single resumable session row
func (c *SQLStore) PersistSession(ctx context.Context, session *types.PlaybackSession) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if session == nil {
		return errors.New("nil session")
	}
	b, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	row := sessionRow{ID: 1, Session: string(b)}
	if err := c.DB.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// LoadSession returns the stored session
func (c *SQLStore) LoadSession(ctx context.Context) (*types.PlaybackSession, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var row sessionRow
	err := c.DB.WithContext(ctx).Where("id = ?", 1).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	var session types.PlaybackSession
	if err := json.Unmarshal([]byte(row.Session), &session); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &session, nil
}
