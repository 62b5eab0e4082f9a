package scanner

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// AlbumNFO is the Kodi-style album description file name
const AlbumNFO = "album.nfo"

// AlbumInfo holds the parts of an album.nfo the library uses
type AlbumInfo struct {
	Title  string   `xml:"title"`
	Artist string   `xml:"artist"`
	Year   int      `xml:"year"`
	Genre  []string `xml:"genre"`
}

// ParseAlbumNFO parses an album.nfo file
func ParseAlbumNFO(path string) (*AlbumInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var album AlbumInfo
	if err := xml.Unmarshal(data, &album); err != nil {
		return nil, err
	}
	album.Title = strings.TrimSpace(album.Title)
	album.Artist = strings.TrimSpace(album.Artist)
	return &album, nil
}

var coverNames = []string{"folder", "cover", "front", "album"}

var artExtensions = []string{".jpg", ".jpeg", ".png"}

// FindFolderArt looks for a cover image next to the track, then for a
// folder image one level up (the artist directory)
func FindFolderArt(trackPath string) string {
	if trackPath == "" {
		return ""
	}
	dir := filepath.Dir(trackPath)
	if art := findCover(dir, coverNames); art != "" {
		return art
	}
	return findCover(filepath.Dir(dir), coverNames[:1])
}

func findCover(dir string, names []string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	byName := make(map[string]string, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			byName[strings.ToLower(e.Name())] = e.Name()
		}
	}
	for _, name := range names {
		for _, ext := range artExtensions {
			if actual, ok := byName[name+ext]; ok {
				return filepath.Join(dir, actual)
			}
		}
	}
	return ""
}

// dirInfo is what a scan learns once per album directory
type dirInfo struct {
	album *AlbumInfo
	art   string
}

// dirCache memoizes per-directory lookups across scan workers
type dirCache struct {
	mu   sync.Mutex
	dirs map[string]*dirInfo
}

func newDirCache() *dirCache {
	return &dirCache{dirs: make(map[string]*dirInfo)}
}

func (c *dirCache) lookup(trackPath string) *dirInfo {
	dir := filepath.Dir(trackPath)

	c.mu.Lock()
	info, ok := c.dirs[dir]
	c.mu.Unlock()
	if ok {
		return info
	}

	info = &dirInfo{art: FindFolderArt(trackPath)}
	if album, err := ParseAlbumNFO(filepath.Join(dir, AlbumNFO)); err == nil {
		info.album = album
	}

	c.mu.Lock()
	c.dirs[dir] = info
	c.mu.Unlock()
	return info
}
