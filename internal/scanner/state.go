package scanner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"engram/internal/logging"
)

// FileFingerprint records one file's content identity between scans.
type FileFingerprint struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	RecordedAt time.Time `json:"recordedAt"`
}

func fingerprintPath(root string) string {
	return filepath.Join(root, ".scanstate", "fingerprints")
}

// loadFingerprints reads the previous scan's store. Missing or corrupt
// stores mean a full scan, never a failure.
func loadFingerprints(root string) map[string]FileFingerprint {
	raw, err := os.ReadFile(fingerprintPath(root))
	if err != nil {
		return nil
	}
	var prints map[string]FileFingerprint
	if err := json.Unmarshal(raw, &prints); err != nil {
		logging.Get(logging.CategoryScanner).Warn("Corrupt fingerprint store, rescanning everything: %v", err)
		return nil
	}
	logging.ScannerDebug("Loaded %d fingerprints", len(prints))
	return prints
}

// saveFingerprints rewrites the store whole with this scan's view.
func saveFingerprints(root string, files []discoveredFile) error {
	now := time.Now().UTC()
	prints := make(map[string]FileFingerprint, len(files))
	for _, f := range files {
		prints[f.relPath] = FileFingerprint{Hash: f.hash, Size: f.size, RecordedAt: now}
	}
	raw, err := json.MarshalIndent(prints, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Join(root, ".scanstate")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(fingerprintPath(root), raw, 0644)
}

// changedFiles restricts parsing to files that are new or whose hash
// moved since the last scan, optionally filtered to the requested
// languages. record is the set safe to fingerprint afterwards: parsed
// files plus files already up to date. A changed file the language
// filter excluded stays unrecorded so a later unfiltered scan still
// sees it. Files present last scan but gone now are reported back.
func changedFiles(previous map[string]FileFingerprint, files []discoveredFile, languages []string) (parse, record []discoveredFile, removed []string) {
	langSet := make(map[string]bool, len(languages))
	for _, l := range languages {
		langSet[l] = true
	}

	current := make(map[string]bool, len(files))
	for _, f := range files {
		current[f.relPath] = true
		if prev, ok := previous[f.relPath]; ok && prev.Hash == f.hash {
			record = append(record, f)
			continue
		}
		if len(langSet) > 0 && !langSet[f.language] {
			continue
		}
		parse = append(parse, f)
		record = append(record, f)
	}

	for rel := range previous {
		if !current[rel] {
			removed = append(removed, rel)
		}
	}
	return parse, record, removed
}
