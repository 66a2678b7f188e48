package quota

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexassist/a11yscan/pkg/models"
)

// Store persists quota records as a single JSON file so day windows survive
// process restarts. Writes are atomic (tmp + rename); a corrupt or missing
// file loads as an empty state rather than failing startup.
type Store struct {
	path   string
	logger *logrus.Logger
}

type storeFile struct {
	SavedAt time.Time                      `json:"saved_at"`
	Records map[string]*models.QuotaRecord `json:"records"`
}

func NewStore(path string, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{path: path, logger: logger}
}

func (s *Store) Load() map[string]*models.QuotaRecord {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).Warn("Failed to read quota state, starting empty")
		}
		return make(map[string]*models.QuotaRecord)
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		s.logger.WithError(err).Warn("Quota state file is corrupt, starting empty")
		return make(map[string]*models.QuotaRecord)
	}
	if file.Records == nil {
		return make(map[string]*models.QuotaRecord)
	}
	return file.Records
}

func (s *Store) Save(records map[string]*models.QuotaRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating quota state dir: %w", err)
	}

	data, err := json.MarshalIndent(storeFile{
		SavedAt: time.Now().UTC(),
		Records: records,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal quota state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp quota state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("atomically write quota state: %w", err)
	}
	return nil
}
