package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rmcli/internal/model"
)

const (
	defaultProfileFile = "config.json"
	profilesDir        = "profiles"
	profileExt         = ".json"

	// Secure file permissions - owner read/write only
	secureFileMode = 0600 // -rw-------
	secureDirMode  = 0700 // drwx------
)

// DefaultDataDir returns ~/.rainmaker.
func DefaultDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".rainmaker"), nil
}

// ProfileStore persists one JSON document per profile. It is the only writer
// of the profile files; every write goes through a temp file and a rename.
type ProfileStore struct {
	dataDir string
	log     *logrus.Entry
	now     func() time.Time
}

// NewProfileStore creates a store rooted at dataDir. Directories are created lazily.
func NewProfileStore(dataDir string, log *logrus.Entry) *ProfileStore {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ProfileStore{
		dataDir: dataDir,
		log:     log.WithField("component", "profile-store"),
		now:     time.Now,
	}
}

// DataDir returns the root directory of the store
func (s *ProfileStore) DataDir() string {
	return s.dataDir
}

// Path returns the file backing a profile.
func (s *ProfileStore) Path(id string) (string, error) {
	if id == "" || id == model.DefaultProfileID {
		return filepath.Join(s.dataDir, defaultProfileFile), nil
	}
	if err := validateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dataDir, profilesDir, id+profileExt), nil
}

func validateID(id string) error {
	if id == "." || id == ".." || strings.HasPrefix(id, ".") ||
		strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return profileErr("resolve", id, ErrInvalidID, nil)
	}
	return nil
}

// Load reads a profile. A missing file is ErrNotFound; malformed JSON or a
// missing http_base_url is ErrInvalidFormat. A missing session is not an error,
// and neither is a session timestamp that cannot be read (it is treated as unset).
func (s *ProfileStore) Load(id string) (*model.ProfileDocument, error) {
	id = canonicalID(id)
	path, err := s.Path(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, profileErr("load", id, ErrNotFound, nil)
		}
		return nil, profileErr("load", id, ErrIOFailure, err)
	}

	var doc model.ProfileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, profileErr("load", id, ErrInvalidFormat, err)
	}
	if strings.TrimSpace(doc.Environments.HTTPBaseURL) == "" {
		return nil, profileErr("load", id, ErrInvalidFormat, errors.New("missing environments.http_base_url"))
	}

	log := s.log.WithField("profile", id)
	if raw := doc.Session.CreatedAt.Unparsed(); raw != "" {
		log.Warnf("Ignoring unreadable session.created_at %s", raw)
	}
	if raw := doc.Session.LastUsed.Unparsed(); raw != "" {
		log.Warnf("Ignoring unreadable session.last_used %s", raw)
	}
	log.Debugf("Loaded profile from %s", path)
	return &doc, nil
}

// Save validates and atomically writes a profile document.
func (s *ProfileStore) Save(id string, doc *model.ProfileDocument) error {
	id = canonicalID(id)
	if doc == nil || strings.TrimSpace(doc.Environments.HTTPBaseURL) == "" {
		return profileErr("save", id, ErrInvalidFormat, errors.New("missing environments.http_base_url"))
	}
	path, err := s.Path(id)
	if err != nil {
		return err
	}

	out := *doc
	out.Environments.HTTPBaseURL = strings.TrimRight(strings.TrimSpace(doc.Environments.HTTPBaseURL), "/")

	data, err := json.MarshalIndent(&out, "", "    ")
	if err != nil {
		return profileErr("save", id, ErrInvalidFormat, err)
	}

	if err := writeFileAtomic(path, data); err != nil {
		return profileErr("save", id, ErrIOFailure, err)
	}

	s.log.WithField("profile", id).Debugf("Saved profile to %s", path)
	return nil
}

// writeFileAtomic writes data to a sibling temp file and renames it over path,
// so concurrent readers see either the old or the new document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, secureDirMode); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	if err := os.Chmod(path, secureFileMode); err != nil {
		return fmt.Errorf("set secure permissions: %w", err)
	}
	return nil
}

// loadOrDefault loads a profile, synthesizing a default document when the
// file is absent. Invalid documents are never replaced.
func (s *ProfileStore) loadOrDefault(id string) (*model.ProfileDocument, error) {
	doc, err := s.Load(id)
	if errors.Is(err, ErrNotFound) {
		return model.NewDefaultDocument(s.now()), nil
	}
	return doc, err
}

// UpdateToken sets the access token of a profile and drops any stored
// identity token. An empty token removes the access token field entirely.
func (s *ProfileStore) UpdateToken(id, token string) error {
	return s.UpdateTokens(id, token, "")
}

// UpdateTokens stores an access token together with its identity token.
func (s *ProfileStore) UpdateTokens(id, accessToken, idToken string) error {
	id = canonicalID(id)
	doc, err := s.loadOrDefault(id)
	if err != nil {
		return err
	}

	doc.Session.AccessToken = accessToken
	doc.Session.IDToken = idToken
	if accessToken == "" {
		doc.Session.IDToken = ""
	}
	doc.Session.LastUsed = model.NewTimestamp(s.now())

	return s.Save(id, doc)
}

// GetToken returns the access token and whether one is present.
func (s *ProfileStore) GetToken(id string) (string, bool, error) {
	doc, err := s.Load(id)
	if err != nil {
		return "", false, err
	}
	return doc.Session.AccessToken, doc.Session.AccessToken != "", nil
}

// Tokens returns the stored access and identity tokens of a profile.
func (s *ProfileStore) Tokens(id string) (model.Tokens, error) {
	doc, err := s.Load(id)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{
		AccessToken: doc.Session.AccessToken,
		IDToken:     doc.Session.IDToken,
	}, nil
}

// UpdateBaseURL points a profile at a new endpoint.
func (s *ProfileStore) UpdateBaseURL(id, baseURL string) error {
	normalized, err := model.NormalizeBaseURL(baseURL)
	if err != nil {
		return profileErr("update", canonicalID(id), ErrInvalidFormat, err)
	}

	id = canonicalID(id)
	doc, err := s.loadOrDefault(id)
	if err != nil {
		return err
	}
	doc.Environments.HTTPBaseURL = normalized
	doc.Session.LastUsed = model.NewTimestamp(s.now())

	return s.Save(id, doc)
}

// CreateNewConfig creates a named profile for a custom endpoint and returns its id.
// Passwords are never persisted; only the username is recorded.
func (s *ProfileStore) CreateNewConfig(endpoint, username string) (string, error) {
	normalized, err := model.NormalizeBaseURL(endpoint)
	if err != nil {
		return "", profileErr("create", "", ErrInvalidFormat, err)
	}

	id := uuid.NewString()
	now := model.NewTimestamp(s.now())
	doc := &model.ProfileDocument{
		Environments: model.Environments{HTTPBaseURL: normalized},
		Session: model.Session{
			Username:  username,
			CreatedAt: now,
			LastUsed:  now,
		},
	}
	if err := s.Save(id, doc); err != nil {
		return "", err
	}

	s.log.WithField("profile", id).Infof("Created profile for %s", normalized)
	return id, nil
}

// ResetDefault overwrites the default profile with the well-known endpoint
// and an empty session.
func (s *ProfileStore) ResetDefault() error {
	return s.Save(model.DefaultProfileID, model.NewDefaultDocument(s.now()))
}

// Delete removes a named profile. Deleting a missing profile is not an error.
func (s *ProfileStore) Delete(id string) error {
	id = canonicalID(id)
	if id == model.DefaultProfileID {
		return profileErr("delete", id, ErrDefaultProfile, nil)
	}
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return profileErr("delete", id, ErrIOFailure, err)
	}

	s.log.WithField("profile", id).Info("Deleted profile")
	return nil
}

// ListProfileIDs enumerates persisted profiles, default first.
func (s *ProfileStore) ListProfileIDs() ([]string, error) {
	var ids []string

	if _, err := os.Stat(filepath.Join(s.dataDir, defaultProfileFile)); err == nil {
		ids = append(ids, model.DefaultProfileID)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, profileErr("list", model.DefaultProfileID, ErrIOFailure, err)
	}

	entries, err := os.ReadDir(filepath.Join(s.dataDir, profilesDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ids, nil
		}
		return nil, profileErr("list", "", ErrIOFailure, err)
	}

	var named []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, profileExt) {
			continue
		}
		named = append(named, strings.TrimSuffix(name, profileExt))
	}
	sort.Strings(named)

	return append(ids, named...), nil
}

// Cleanup removes named profiles whose last_used is older than maxAgeDays.
// Profiles that cannot be read are logged and kept.
func (s *ProfileStore) Cleanup(maxAgeDays int) ([]string, error) {
	ids, err := s.ListProfileIDs()
	if err != nil {
		return nil, err
	}

	cutoff := s.now().UTC().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	var removed []string

	for _, id := range ids {
		if id == model.DefaultProfileID {
			continue
		}
		log := s.log.WithField("profile", id)

		doc, err := s.Load(id)
		if err != nil {
			log.WithError(err).Warn("Skipping unreadable profile during cleanup")
			continue
		}
		if !doc.Session.LastUsed.Valid() {
			log.Warn("Skipping profile without last_used during cleanup")
			continue
		}
		if !doc.Session.LastUsed.Before(cutoff) {
			continue
		}

		if err := s.Delete(id); err != nil {
			log.WithError(err).Warn("Failed to remove old profile")
			continue
		}
		log.Infof("Removed profile last used %s", doc.Session.LastUsed.Format(time.RFC3339))
		removed = append(removed, id)
	}

	return removed, nil
}

func canonicalID(id string) string {
	if id == "" {
		return model.DefaultProfileID
	}
	return id
}
