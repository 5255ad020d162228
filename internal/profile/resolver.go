// Package profile decides which profile an invocation runs against.
package profile

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"rmcli/internal/model"
	"rmcli/internal/storage"
)

// ErrProfileNotFound is returned when an explicitly requested profile does not exist.
var ErrProfileNotFound = errors.New("profile not found")

// Store is the subset of the credential store the resolver needs.
type Store interface {
	Load(id string) (*model.ProfileDocument, error)
	Save(id string, doc *model.ProfileDocument) error
}

// ActiveProfile is the resolved profile handed to the request executor.
type ActiveProfile struct {
	ID           string
	BaseURL      string
	TokenPresent bool
}

// IsDefault reports whether the default profile is active.
func (p ActiveProfile) IsDefault() bool {
	return p.ID == model.DefaultProfileID
}

// Resolver resolves the active profile once per invocation.
type Resolver struct {
	store Store
	log   *logrus.Entry
	now   func() time.Time
}

// NewResolver creates a resolver over store.
func NewResolver(store Store, log *logrus.Entry) *Resolver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{
		store: store,
		log:   log.WithField("component", "profile-resolver"),
		now:   time.Now,
	}
}

// Resolve returns the explicit profile when explicitID is set, otherwise the
// default profile, materializing it on first use. It never fabricates a token.
func (r *Resolver) Resolve(explicitID string) (ActiveProfile, error) {
	if explicitID != "" && explicitID != model.DefaultProfileID {
		doc, err := r.store.Load(explicitID)
		if errors.Is(err, storage.ErrNotFound) {
			return ActiveProfile{}, fmt.Errorf("%w: %q (log in with --endpoint to create one, or check the id with 'config list')",
				ErrProfileNotFound, explicitID)
		}
		if err != nil {
			return ActiveProfile{}, err
		}
		return activeFrom(explicitID, doc), nil
	}

	doc, err := r.store.Load(model.DefaultProfileID)
	if err == nil {
		return activeFrom(model.DefaultProfileID, doc), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return ActiveProfile{}, err
	}

	doc = model.NewDefaultDocument(r.now())
	if err := r.store.Save(model.DefaultProfileID, doc); err != nil {
		// The in-memory default is still coherent for this invocation.
		r.log.WithError(err).Warn("Could not persist default profile")
	} else {
		r.log.Infof("Created default profile for %s", doc.Environments.HTTPBaseURL)
	}
	return activeFrom(model.DefaultProfileID, doc), nil
}

func activeFrom(id string, doc *model.ProfileDocument) ActiveProfile {
	return ActiveProfile{
		ID:           id,
		BaseURL:      doc.Environments.HTTPBaseURL,
		TokenPresent: doc.Session.Authenticated(),
	}
}
