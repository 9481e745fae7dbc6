package service

import (
	"context"
	"io"
	"log/slog"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
)

// ResourceRepository is the storage interface of the resource directory.
type ResourceRepository interface {
	// Get returns a copy of the resource at (channel, uri).
	Get(channel, uri string) (*domain.Resource, bool)

	// UpdateResource upserts unless another owner holds the key
	// (domain.ErrOwnershipViolation).
	UpdateResource(r *domain.Resource) error

	// RemoveOwned deletes the resource if owner holds it
	// (domain.ErrResourceNotFound, domain.ErrOwnershipViolation).
	RemoveOwned(channel, uri, owner string) error

	// Snapshot returns copies of every resource matching template.
	Snapshot(template *domain.Resource) []*domain.Resource
}

// FileAccessor reads shared local files.
type FileAccessor interface {
	Readable(uri string) bool
	Open(uri string) (int64, io.ReadCloser, error)
}

// Notifier receives every published or shared resource.
type Notifier interface {
	Notify(r *domain.Resource)
}

// ResourceService applies the directory rules of PUBLISH, REMOVE, SHARE,
// QUERY and FETCH.
type ResourceService struct {
	repo     ResourceRepository
	files    FileAccessor
	secret   *SecretVerifier
	notifier Notifier
	logger   *slog.Logger
}

// NewResourceService creates a ResourceService. notifier may be nil.
func NewResourceService(repo ResourceRepository, files FileAccessor, secret *SecretVerifier, notifier Notifier, logger *slog.Logger) *ResourceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceService{
		repo:     repo,
		files:    files,
		secret:   secret,
		notifier: notifier,
		logger:   logger,
	}
}

// checkedResource validates the resource of PUBLISH/REMOVE/SHARE and
// returns a copy with a normalized URI.
func checkedResource(r *domain.Resource) (*domain.Resource, error) {
	if r == nil {
		return nil, domain.ErrMissingResource
	}
	if r.Owner == domain.AnonymousOwner {
		return nil, domain.ErrInvalidResource.WithDetails("reserved owner")
	}
	c := r.Clone()
	if err := c.NormalizeURI(); err != nil {
		return nil, domain.ErrInvalidResource.WithCause(err)
	}
	c.Origin = nil
	c.Size = 0
	return c, nil
}

// PrepareTemplate validates a QUERY/FETCH/SUBSCRIBE template and returns a
// copy with the URI normalized when it parses.
func PrepareTemplate(t *domain.Resource) (*domain.Resource, error) {
	if t == nil {
		return nil, domain.ErrMissingTemplate
	}
	c := t.Clone()
	if c.URI != "" {
		_ = c.NormalizeURI()
	}
	return c, nil
}

// RelayTemplate returns the template forwarded to peers. Channel and owner
// are cleared, so relayed queries only see the default channel of a peer.
func RelayTemplate(t *domain.Resource) *domain.Resource {
	c := t.Clone()
	c.Channel = ""
	c.Owner = ""
	return c
}

// Publish stores a resource with an absolute, non-file URI that names a host.
func (s *ResourceService) Publish(_ context.Context, r *domain.Resource) error {
	res, err := checkedResource(r)
	if err != nil {
		return err
	}
	u, _ := res.ParseURI()
	if u.Scheme == domain.FileScheme || u.Host == "" || !u.IsAbs() {
		s.logger.Debug("uri illegal to publish", "uri", res.URI)
		return domain.ErrInvalidResource.WithDetails("uri illegal to publish")
	}

	if err := s.repo.UpdateResource(res); err != nil {
		return domain.ErrCannotPublish.WithCause(err)
	}
	s.logger.Debug("resource published", "channel", res.Channel, "uri", res.URI)
	s.notify(res)
	return nil
}

// Remove deletes a resource held by the same owner.
func (s *ResourceService) Remove(_ context.Context, r *domain.Resource) error {
	res, err := checkedResource(r)
	if err != nil {
		return err
	}
	if err := s.repo.RemoveOwned(res.Channel, res.URI, res.Owner); err != nil {
		return domain.ErrCannotRemove.WithCause(err)
	}
	s.logger.Debug("resource removed", "channel", res.Channel, "uri", res.URI)
	return nil
}

// Share stores a resource naming a readable local file. The secret must
// match the node secret.
func (s *ResourceService) Share(_ context.Context, r *domain.Resource, secret *string) error {
	if r == nil || secret == nil {
		return domain.ErrMissingSecret
	}
	if s.secret == nil || !s.secret.Verify(*secret) {
		return domain.ErrIncorrectSecret
	}
	res, err := checkedResource(r)
	if err != nil {
		return err
	}
	u, _ := res.ParseURI()
	if u.Scheme != domain.FileScheme || u.Host != "" || !u.IsAbs() {
		s.logger.Debug("uri illegal to share", "uri", res.URI)
		return domain.ErrInvalidResource.WithDetails("uri illegal to share")
	}
	if !s.files.Readable(res.URI) {
		s.logger.Debug("shared file cannot be read", "uri", res.URI)
		return domain.ErrInvalidResource.WithDetails("file cannot be read")
	}

	if err := s.repo.UpdateResource(res); err != nil {
		return domain.ErrCannotShare.WithCause(err)
	}
	s.logger.Debug("resource shared", "channel", res.Channel, "uri", res.URI)
	s.notify(res)
	return nil
}

// Query returns copies of the local resources matching template. The
// caller anonymizes them before they leave the node.
func (s *ResourceService) Query(_ context.Context, template *domain.Resource) ([]*domain.Resource, error) {
	t, err := PrepareTemplate(template)
	if err != nil {
		return nil, err
	}
	return s.repo.Snapshot(t), nil
}

// Fetch looks up the shared file named by the template's (channel, uri) and
// opens it. The returned resource carries the file size. The caller closes
// the reader.
func (s *ResourceService) Fetch(_ context.Context, template *domain.Resource) (*domain.Resource, io.ReadCloser, error) {
	if template == nil {
		return nil, nil, domain.ErrMissingTemplate
	}
	t := template.Clone()
	if err := t.NormalizeURI(); err != nil {
		return nil, nil, domain.ErrInvalidTemplate.WithCause(err)
	}
	u, _ := t.ParseURI()
	if u.Scheme != domain.FileScheme {
		return nil, nil, domain.ErrInvalidTemplate.WithDetails("uri illegal to fetch")
	}

	res, ok := s.repo.Get(t.Channel, t.URI)
	if !ok {
		s.logger.Debug("fetch of unknown resource", "channel", t.Channel, "uri", t.URI)
		return nil, nil, domain.ErrInvalidTemplate.WithDetails("resource not found")
	}
	size, rc, err := s.files.Open(res.URI)
	if err != nil {
		s.logger.Warn("shared file not found", "channel", res.Channel, "uri", res.URI, "error", err)
		return nil, nil, domain.ErrFileNotFound.WithCause(err)
	}
	res.Size = size
	return res, rc, nil
}

func (s *ResourceService) notify(r *domain.Resource) {
	if s.notifier != nil {
		s.notifier.Notify(r)
	}
}
