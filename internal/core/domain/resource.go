package domain

import (
	"bytes"
	"encoding/json"
	"net/url"
	"slices"
	"strings"
)

// AnonymousOwner replaces a non-empty owner on every resource that leaves
// the node. Publishers may never claim it.
const AnonymousOwner = "*"

// FileScheme is the URI scheme of shared local files.
const FileScheme = "file"

// Resource is a named, tagged entry of the directory.
//
// String fields are never nil; the empty string means "unset". When the
// resource is used as a template, empty fields and an empty tag list mean
// "no constraint".
type Resource struct {
	Name        string   `json:"name"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
	URI         string   `json:"uri"`
	Channel     string   `json:"channel"`
	Owner       string   `json:"owner"`

	// Origin is the host:port of the node that holds the resource.
	// Set only on outgoing copies.
	Origin *string `json:"ezserver"`

	// Size is the byte length of a fetched file. FETCH responses only.
	Size int64 `json:"resourceSize,omitempty"`
}

// resourceJSON mirrors Resource with nullable fields so that JSON null
// decodes to the empty value.
type resourceJSON struct {
	Name        *string  `json:"name"`
	Tags        []string `json:"tags"`
	Description *string  `json:"description"`
	URI         *string  `json:"uri"`
	Channel     *string  `json:"channel"`
	Owner       *string  `json:"owner"`
	Origin      *string  `json:"ezserver"`
	Size        int64    `json:"resourceSize,omitempty"`
}

// UnmarshalJSON decodes a resource, mapping null strings to "".
// Unknown fields are rejected so that other frame shapes never pass as a
// resource.
func (r *Resource) UnmarshalJSON(data []byte) error {
	var raw resourceJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*r = Resource{
		Name:        deref(raw.Name),
		Tags:        raw.Tags,
		Description: deref(raw.Description),
		URI:         deref(raw.URI),
		Channel:     deref(raw.Channel),
		Owner:       deref(raw.Owner),
		Origin:      raw.Origin,
		Size:        raw.Size,
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return nil
}

// MarshalJSON always renders tags as a list.
func (r Resource) MarshalJSON() ([]byte, error) {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(resourceJSON{
		Name:        &r.Name,
		Tags:        tags,
		Description: &r.Description,
		URI:         &r.URI,
		Channel:     &r.Channel,
		Owner:       &r.Owner,
		Origin:      r.Origin,
		Size:        r.Size,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Key identifies a resource inside one directory.
type Key struct {
	Channel string
	URI     string
}

// Key returns the identity key of the resource.
// The URI must already be normalized.
func (r *Resource) Key() Key {
	return Key{Channel: r.Channel, URI: r.URI}
}

// String renders the key for logs and hashing.
func (k Key) String() string {
	return k.Channel + "\x00" + k.URI
}

// ParseURI parses the resource URI.
func (r *Resource) ParseURI() (*url.URL, error) {
	return url.Parse(r.URI)
}

// NormalizeURI rewrites the URI in its canonical rendering.
func (r *Resource) NormalizeURI() error {
	u, err := r.ParseURI()
	if err != nil {
		return err
	}
	r.URI = u.String()
	return nil
}

// Clone returns a deep copy of the resource.
func (r *Resource) Clone() *Resource {
	c := *r
	c.Tags = slices.Clone(r.Tags)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if r.Origin != nil {
		origin := *r.Origin
		c.Origin = &origin
	}
	return &c
}

// Anonymized returns the copy sent to clients and peers: a non-empty owner
// becomes "*" and the origin is set to origin unless the resource already
// carries one from a relay.
func (r *Resource) Anonymized(origin string) *Resource {
	c := r.Clone()
	if c.Owner != "" {
		c.Owner = AnonymousOwner
	}
	if c.Origin == nil || *c.Origin == "" {
		c.Origin = &origin
	}
	return c
}

// HasTag reports whether tag is present, ignoring case.
func (r *Resource) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Matches reports whether the resource satisfies template.
func (r *Resource) Matches(template *Resource) bool {
	if r.Channel != template.Channel {
		return false
	}
	if template.Owner != "" && r.Owner != template.Owner {
		return false
	}
	for _, tag := range template.Tags {
		if !r.HasTag(tag) {
			return false
		}
	}
	if template.URI != "" && r.URI != template.URI {
		return false
	}
	if template.Name == "" && template.Description == "" {
		return true
	}
	return (template.Name != "" && strings.Contains(r.Name, template.Name)) ||
		(template.Description != "" && strings.Contains(r.Description, template.Description))
}
