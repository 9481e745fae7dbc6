package domain

import (
	"encoding/json"
	"testing"
)

func baseResource() *Resource {
	return &Resource{
		Name:        "Design Notes",
		Tags:        []string{"Go", "Docs"},
		Description: "notes about the federation layer",
		URI:         "http://example.com/notes",
		Channel:     "c",
		Owner:       "alice",
	}
}

func TestResource_Matches(t *testing.T) {
	tests := []struct {
		name     string
		template Resource
		want     bool
	}{
		{"empty template on same channel", Resource{Channel: "c"}, true},
		{"channel differs", Resource{Channel: "other"}, false},
		{"channel is case sensitive", Resource{Channel: "C"}, false},
		{"owner matches", Resource{Channel: "c", Owner: "alice"}, true},
		{"owner differs", Resource{Channel: "c", Owner: "bob"}, false},
		{"tags subset ignoring case", Resource{Channel: "c", Tags: []string{"go", "DOCS"}}, true},
		{"tag missing", Resource{Channel: "c", Tags: []string{"go", "rust"}}, false},
		{"uri matches", Resource{Channel: "c", URI: "http://example.com/notes"}, true},
		{"uri differs", Resource{Channel: "c", URI: "http://example.com/other"}, false},
		{"name substring", Resource{Channel: "c", Name: "Notes"}, true},
		{"name not a substring", Resource{Channel: "c", Name: "Manual"}, false},
		{"description substring", Resource{Channel: "c", Description: "federation"}, true},
		{"description not a substring", Resource{Channel: "c", Description: "storage"}, false},
		{"name misses but description hits", Resource{Channel: "c", Name: "Manual", Description: "federation"}, true},
		{"name hits but description misses", Resource{Channel: "c", Name: "Design", Description: "storage"}, true},
		{"name substring is case sensitive", Resource{Channel: "c", Name: "design"}, false},
	}

	r := baseResource()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Matches(&tt.template); got != tt.want {
				t.Errorf("Matches(%+v) = %v, want %v", tt.template, got, tt.want)
			}
		})
	}
}

func TestResource_Clone(t *testing.T) {
	origin := "node-a:3780"
	r := baseResource()
	r.Origin = &origin

	c := r.Clone()
	c.Tags[0] = "changed"
	*c.Origin = "node-b:3780"

	if r.Tags[0] != "Go" {
		t.Errorf("original tags mutated: %v", r.Tags)
	}
	if *r.Origin != "node-a:3780" {
		t.Errorf("original origin mutated: %s", *r.Origin)
	}
}

func TestResource_Anonymized(t *testing.T) {
	r := baseResource()
	c := r.Anonymized("node-a:3780")

	if c.Owner != AnonymousOwner {
		t.Errorf("Owner = %q, want %q", c.Owner, AnonymousOwner)
	}
	if c.Origin == nil || *c.Origin != "node-a:3780" {
		t.Errorf("Origin = %v, want node-a:3780", c.Origin)
	}
	if r.Owner != "alice" || r.Origin != nil {
		t.Error("Anonymized should not modify the source resource")
	}

	// Unowned resources stay unowned; a relayed origin is kept.
	relayed := "node-b:3780"
	r2 := &Resource{Channel: "c", URI: "http://x/1", Origin: &relayed}
	c2 := r2.Anonymized("node-a:3780")
	if c2.Owner != "" {
		t.Errorf("Owner = %q, want empty", c2.Owner)
	}
	if *c2.Origin != "node-b:3780" {
		t.Errorf("Origin = %q, want node-b:3780", *c2.Origin)
	}
}

func TestResource_NormalizeURI(t *testing.T) {
	r := &Resource{URI: "HTTP://example.com/a"}
	if err := r.NormalizeURI(); err != nil {
		t.Fatalf("NormalizeURI() error = %v", err)
	}
	if r.URI != "http://example.com/a" {
		t.Errorf("URI = %q, want %q", r.URI, "http://example.com/a")
	}

	bad := &Resource{URI: "http://[::1"}
	if err := bad.NormalizeURI(); err == nil {
		t.Error("NormalizeURI() should fail for an unparsable uri")
	}
}

func TestResource_UnmarshalJSON(t *testing.T) {
	t.Run("null fields become empty", func(t *testing.T) {
		var r Resource
		data := `{"name":null,"tags":null,"description":"d","uri":"http://x","channel":null,"owner":"o","ezserver":null}`
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			t.Fatalf("Unmarshal error = %v", err)
		}
		if r.Name != "" || r.Channel != "" {
			t.Errorf("null strings should decode to empty, got %+v", r)
		}
		if r.Tags == nil || len(r.Tags) != 0 {
			t.Errorf("Tags = %v, want empty slice", r.Tags)
		}
		if r.Origin != nil {
			t.Errorf("Origin = %v, want nil", r.Origin)
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		var r Resource
		if err := json.Unmarshal([]byte(`{"response":"success"}`), &r); err == nil {
			t.Error("a response frame should not decode as a resource")
		}
		if err := json.Unmarshal([]byte(`{"resultSize":3}`), &r); err == nil {
			t.Error("a result size frame should not decode as a resource")
		}
	})

	t.Run("size omitted when zero", func(t *testing.T) {
		data, err := json.Marshal(baseResource())
		if err != nil {
			t.Fatalf("Marshal error = %v", err)
		}
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			t.Fatalf("Unmarshal error = %v", err)
		}
		if _, ok := fields["resourceSize"]; ok {
			t.Error("resourceSize should be omitted when zero")
		}
		if _, ok := fields["ezserver"]; !ok {
			t.Error("ezserver should always be present")
		}
	})
}

func TestPeer_Valid(t *testing.T) {
	tests := []struct {
		peer Peer
		want bool
	}{
		{Peer{"localhost", 3780}, true},
		{Peer{"localhost", 65535}, true},
		{Peer{"", 3780}, false},
		{Peer{"localhost", 0}, false},
		{Peer{"localhost", -1}, false},
		{Peer{"localhost", 65536}, false},
	}
	for _, tt := range tests {
		if got := tt.peer.Valid(); got != tt.want {
			t.Errorf("%+v.Valid() = %v, want %v", tt.peer, got, tt.want)
		}
	}
}

func TestParsePeer(t *testing.T) {
	p, err := ParsePeer("10.0.0.5:3781")
	if err != nil {
		t.Fatalf("ParsePeer() error = %v", err)
	}
	if p != (Peer{Hostname: "10.0.0.5", Port: 3781}) {
		t.Errorf("ParsePeer() = %+v", p)
	}
	for _, bad := range []string{"nohost", "host:abc", "host:0", ":3780"} {
		if _, err := ParsePeer(bad); err == nil {
			t.Errorf("ParsePeer(%q) should fail", bad)
		}
	}
}
