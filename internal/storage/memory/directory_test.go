package memory

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
)

func res(channel, uri, owner, name string) *domain.Resource {
	return &domain.Resource{
		Name:    name,
		Tags:    []string{"t"},
		URI:     uri,
		Channel: channel,
		Owner:   owner,
	}
}

func TestDirectory_PutGetRemove(t *testing.T) {
	d := NewDirectory()

	d.Put(res("c", "http://x/1", "a", "doc"))
	got, ok := d.Get("c", "http://x/1")
	if !ok {
		t.Fatal("Get: not found after Put")
	}
	if got.Name != "doc" {
		t.Errorf("Name = %q, want doc", got.Name)
	}

	if _, ok := d.Get("other", "http://x/1"); ok {
		t.Error("Get on another channel should miss")
	}

	if !d.Remove("c", "http://x/1") {
		t.Error("Remove = false, want true")
	}
	if d.Remove("c", "http://x/1") {
		t.Error("second Remove = true, want false")
	}
	if d.Len() != 0 || d.Channels() != 0 {
		t.Errorf("Len = %d, Channels = %d, want 0, 0", d.Len(), d.Channels())
	}
}

func TestDirectory_ReturnsCopies(t *testing.T) {
	d := NewDirectory()
	r := res("c", "http://x/1", "a", "doc")
	d.Put(r)

	r.Name = "mutated after put"
	got, _ := d.Get("c", "http://x/1")
	got.Tags[0] = "mutated after get"

	again, _ := d.Get("c", "http://x/1")
	if again.Name != "doc" || again.Tags[0] != "t" {
		t.Errorf("stored entry aliased a caller value: %+v", again)
	}
}

func TestDirectory_UpsertIdempotent(t *testing.T) {
	d := NewDirectory()
	first := res("c", "http://x/1", "a", "doc")
	second := res("c", "http://x/1", "a", "doc v2")

	for _, r := range []*domain.Resource{first, first, second} {
		if err := d.UpdateResource(r); err != nil {
			t.Fatalf("UpdateResource error = %v", err)
		}
	}
	if d.Len() != 1 {
		t.Fatalf("Len = %d, want 1", d.Len())
	}
	got, _ := d.Get("c", "http://x/1")
	if got.Name != "doc v2" {
		t.Errorf("Name = %q, want latest publish", got.Name)
	}
}

func TestDirectory_OwnershipConflict(t *testing.T) {
	d := NewDirectory()
	if err := d.UpdateResource(res("c", "http://x/1", "a", "doc")); err != nil {
		t.Fatalf("UpdateResource error = %v", err)
	}

	err := d.UpdateResource(res("c", "http://x/1", "b", "hijack"))
	if !errors.Is(err, domain.ErrOwnershipViolation) {
		t.Fatalf("UpdateResource error = %v, want ErrOwnershipViolation", err)
	}
	got, _ := d.Get("c", "http://x/1")
	if got.Owner != "a" || got.Name != "doc" {
		t.Errorf("entry changed after rejected update: %+v", got)
	}

	// Same uri on another channel is a different key.
	if err := d.UpdateResource(res("c2", "http://x/1", "b", "other")); err != nil {
		t.Errorf("UpdateResource on another channel error = %v", err)
	}
}

func TestDirectory_RemoveOwned(t *testing.T) {
	d := NewDirectory()
	d.Put(res("c", "http://x/1", "a", "doc"))

	tests := []struct {
		name    string
		channel string
		uri     string
		owner   string
		want    error
	}{
		{"unknown uri", "c", "http://x/2", "a", domain.ErrResourceNotFound},
		{"wrong owner", "c", "http://x/1", "b", domain.ErrOwnershipViolation},
		{"owner", "c", "http://x/1", "a", nil},
		{"already removed", "c", "http://x/1", "a", domain.ErrResourceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.RemoveOwned(tt.channel, tt.uri, tt.owner)
			if tt.want == nil {
				if err != nil {
					t.Errorf("RemoveOwned error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("RemoveOwned error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDirectory_OwnershipUnderConcurrency(t *testing.T) {
	d := NewDirectory()
	const writers = 8
	const rounds = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_ = d.UpdateResource(res("c", "http://x/shared", owner, "v"))
				_ = d.RemoveOwned("c", "http://x/shared", owner)
			}
		}(fmt.Sprintf("owner-%d", w))
	}

	// An owner that never races must keep its entry.
	if err := d.UpdateResource(res("c", "http://x/mine", "keeper", "v")); err != nil {
		t.Fatalf("UpdateResource error = %v", err)
	}
	wg.Wait()

	got, ok := d.Get("c", "http://x/mine")
	if !ok || got.Owner != "keeper" {
		t.Errorf("entry of a non-racing owner lost or changed: %+v", got)
	}
	if _, ok := d.Get("c", "http://x/shared"); ok {
		t.Error("every writer removes its own entry last; the shared key should be free")
	}
}

func TestDirectory_TemplateQuery(t *testing.T) {
	d := NewDirectory()
	d.Put(res("c", "http://x/1", "a", "alpha"))
	d.Put(res("c", "http://x/2", "b", "beta"))
	d.Put(res("other", "http://x/3", "a", "alpha"))

	tests := []struct {
		name     string
		template domain.Resource
		want     int
	}{
		{"whole channel", domain.Resource{Channel: "c"}, 2},
		{"by owner", domain.Resource{Channel: "c", Owner: "a"}, 1},
		{"by name", domain.Resource{Channel: "c", Name: "bet"}, 1},
		{"by tag ignoring case", domain.Resource{Channel: "c", Tags: []string{"T"}}, 2},
		{"empty channel", domain.Resource{}, 0},
		{"unknown channel", domain.Resource{Channel: "nope"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(d.Snapshot(&tt.template)); got != tt.want {
				t.Errorf("Snapshot() returned %d resources, want %d", got, tt.want)
			}
		})
	}
}

func TestDirectory_TemplateQueryStopsEarly(t *testing.T) {
	d := NewDirectory()
	for i := 0; i < 10; i++ {
		d.Put(res("c", fmt.Sprintf("http://x/%d", i), "a", "doc"))
	}

	n := 0
	for range d.TemplateQuery(&domain.Resource{Channel: "c"}) {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("iterated %d resources, want 3", n)
	}

	// The read lock was released when the loop broke.
	d.Put(res("c", "http://x/new", "a", "doc"))
	if d.Len() != 11 {
		t.Errorf("Len = %d, want 11", d.Len())
	}
}
