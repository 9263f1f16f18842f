package topics

import (
	"context"
	"reflect"
	"testing"

	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/internal/testutil"
)

func TestParentGroup(t *testing.T) {
	cases := map[string]string{
		"":                          "",
		"Storytelling - L1":         "Storytelling",
		"  Debates  - Rebuttal - 2": "Debates",
		"Improvisation":             "Improvisation",
	}
	for path, want := range cases {
		if got := ParentGroup(path); got != want {
			t.Fatalf("ParentGroup(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestStaticCatalog(t *testing.T) {
	c := NewStatic("b - 1", "a - 1")
	ok, err := c.Exists(context.Background(), "a - 1")
	if err != nil || !ok {
		t.Fatalf("expected path to exist, got %v, %v", ok, err)
	}
	paths, _ := c.Paths(context.Background())
	if !reflect.DeepEqual(paths, []string{"a - 1", "b - 1"}) {
		t.Fatalf("unexpected paths: %v", paths)
	}
}

func TestStoreBuildsLeafPaths(t *testing.T) {
	gdb := testutil.SetupTestDB(t)
	root := "t-root"
	mid := "t-mid"
	rows := []db.Topic{
		{ID: root, TopicID: "storytelling", Name: "Storytelling", Level: 1, IsActive: true},
		{ID: mid, TopicID: "storytelling_l1", Name: "L1", ParentID: &root, Level: 2, IsActive: true},
		{ID: "t-leaf", TopicID: "storytelling_l1_hooks", Name: "Hooks", ParentID: &mid, Level: 3, IsActive: true},
		{ID: "t-other", TopicID: "debates", Name: "Debates", Level: 1, SortOrder: 1, IsActive: true},
	}
	if err := gdb.Create(&rows).Error; err != nil {
		t.Fatalf("failed to seed topics: %v", err)
	}
	// gorm skips zero-value bools on create when the column has a default
	if err := gdb.Model(&db.Topic{}).Where("id = ?", "t-other").Update("is_active", false).Error; err != nil {
		t.Fatalf("failed to deactivate topic: %v", err)
	}

	store := NewStore(gdb)
	paths, err := store.Paths(context.Background())
	if err != nil {
		t.Fatalf("Paths failed: %v", err)
	}
	if !reflect.DeepEqual(paths, []string{"Storytelling - L1 - Hooks"}) {
		t.Fatalf("unexpected paths: %v", paths)
	}
	ok, err := store.Exists(context.Background(), "Storytelling - L1")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Fatal("inner node must not be selectable")
	}
}
