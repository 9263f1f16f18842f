// Package topics resolves hierarchical topic paths such as
// "Storytelling - L1". Matching only relies on the first segment of a path,
// the parent group.
package topics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/errs"
	"gorm.io/gorm"
)

// Separator joins the names along a path from the root topic.
const Separator = " - "

// ParentGroup returns the trimmed segment before the first separator.
func ParentGroup(path string) string {
	if path == "" {
		return ""
	}
	group, _, _ := strings.Cut(path, Separator)
	return strings.TrimSpace(group)
}

// Join builds a path from topic names ordered root first.
func Join(names ...string) string {
	return strings.Join(names, Separator)
}

type Catalog interface {
	Exists(ctx context.Context, path string) (bool, error)
	Paths(ctx context.Context) ([]string, error)
}

// Static is a fixed catalog, used by tools and tests.
type Static struct {
	paths map[string]struct{}
}

func NewStatic(paths ...string) *Static {
	s := &Static{paths: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		s.paths[p] = struct{}{}
	}
	return s
}

func (s *Static) Exists(_ context.Context, path string) (bool, error) {
	_, ok := s.paths[path]
	return ok, nil
}

func (s *Static) Paths(context.Context) ([]string, error) {
	out := make([]string, 0, len(s.paths))
	for p := range s.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// Store reads the topic tree from the topics table. Only leaf topics are
// selectable, so Paths returns leaves.
type Store struct {
	db *gorm.DB
}

func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	paths, err := s.Paths(ctx)
	if err != nil {
		return false, err
	}
	i := sort.SearchStrings(paths, path)
	return i < len(paths) && paths[i] == path, nil
}

func (s *Store) Paths(ctx context.Context) ([]string, error) {
	var rows []db.Topic
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("level ASC, sort_order ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errs.Storage("load topics", err)
	}
	return buildPaths(rows)
}

func buildPaths(rows []db.Topic) ([]string, error) {
	byID := make(map[string]db.Topic, len(rows))
	hasChild := make(map[string]bool, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
		if row.ParentID != nil {
			hasChild[*row.ParentID] = true
		}
	}

	var paths []string
	for _, row := range rows {
		if hasChild[row.ID] {
			continue
		}
		names := []string{row.Name}
		seen := map[string]bool{row.ID: true}
		cur := row
		orphan := false
		for cur.ParentID != nil {
			parent, ok := byID[*cur.ParentID]
			if !ok {
				// parent inactive or missing
				orphan = true
				break
			}
			if seen[parent.ID] {
				return nil, fmt.Errorf("topic %s: cycle in topic tree", row.TopicID)
			}
			seen[parent.ID] = true
			names = append(names, parent.Name)
			cur = parent
		}
		if orphan {
			continue
		}
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
		paths = append(paths, Join(names...))
	}
	sort.Strings(paths)
	return paths, nil
}
