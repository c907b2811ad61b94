package main

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pthm/hxrender/example/pages"
)

// Store is an in-memory blog store that implements pages.PostStore.
type Store struct {
	mu       sync.RWMutex
	posts    map[string]*pages.Post
	comments map[string][]pages.Comment
}

// NewStore creates a store with sample posts.
func NewStore() *Store {
	s := &Store{
		posts:    make(map[string]*pages.Post),
		comments: make(map[string][]pages.Comment),
	}

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	s.add("hello-world", "Hello, world", "The first post on this blog.", base)
	s.add("incremental", "Pages on demand", "Posts not known at build time are rendered on their first visit.", base.Add(24*time.Hour))
	s.add("widgets", "Widgets", "Comments are a widget, cached apart from the post.", base.Add(48*time.Hour))
	s.Comment("hello-world", "ada", "Nice start!")
	s.Comment("widgets", "grace", "Neat.")

	return s
}

func (s *Store) add(slug, title, body string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[slug] = &pages.Post{Slug: slug, Title: title, Body: body, Published: at}
}

// Publish adds a post after the build, to be picked up incrementally.
func (s *Store) Publish(slug, title, body string) {
	s.add(slug, title, body, time.Now().UTC())
}

// Comment appends a comment to a post.
func (s *Store) Comment(slug, author, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments[slug] = append(s.comments[slug], pages.Comment{Author: author, Text: text})
}

// Post returns a post by slug.
func (s *Store) Post(ctx context.Context, slug string) (*pages.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[slug]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// Posts returns every post, newest first.
func (s *Store) Posts(ctx context.Context) ([]pages.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pages.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Published.After(out[j].Published) })
	return out, nil
}

// Comments returns the comments of a post.
func (s *Store) Comments(ctx context.Context, slug string) ([]pages.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]pages.Comment(nil), s.comments[slug]...), nil
}
