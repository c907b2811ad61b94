// Package pages holds the templates of the example blog.
package pages

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"github.com/pthm/hxrender"
)

// Site is the global build state.
type Site struct {
	Name string `json:"name"`
}

// Post is a blog post.
type Post struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Published time.Time `json:"published"`
}

// Comment is a reader comment on a post.
type Comment struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// PostStore is the data source the templates read from.
type PostStore interface {
	Post(ctx context.Context, slug string) (*Post, error)
	Posts(ctx context.Context) ([]Post, error)
	Comments(ctx context.Context, slug string) ([]Comment, error)
}

// IndexState lists the posts on the home page.
type IndexState struct {
	Site  string `json:"site"`
	Posts []Post `json:"posts"`
}

// CommentsState is the state of the comments widget.
type CommentsState struct {
	Slug     string    `json:"slug"`
	Comments []Comment `json:"comments"`
}

// ClockState is the state of the request-time clock page.
type ClockState struct {
	BuiltAt  time.Time `json:"built_at"`
	ServedAt time.Time `json:"served_at"`
	Agent    string    `json:"agent"`
}

// All returns every template of the blog.
func All(store PostStore) []hxrender.Entity {
	return []hxrender.Entity{
		Index(store),
		PostPage(store),
		Comments(store),
		About(),
		Clock(),
	}
}

// Index is the home page, rebuilt at most every ten minutes.
func Index(store PostStore) *hxrender.Template[IndexState] {
	return hxrender.NewTemplate[IndexState]("index").
		BuildState(func(ctx context.Context, info hxrender.StateInfo) (IndexState, error) {
			posts, err := store.Posts(ctx)
			if err != nil {
				return IndexState{}, err
			}
			site, _ := hxrender.StateAs[Site](info.Global)
			return IndexState{Site: site.Name, Posts: posts}, nil
		}).
		RevalidateAfter(10 * time.Minute).
		View(func(ctx context.Context, s IndexState) templ.Component {
			return indexView(s)
		}).
		Head(func(ctx context.Context, s IndexState) templ.Component {
			return title(s.Site)
		})
}

// PostPage renders posts. Known posts are prerendered; posts published
// after the build are rendered on their first request.
func PostPage(store PostStore) *hxrender.Template[Post] {
	return hxrender.NewTemplate[Post]("post").
		IncrementalPaths(func(ctx context.Context) (hxrender.BuildPaths, error) {
			posts, err := store.Posts(ctx)
			if err != nil {
				return hxrender.BuildPaths{}, err
			}
			paths := make([]string, len(posts))
			for i, p := range posts {
				paths[i] = p.Slug
			}
			return hxrender.BuildPaths{Paths: paths}, nil
		}).
		BuildState(func(ctx context.Context, info hxrender.StateInfo) (Post, error) {
			p, err := store.Post(ctx, info.Path)
			if err != nil {
				return Post{}, err
			}
			if p == nil {
				return Post{}, fmt.Errorf("post %q: %w", info.Path, hxrender.ErrPageNotFound)
			}
			return *p, nil
		}).
		RevalidateAfter(time.Hour).
		View(func(ctx context.Context, p Post) templ.Component {
			return postView(p)
		}).
		Head(func(ctx context.Context, p Post) templ.Component {
			return title(p.Title)
		})
}

// Comments is a capsule embedded in every post page.
func Comments(store PostStore) *hxrender.Template[CommentsState] {
	return hxrender.NewCapsule[CommentsState]("comments").
		IncrementalPaths(func(ctx context.Context) (hxrender.BuildPaths, error) {
			return hxrender.BuildPaths{}, nil
		}).
		BuildState(func(ctx context.Context, info hxrender.StateInfo) (CommentsState, error) {
			comments, err := store.Comments(ctx, info.Path)
			if err != nil {
				return CommentsState{}, err
			}
			return CommentsState{Slug: info.Path, Comments: comments}, nil
		}).
		RevalidateAfter(time.Minute).
		View(func(ctx context.Context, s CommentsState) templ.Component {
			return commentsView(s)
		})
}

// About is a basic page with neither state nor paths.
func About() *hxrender.Template[struct{}] {
	return hxrender.NewTemplate[struct{}]("about").
		View(func(ctx context.Context, _ struct{}) templ.Component {
			return raw(`<h1>About</h1><p>A blog rendered with hxrender.</p>`)
		}).
		Head(func(ctx context.Context, _ struct{}) templ.Component {
			return title("About")
		})
}

// Clock combines a build-time state with a per-request one.
func Clock() *hxrender.Template[ClockState] {
	return hxrender.NewTemplate[ClockState]("clock").
		BuildState(func(ctx context.Context, info hxrender.StateInfo) (ClockState, error) {
			return ClockState{BuiltAt: time.Now().UTC()}, nil
		}).
		RequestState(func(ctx context.Context, info hxrender.StateInfo, r *http.Request) (ClockState, error) {
			return ClockState{ServedAt: time.Now().UTC(), Agent: r.UserAgent()}, nil
		}).
		Amalgamate(func(ctx context.Context, info hxrender.StateInfo, build, request ClockState) (ClockState, error) {
			request.BuiltAt = build.BuiltAt
			return request, nil
		}).
		View(func(ctx context.Context, s ClockState) templ.Component {
			return clockView(s)
		})
}
