package browser

import (
	"fmt"
	"time"

	"github.com/xxxsen/postvec/internal/model"
	"github.com/xxxsen/postvec/internal/pkg/timeutil"
)

// MaxSampleCount bounds how many sample posts one page generates.
const MaxSampleCount = 100

// Sample generates count deterministic posts for exercising a UI against an
// empty installation.
func Sample(count, dim int, now time.Time) PageResult {
	if count > MaxSampleCount {
		count = MaxSampleCount
	}
	posts := make([]model.Record, 0, count)
	for i := 1; i <= count; i++ {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = float32(0.1*float64(i) + 0.01*float64(j))
		}
		posts = append(posts, model.Record{
			Post: model.Post{
				ID:         int64(i),
				Title:      fmt.Sprintf("Sample Post %d", i),
				Content:    fmt.Sprintf("This is sample content for post %d. It contains some text that can be used for testing the database viewer functionality.", i),
				Date:       now.AddDate(0, 0, -i).Format(timeutil.DateLayout),
				Permalink:  fmt.Sprintf("https://example.com/sample-post-%d", i),
				Categories: []string{"Sample", "Test"},
				Tags:       []string{"sample", "test", fmt.Sprintf("post-%d", i)},
			},
			Embedding: vec,
		})
	}
	return PageResult{
		Posts:      posts,
		TotalCount: count,
		Page:       1,
		PerPage:    count,
		TotalPages: 1,
		Sample:     true,
	}
}
