package vectorstore

import (
	"github.com/didi/gendry/builder"

	"github.com/xxxsen/postvec/internal/pkg/dbutil"
)

// Filters are ANDed together. Empty fields are ignored.
type Filters struct {
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	Categories []string `json:"categories"`
}

func (f Filters) where() map[string]interface{} {
	where := map[string]interface{}{}
	if f.StartDate != "" {
		where["date >="] = f.StartDate
	}
	if f.EndDate != "" {
		where["date <="] = f.EndDate
	}
	if len(f.Categories) > 0 {
		args := make([]interface{}, 0, len(f.Categories))
		for _, c := range f.Categories {
			args = append(args, c)
		}
		where["_custom_categories"] = builder.Custom(
			"EXISTS (SELECT 1 FROM json_each(categories) WHERE json_each.value IN ("+dbutil.Placeholders(len(args))+"))",
			args...,
		)
	}
	return where
}

// DateRange selects start <= date < endBefore. Both bounds are optional.
type DateRange struct {
	Start     string
	EndBefore string
}

func (r DateRange) where() map[string]interface{} {
	where := map[string]interface{}{}
	if r.Start != "" {
		where["date >="] = r.Start
	}
	if r.EndBefore != "" {
		where["date <"] = r.EndBefore
	}
	return where
}
