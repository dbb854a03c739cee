package model

import (
	"encoding/json"
	"fmt"
)

type Post struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Date       string   `json:"date"`
	Permalink  string   `json:"permalink"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
}

type rendered struct {
	Rendered string `json:"rendered"`
}

// UnmarshalJSON accepts both the flat post shape and the WordPress REST
// shape ({"ID": 1, "title": {"rendered": "..."}, ...}).
func (p *Post) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         *int64          `json:"id"`
		UpperID    *int64          `json:"ID"`
		Title      json.RawMessage `json:"title"`
		Content    json.RawMessage `json:"content"`
		Date       string          `json:"date"`
		Permalink  string          `json:"permalink"`
		Link       string          `json:"link"`
		Categories []string        `json:"categories"`
		Tags       []string        `json:"tags"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.ID != nil:
		p.ID = *raw.ID
	case raw.UpperID != nil:
		p.ID = *raw.UpperID
	default:
		return fmt.Errorf("post id is required")
	}
	title, err := decodeRendered(raw.Title)
	if err != nil {
		return fmt.Errorf("decode title of post %d: %w", p.ID, err)
	}
	content, err := decodeRendered(raw.Content)
	if err != nil {
		return fmt.Errorf("decode content of post %d: %w", p.ID, err)
	}
	p.Title = title
	p.Content = content
	p.Date = raw.Date
	p.Permalink = raw.Permalink
	if p.Permalink == "" {
		p.Permalink = raw.Link
	}
	p.Categories = nonNil(raw.Categories)
	p.Tags = nonNil(raw.Tags)
	return nil
}

func decodeRendered(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var r rendered
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", err
	}
	return r.Rendered, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
