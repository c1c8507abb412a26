package model

import (
	"strings"
	"time"
)

// RawMetadata TMDB 返回的原始电影记录（搜索、发现、演职员表共用）
type RawMetadata struct {
	ID               int64   `json:"id" validate:"required,gt=0"`
	Title            string  `json:"title" validate:"required"`
	Overview         string  `json:"overview"`
	ReleaseDate      string  `json:"release_date"`
	Popularity       float64 `json:"popularity" validate:"gte=0"`
	VoteAverage      float64 `json:"vote_average" validate:"gte=0,lte=10"`
	VoteCount        int     `json:"vote_count" validate:"gte=0"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	OriginalLanguage string  `json:"original_language"`
	OriginalTitle    string  `json:"original_title"`
	Adult            bool    `json:"adult"`
	Video            bool    `json:"video"`
	GenreIDs         []int64 `json:"genre_ids"`
	Job              string  `json:"job,omitempty"` // 仅演职员表
}

// PersonRecord TMDB 人物
type PersonRecord struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	KnownForDepartment string  `json:"known_for_department"`
	Popularity         float64 `json:"popularity"`
}

// ToMovie 转换为目录实体，空字符串的可选字段转为 nil
func (r RawMetadata) ToMovie() Movie {
	genres := r.GenreIDs
	if genres == nil {
		genres = []int64{}
	}
	return Movie{
		TMDBID:           r.ID,
		Title:            strings.TrimSpace(r.Title),
		Overview:         r.Overview,
		ReleaseDate:      optional(r.ReleaseDate),
		Popularity:       r.Popularity,
		VoteAverage:      r.VoteAverage,
		VoteCount:        r.VoteCount,
		PosterPath:       optional(r.PosterPath),
		BackdropPath:     optional(r.BackdropPath),
		OriginalLanguage: r.OriginalLanguage,
		OriginalTitle:    r.OriginalTitle,
		Adult:            r.Adult,
		Video:            r.Video,
		GenreIDs:         genres,
		UpdatedAt:        time.Now(),
	}
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
