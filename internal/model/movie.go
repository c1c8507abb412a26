package model

import (
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// Movie 电影模型（TMDB 信息），tmdb_id 是唯一的 upsert 键
type Movie struct {
	TMDBID           int64         `json:"tmdb_id" gorm:"column:tmdb_id;primaryKey;autoIncrement:false"`
	Title            string        `json:"title" gorm:"column:title;not null"`
	Overview         string        `json:"overview" gorm:"column:overview"`
	ReleaseDate      *string       `json:"release_date" gorm:"column:release_date"`
	Popularity       float64       `json:"popularity" gorm:"column:popularity;index"`
	VoteAverage      float64       `json:"vote_average" gorm:"column:vote_average"`
	VoteCount        int           `json:"vote_count" gorm:"column:vote_count"`
	PosterPath       *string       `json:"poster_path" gorm:"column:poster_path"`
	BackdropPath     *string       `json:"backdrop_path" gorm:"column:backdrop_path"`
	OriginalLanguage string        `json:"original_language" gorm:"column:original_language"`
	OriginalTitle    string        `json:"original_title" gorm:"column:original_title"`
	Adult            bool          `json:"adult" gorm:"column:adult"`
	Video            bool          `json:"video" gorm:"column:video"`
	GenreIDs         pq.Int64Array `json:"genre_ids" gorm:"column:genre_ids;type:bigint[]"`
	DirectorName     *string       `json:"director_name,omitempty" gorm:"column:director_name"`
	UpdatedAt        time.Time     `json:"updated_at" gorm:"column:updated_at;index"`
}

func (Movie) TableName() string {
	return "movies"
}

// ReleaseYear 取上映日期前四位作为年份，缺失或无法解析时 ok 为 false
func (m Movie) ReleaseYear() (int, bool) {
	if m.ReleaseDate == nil {
		return 0, false
	}
	return ParseYear(*m.ReleaseDate)
}

// ParseYear 解析 ISO 日期字符串的前四位
func ParseYear(date string) (int, bool) {
	if len(date) < 4 {
		return 0, false
	}
	year := 0
	for _, c := range date[:4] {
		if c < '0' || c > '9' {
			return 0, false
		}
		year = year*10 + int(c-'0')
	}
	return year, true
}

// MovieVector 向量索引中的一条记录，与 movies 表 1:1
type MovieVector struct {
	TMDBID    int64           `gorm:"column:tmdb_id;primaryKey;autoIncrement:false"`
	Embedding pgvector.Vector `gorm:"column:embedding"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (MovieVector) TableName() string {
	return "movie_vectors"
}

// VectorHit 最近邻查询结果
type VectorHit struct {
	TMDBID    int64   `json:"tmdb_id"`
	Distance  float64 `json:"distance"`
	Certainty float64 `json:"certainty"`
}

// ScoredMovie 向量检索得到的电影，附带距离与置信度
type ScoredMovie struct {
	Movie
	Distance  float64 `json:"distance"`
	Certainty float64 `json:"certainty"`
}
