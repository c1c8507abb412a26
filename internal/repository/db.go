package repository

import (
	"fmt"
	"time"

	"github.com/user/cinesearch/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB 初始化数据库连接
func InitDB(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("无法连接数据库: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层连接失败: %w", err)
	}

	// 测试连接
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库 ping 失败: %w", err)
	}

	// 设置连接池，每个操作自行获取/归还连接
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// Migrate 创建目录表与日志表；向量表由 VectorRepository 首次使用时创建
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Movie{}, &model.SearchLog{}); err != nil {
		return fmt.Errorf("迁移失败: %w", err)
	}
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_movies_title_lower ON movies (lower(title))`).Error
}

// Repositories 仓库集合
type Repositories struct {
	DB        *gorm.DB
	Movie     *MovieRepository
	Vector    *VectorRepository
	SearchLog *SearchLogRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB, embeddingDim int) *Repositories {
	return &Repositories{
		DB:        db,
		Movie:     NewMovieRepository(db),
		Vector:    NewVectorRepository(db, embeddingDim),
		SearchLog: NewSearchLogRepository(db),
	}
}
