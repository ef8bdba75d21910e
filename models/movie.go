package models

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Movie struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Poster      string    `gorm:"size:255;not null;uniqueIndex" json:"poster"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Movie) TableName() string { return "movies" }

// BeforeCreate defaults created_at to the insert time.
func (m *Movie) BeforeCreate(*gorm.DB) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Migrate creates or updates the movies table. titleWidth sets the width of
// the title column.
func Migrate(db *gorm.DB, titleWidth int) error {
	if err := db.AutoMigrate(&Movie{}); err != nil {
		return err
	}
	// AutoMigrate only knows the struct tag width; widen the column for
	// databases that enforce it.
	if db.Dialector.Name() == "postgres" {
		stmt := fmt.Sprintf("ALTER TABLE movies ALTER COLUMN title TYPE varchar(%d)", titleWidth)
		return db.Exec(stmt).Error
	}
	return nil
}

// ListMovies returns every movie in insertion order.
func ListMovies(ctx context.Context, db *gorm.DB) ([]Movie, error) {
	var movies []Movie
	if err := db.WithContext(ctx).Order("id asc").Find(&movies).Error; err != nil {
		return nil, err
	}
	return movies, nil
}

// PosterKeys returns the set of poster keys referenced by movie rows.
func PosterKeys(ctx context.Context, db *gorm.DB) (map[string]struct{}, error) {
	var keys []string
	if err := db.WithContext(ctx).Model(&Movie{}).Pluck("poster", &keys).Error; err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}
