package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aviary-social/aviary/internal/domain"
	"github.com/aviary-social/aviary/internal/infrastructure/database/models"
)

type RelationRepository struct {
	db *gorm.DB
}

func NewRelationRepository(db *gorm.DB) *RelationRepository {
	return &RelationRepository{db: db}
}

// Get returns the relation row for (follower, followee). A missing row is
// not an error: it reads as the zero relation with every flag false.
func (r *RelationRepository) Get(ctx context.Context, follower, followee string) (domain.Relation, error) {
	var row models.Follow
	err := r.db.WithContext(ctx).
		First(&row, "follower = ? AND followee = ?", follower, followee).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Relation{Follower: follower, Followee: followee}, nil
		}
		return domain.Relation{}, err
	}
	return domain.Relation{
		Follower:  row.Follower,
		Followee:  row.Followee,
		Posts:     row.Posts,
		Replies:   row.Replies,
		RepliesTo: row.RepliesTo,
		Reposts:   row.Reposts,
	}, nil
}

// Put writes the relation row back wholesale, overwriting prior state.
func (r *RelationRepository) Put(ctx context.Context, rel domain.Relation) error {
	row := models.Follow{
		Follower:  rel.Follower,
		Followee:  rel.Followee,
		Posts:     rel.Posts,
		Replies:   rel.Replies,
		RepliesTo: rel.RepliesTo,
		Reposts:   rel.Reposts,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "follower"}, {Name: "followee"}},
		UpdateAll: true,
	}).Create(&row).Error
}
