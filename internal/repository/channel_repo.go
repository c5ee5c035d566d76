package repository

import (
	"context"

	"github.com/prospectly/assignment-engine/internal/domain"
	"gorm.io/gorm"
)

type ChannelRepository interface {
	// Enabled returns all enabled outreach channels.
	Enabled(ctx context.Context) ([]domain.OutreachChannel, error)
}

type GormChannelRepo struct {
	db *gorm.DB
}

func NewGormChannelRepo(db *gorm.DB) *GormChannelRepo {
	return &GormChannelRepo{db: db}
}

func (r *GormChannelRepo) Enabled(ctx context.Context) ([]domain.OutreachChannel, error) {
	var models []ChannelModel
	err := r.db.WithContext(ctx).
		Where("enabled").
		Order("name ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	channels := make([]domain.OutreachChannel, 0, len(models))
	for i := range models {
		channels = append(channels, *channelModelToDomain(&models[i]))
	}
	return channels, nil
}
