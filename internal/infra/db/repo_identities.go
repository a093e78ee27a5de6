package db

import (
	"context"
	"errors"
	"strings"

	"trajectoryd/internal/domain"
	"trajectoryd/internal/usecase"

	"gorm.io/gorm"
)

var errDBUnavailable = errors.New("db unavailable")

// IdentityRepository reads identity records, epoch chains and handle
// aliases from postgres. Optional columns are defaulted here so the
// verification logic never sees a missing numeric field.
type IdentityRepository struct {
	db *gorm.DB
}

func NewIdentityRepository(db *gorm.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

func (r *IdentityRepository) GetRecord(ctx context.Context, publicKey string) (*domain.IdentityRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model IdentityModel
	err := r.db.WithContext(ctx).
		Where("public_key = ?", strings.ToLower(publicKey)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrIdentityNotFound
		}
		return nil, err
	}
	return recordFromModel(model), nil
}

func (r *IdentityRepository) GetEpochs(ctx context.Context, publicKey string) ([]domain.Epoch, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []EpochModel
	err := r.db.WithContext(ctx).
		Where("public_key = ?", strings.ToLower(publicKey)).
		Order("epoch_index ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	epochs := make([]domain.Epoch, 0, len(models))
	for _, m := range models {
		epochs = append(epochs, domain.Epoch{
			EpochIndex:    m.EpochIndex,
			MerkleRoot:    m.MerkleRoot,
			StartTime:     m.StartTime,
			EndTime:       m.EndTime,
			BlockCount:    m.BlockCount,
			PrevEpochHash: m.PrevEpochHash,
			EpochHash:     m.EpochHash,
			Signature:     m.Signature,
		})
	}
	return epochs, nil
}

func (r *IdentityRepository) ResolveHandle(ctx context.Context, handle string) (string, error) {
	if r.db == nil {
		return "", errDBUnavailable
	}
	var model IdentityModel
	err := r.db.WithContext(ctx).
		Where("handle = ?", strings.ToLower(handle)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrIdentityNotFound
		}
		return "", err
	}
	return model.PublicKey, nil
}

func recordFromModel(m IdentityModel) *domain.IdentityRecord {
	record := &domain.IdentityRecord{
		PublicKey:       m.PublicKey,
		TrustScore:      m.TrustScore,
		BreadcrumbCount: m.BreadcrumbCount,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.Handle != nil {
		record.Handle = *m.Handle
	}
	return record
}

var _ usecase.IdentityStore = (*IdentityRepository)(nil)
