package services

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/storage"
)

type CategoryService struct {
	store storage.Store
	log   logrus.FieldLogger
}

func NewCategoryService(store storage.Store, log logrus.FieldLogger) *CategoryService {
	return &CategoryService{store: store, log: log.WithField("component", "categories")}
}

// slugify lower-cases name and joins its alphanumeric runs with dashes.
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	categories, err := s.store.ListCategories(ctx)
	return categories, fromStorage(err, "list categories")
}

func (s *CategoryService) Create(ctx context.Context, name, description string) (models.Category, error) {
	name = strings.TrimSpace(name)
	slug := slugify(name)
	if slug == "" {
		return models.Category{}, validationf("category name is required")
	}

	c := models.Category{
		ID:          newID(),
		Name:        name,
		Slug:        slug,
		Description: strings.TrimSpace(description),
		CreatedAt:   now(),
	}
	if err := s.store.CreateCategory(ctx, &c); err != nil {
		return models.Category{}, fromStorage(err, "create category")
	}
	s.log.WithField("category_id", c.ID).Info("category created")
	return c, nil
}

func (s *CategoryService) Update(ctx context.Context, id, name, description string) (models.Category, error) {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return models.Category{}, fromStorage(err, "category "+id)
	}
	if name = strings.TrimSpace(name); name != "" {
		c.Name = name
		c.Slug = slugify(name)
	}
	c.Description = strings.TrimSpace(description)

	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return models.Category{}, fromStorage(err, "update category")
	}
	return c, nil
}

// Delete removes a category no NFT refers to.
func (s *CategoryService) Delete(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(tx storage.Queries) error {
		inUse, err := tx.CategoryInUse(ctx, id)
		if err != nil {
			return fromStorage(err, "check category")
		}
		if inUse {
			return fmt.Errorf("%w: category %s still has nfts", ErrConflict, id)
		}
		return fromStorage(tx.DeleteCategory(ctx, id), "delete category "+id)
	})
}
