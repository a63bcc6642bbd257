package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"price-catalog/internal/domain"
	"price-catalog/internal/repository"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidInput = errors.New("invalid input")

// FieldError describes one rejected field
type FieldError struct {
	Index   *int   `json:"index,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries per-field messages and matches ErrInvalidInput
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// CatalogService defines the business operations over the product catalog
type CatalogService interface {
	List(ctx context.Context) ([]*domain.Product, error)
	Grouped(ctx context.Context) ([]domain.ItemGroup, error)
	Create(ctx context.Context, input domain.ProductInput) (*domain.Product, error)
	Update(ctx context.Context, id int64, input domain.ProductInput) (*domain.Product, error)
	Delete(ctx context.Context, id int64) error
	BulkUpsert(ctx context.Context, inputs []domain.ProductInput) (int, error)
	Ready(ctx context.Context) error
}

type catalogService struct {
	repo     repository.ProductRepository
	validate *validator.Validate
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(repo repository.ProductRepository) CatalogService {
	return &catalogService{
		repo:     repo,
		validate: validator.New(),
	}
}

func (s *catalogService) List(ctx context.Context) ([]*domain.Product, error) {
	return s.repo.List(ctx)
}

func (s *catalogService) Grouped(ctx context.Context) ([]domain.ItemGroup, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return domain.GroupByItem(products), nil
}

func (s *catalogService) Create(ctx context.Context, input domain.ProductInput) (*domain.Product, error) {
	input = normalize(input)
	if err := s.check(input, -1); err != nil {
		return nil, err
	}

	product := &domain.Product{
		ItemName:  input.ItemName,
		BrandName: input.BrandName,
		Price:     input.Price,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *catalogService) Update(ctx context.Context, id int64, input domain.ProductInput) (*domain.Product, error) {
	if id <= 0 {
		return nil, &ValidationError{Fields: []FieldError{{Field: "id", Message: "must be a positive integer"}}}
	}

	input = normalize(input)
	if err := s.check(input, -1); err != nil {
		return nil, err
	}

	product := &domain.Product{
		ID:        id,
		ItemName:  input.ItemName,
		BrandName: input.BrandName,
		Price:     input.Price,
	}
	if err := s.repo.Update(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *catalogService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return repository.ErrProductNotFound
	}
	return s.repo.Delete(ctx, id)
}

// BulkUpsert validates the whole batch up front; nothing is written if any
// entry is rejected.
func (s *catalogService) BulkUpsert(ctx context.Context, inputs []domain.ProductInput) (int, error) {
	if len(inputs) == 0 {
		return 0, nil
	}

	normalized := make([]domain.ProductInput, len(inputs))
	var fields []FieldError
	for i, in := range inputs {
		normalized[i] = normalize(in)
		if err := s.check(normalized[i], i); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				fields = append(fields, verr.Fields...)
				continue
			}
			return 0, err
		}
	}
	if len(fields) > 0 {
		return 0, &ValidationError{Fields: fields}
	}

	return s.repo.BulkUpsert(ctx, normalized)
}

func (s *catalogService) Ready(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func normalize(in domain.ProductInput) domain.ProductInput {
	in.ItemName = strings.TrimSpace(in.ItemName)
	in.BrandName = strings.TrimSpace(in.BrandName)
	return in
}

// check runs struct validation and the text column rules; index < 0 means a
// single payload
func (s *catalogService) check(in domain.ProductInput, index int) error {
	var fields []FieldError

	var verrs validator.ValidationErrors
	if err := s.validate.Struct(in); err != nil {
		if !errors.As(err, &verrs) {
			return fmt.Errorf("failed to validate product: %w", err)
		}
	}
	for _, fe := range verrs {
		f := FieldError{Field: jsonFieldName(fe.Field()), Message: "This field is required"}
		if fe.Tag() != "required" {
			f.Message = "Invalid value"
		}
		fields = append(fields, f)
	}

	if !storableText(in.ItemName) {
		fields = append(fields, FieldError{Field: "item_name", Message: invalidTextMessage})
	}
	if !storableText(in.BrandName) {
		fields = append(fields, FieldError{Field: "brand_name", Message: invalidTextMessage})
	}

	if len(fields) == 0 {
		return nil
	}
	if index >= 0 {
		for i := range fields {
			idx := index
			fields[i].Index = &idx
		}
	}
	return &ValidationError{Fields: fields}
}

const invalidTextMessage = "Must be valid UTF-8 without NUL bytes"

// storableText rejects what a PostgreSQL text column refuses
func storableText(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
}

func jsonFieldName(structField string) string {
	switch structField {
	case "ItemName":
		return "item_name"
	case "BrandName":
		return "brand_name"
	case "Price":
		return "price"
	default:
		return structField
	}
}
