package service

import (
	"context"

	"github.com/memberbill/memberbill/internal/api/dto"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
)

// ProductService defines the interface for product catalog operations
type ProductService interface {
	CreateProduct(ctx context.Context, req *dto.CreateProductRequest) (*dto.ProductResponse, error)
	GetProduct(ctx context.Context, id string) (*dto.ProductResponse, error)
	GetProductByLookupKey(ctx context.Context, lookupKey string) (*dto.ProductResponse, error)
	ListProducts(ctx context.Context, filter *types.ProductFilter) (*dto.ListProductsResponse, error)
	UpdateProduct(ctx context.Context, id string, req *dto.UpdateProductRequest) (*dto.ProductResponse, error)
	DeleteProduct(ctx context.Context, id string) error
}

type productService struct {
	ServiceParams
}

// NewProductService creates a new product service
func NewProductService(params ServiceParams) ProductService {
	return &productService{
		ServiceParams: params,
	}
}

// CreateProduct creates a new product
func (s *productService) CreateProduct(ctx context.Context, req *dto.CreateProductRequest) (*dto.ProductResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.ProductRepo.GetByLookupKey(ctx, req.LookupKey)
	if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return nil, ierr.NewError("product with this lookup key already exists").
			WithHint("A product with the same lookup key already exists").
			WithReportableDetails(map[string]interface{}{
				"lookup_key": req.LookupKey,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	prod := req.ToProduct(ctx)
	if err := prod.Validate(); err != nil {
		return nil, err
	}

	if err := s.ProductRepo.Create(ctx, prod); err != nil {
		return nil, err
	}

	return &dto.ProductResponse{Product: prod}, nil
}

// GetProduct retrieves a product by ID
func (s *productService) GetProduct(ctx context.Context, id string) (*dto.ProductResponse, error) {
	prod, err := s.ProductRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.ProductResponse{Product: prod}, nil
}

// GetProductByLookupKey retrieves a product by its lookup key
func (s *productService) GetProductByLookupKey(ctx context.Context, lookupKey string) (*dto.ProductResponse, error) {
	if lookupKey == "" {
		return nil, ierr.NewError("lookup key is required").
			WithHint("Lookup key is required").
			Mark(ierr.ErrValidation)
	}

	prod, err := s.ProductRepo.GetByLookupKey(ctx, lookupKey)
	if err != nil {
		return nil, err
	}
	return &dto.ProductResponse{Product: prod}, nil
}

// ListProducts lists products matching the filter
func (s *productService) ListProducts(ctx context.Context, filter *types.ProductFilter) (*dto.ListProductsResponse, error) {
	if filter == nil {
		filter = types.NewProductFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	products, err := s.ProductRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	count, err := s.ProductRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.ProductResponse, len(products))
	for i, prod := range products {
		items[i] = &dto.ProductResponse{Product: prod}
	}

	return &dto.ListProductsResponse{
		Items:      items,
		Pagination: types.NewPaginationResponse(count, filter.GetLimit(), filter.GetOffset()),
	}, nil
}

// UpdateProduct updates a product. Price changes only affect future quotes;
// amounts already frozen on billed cycles never move.
func (s *productService) UpdateProduct(ctx context.Context, id string, req *dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	if id == "" {
		return nil, ierr.NewError("product id is required").
			WithHint("Product ID is required").
			Mark(ierr.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	prod, err := s.ProductRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		prod.Name = *req.Name
	}
	if req.Description != nil {
		prod.Description = *req.Description
	}
	if req.Category != nil {
		prod.Category = *req.Category
	}
	if req.ListPrice != nil {
		prod.ListPrice = *req.ListPrice
	}
	if req.MemberPrice != nil {
		prod.MemberPrice = *req.MemberPrice
	}
	if req.SetupFee != nil {
		prod.SetupFee = *req.SetupFee
	}
	if req.AdditionalMemberDiscountPct != nil {
		prod.AdditionalMemberDiscountPct = *req.AdditionalMemberDiscountPct
	}
	if req.TaxRatePct != nil {
		prod.TaxRatePct = *req.TaxRatePct
	}
	if req.GracePeriodDays != nil {
		prod.GracePeriodDays = *req.GracePeriodDays
	}
	if req.AutoRenew != nil {
		prod.AutoRenew = *req.AutoRenew
	}
	if req.ReminderSchedule != nil {
		prod.ReminderSchedule = *req.ReminderSchedule
	}
	if req.Metadata != nil {
		prod.Metadata = req.Metadata
	}

	if err := prod.Validate(); err != nil {
		return nil, err
	}

	if err := s.ProductRepo.Update(ctx, prod); err != nil {
		return nil, err
	}

	return &dto.ProductResponse{Product: prod}, nil
}

// DeleteProduct deletes a product no subscription references
func (s *productService) DeleteProduct(ctx context.Context, id string) error {
	if _, err := s.ProductRepo.Get(ctx, id); err != nil {
		return err
	}

	subs, err := s.SubRepo.List(ctx, &types.SubscriptionFilter{
		QueryFilter: types.NewNoLimitQueryFilter(),
		ProductIDs:  []string{id},
	})
	if err != nil {
		return err
	}
	if len(subs) > 0 {
		return ierr.NewError("product is still associated with subscriptions").
			WithHint("This product has subscriptions associated with it. Terminate and delete them before removing the product.").
			WithReportableDetails(map[string]interface{}{
				"product_id":    id,
				"subscriptions": len(subs),
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	return s.ProductRepo.Delete(ctx, id)
}
